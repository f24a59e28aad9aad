// Package tlsconf secures the TCP control listener with credentials derived
// from the control token.
//
// The server's ECDSA P-256 key is derived from the token with HKDF, so a
// client holding the same token can compute the expected public key and
// check it during the handshake. The certificate around the key is
// self-signed and throwaway; only the key is verified. A wrong token yields a
// different key and the handshake fails before any RPC is sent.
//
//	HKDF-SHA256(ikm=token, salt="clipdeck-control-tls-v1", info="server-key")
package tlsconf

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"

	"golang.org/x/crypto/hkdf"
	"google.golang.org/grpc/credentials"
)

// DefaultToken keys the listener when the daemon runs without --token.
// It encrypts traffic but authenticates nothing.
const DefaultToken = "clipdeck"

const serverName = "clipdeck"

// ErrKeyMismatch is returned by the client verifier when the server's key was
// not derived from the client's token.
var ErrKeyMismatch = errors.New("tlsconf: server key does not match token")

func token(t string) string {
	if t == "" {
		return DefaultToken
	}
	return t
}

// ServerConfig returns the listener side configuration for tok. ALPN offers
// both h2 and http/1.1 so gRPC and the JSON gateway share one port.
func ServerConfig(tok string) (*tls.Config, error) {
	key, err := deriveKey(token(tok))
	if err != nil {
		return nil, err
	}
	cert, err := selfSigned(key)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig returns a client configuration that accepts only a server
// whose key derives from tok.
func ClientConfig(tok string) (*tls.Config, error) {
	key, err := deriveKey(token(tok))
	if err != nil {
		return nil, err
	}
	want, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: marshal public key: %w", err)
	}
	return &tls.Config{
		// Chain verification is replaced by the key check below.
		InsecureSkipVerify: true, //nolint:gosec
		ServerName:         serverName,
		MinVersion:         tls.VersionTLS13,
		VerifyPeerCertificate: func(raw [][]byte, _ [][]*x509.Certificate) error {
			if len(raw) == 0 {
				return fmt.Errorf("tlsconf: server presented no certificate")
			}
			cert, err := x509.ParseCertificate(raw[0])
			if err != nil {
				return fmt.Errorf("tlsconf: parse server certificate: %w", err)
			}
			got, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
			if err != nil {
				return fmt.Errorf("tlsconf: marshal server key: %w", err)
			}
			if !bytes.Equal(got, want) {
				return ErrKeyMismatch
			}
			return nil
		},
	}, nil
}

// ClientCredentials wraps ClientConfig for gRPC.
func ClientCredentials(tok string) (credentials.TransportCredentials, error) {
	cfg, err := ClientConfig(tok)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(cfg), nil
}

// Listen opens a TCP listener on addr and wraps it in TLS keyed by tok.
func Listen(addr, tok string) (net.Listener, error) {
	cfg, err := ServerConfig(tok)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return tls.NewListener(ln, cfg), nil
}

func deriveKey(tok string) (*ecdsa.PrivateKey, error) {
	r := hkdf.New(sha256.New, []byte(tok), []byte("clipdeck-control-tls-v1"), []byte("server-key"))
	buf := make([]byte, 64)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("tlsconf: hkdf: %w", err)
	}

	curve := elliptic.P256()
	n1 := new(big.Int).Sub(curve.Params().N, big.NewInt(1))
	d := new(big.Int).SetBytes(buf)
	d.Mod(d, n1).Add(d, big.NewInt(1)) // d in [1, N-1]

	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(d.Bytes())
	return key, nil
}

func selfSigned(key *ecdsa.PrivateKey) (tls.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: serverName},
		DNSNames:              []string{serverName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}
