package links

import (
	"context"
	"errors"
	"mime"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const defaultLookupTimeout = 2 * time.Second

// DNSValidator treats a domain as valid when it resolves. Results are cached
// for the lifetime of the validator, so repeated captures of the same text do
// not hit the resolver again. Lookup failures other than "no such host" are
// returned as errors and are not cached.
type DNSValidator struct {
	Resolver *net.Resolver
	Timeout  time.Duration

	mu    sync.Mutex
	cache map[string]bool
}

// NewDNSValidator returns a validator using the default resolver.
func NewDNSValidator(timeout time.Duration) *DNSValidator {
	if timeout <= 0 {
		timeout = defaultLookupTimeout
	}
	return &DNSValidator{Resolver: net.DefaultResolver, Timeout: timeout}
}

// IsValidDomain implements DomainValidator.
func (v *DNSValidator) IsValidDomain(ctx context.Context, domain string) (bool, error) {
	if domain == "" {
		return false, nil
	}
	v.mu.Lock()
	ok, hit := v.cache[domain]
	v.mu.Unlock()
	if hit {
		return ok, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()
	addrs, err := v.Resolver.LookupHost(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
			return false, err
		}
	}
	ok = len(addrs) > 0

	v.mu.Lock()
	if v.cache == nil {
		v.cache = make(map[string]bool)
	}
	v.cache[domain] = ok
	v.mu.Unlock()
	return ok, nil
}

// fallbackTypes covers common extensions missing from Go's builtin MIME
// table, so classification does not depend on the host's mime.types.
var fallbackTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
}

// ExtensionInterpreter classifies file names by extension via the MIME table.
type ExtensionInterpreter struct{}

// FileType implements FileTypeInterpreter.
func (ExtensionInterpreter) FileType(name string) FileType {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return FileUnknown
	}
	typ := mime.TypeByExtension(ext)
	if typ == "" {
		typ = fallbackTypes[ext]
	}
	if typ == "" {
		return FileOther
	}
	switch major, _, _ := strings.Cut(typ, "/"); major {
	case "image":
		return FileImage
	case "audio":
		return FileAudio
	case "video":
		return FileVideo
	case "text":
		return FileText
	}
	return FileOther
}
