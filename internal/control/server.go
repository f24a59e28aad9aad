package control

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
)

// Serve runs the gRPC service and its HTTP/JSON gateway on ln until ctx is
// done. HTTP/2 connections carrying gRPC go to the gRPC server; everything
// else is treated as HTTP/1.1 for the gateway.
func Serve(ctx context.Context, ln net.Listener, svc *Service) error {
	gw, err := NewGateway(svc)
	if err != nil {
		return err
	}

	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	gs := grpc.NewServer()
	Register(gs, svc)
	hs := &http.Server{Handler: gw, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 3)
	go func() { errc <- gs.Serve(grpcL) }()
	go func() { errc <- hs.Serve(httpL) }()
	go func() { errc <- m.Serve() }()
	slog.Info("control server listening", "addr", ln.Addr())

	select {
	case <-ctx.Done():
		err = nil
	case err = <-errc:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = hs.Shutdown(shutdownCtx)
	gs.Stop()
	_ = ln.Close()

	if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, cmux.ErrListenerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
