// Package control exposes the running history over the local IPC channel:
// a gRPC service built from protobuf well-known types, and an HTTP/JSON
// mirror of it on a grpc-gateway mux, multiplexed on one listener.
package control

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipdeck/internal/capture"
	"go.klb.dev/clipdeck/internal/clip"
	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/history"
)

// Counter reports how many entries are persisted.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// StateReporter reports the capture loop state.
type StateReporter interface {
	State() capture.State
}

// Config wires a Service to the running daemon. Pins and Capture may be nil.
type Config struct {
	Store       *history.Store
	Coordinator *history.Coordinator
	Bus         *history.Bus
	Pins        Counter
	Capture     StateReporter
	Source      string
	Version     string
	Token       string // empty = no auth
}

// Service implements HistoryServer.
type Service struct {
	cfg     Config
	started time.Time
}

var _ HistoryServer = (*Service)(nil)

// NewService returns a Service for cfg.
func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, started: time.Now()}
}

// List implements History.List.
func (s *Service) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	entries := s.cfg.Store.Entries()
	vals := make([]any, len(entries))
	for i, e := range entries {
		vals[i] = Info(e).asMap()
	}
	lv, err := structpb.NewList(vals)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode entries: %v", err)
	}
	return lv, nil
}

// Perform implements History.Perform. The request carries "entry" and
// "action" string fields.
func (s *Service) Perform(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	f := req.GetFields()
	id, action := f["entry"].GetStringValue(), f["action"].GetStringValue()
	if id == "" || action == "" {
		return nil, status.Error(codes.InvalidArgument, "entry and action are required")
	}
	if err := s.cfg.Coordinator.Perform(ctx, id, action); err != nil {
		slog.Warn("action failed", "action", action, "entry", id, "err", err)
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Export implements History.Export.
func (s *Service) Export(ctx context.Context, req *wrapperspb.StringValue) (*httpbody.HttpBody, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	e, ok := s.cfg.Store.Lookup(req.GetValue())
	if !ok {
		return nil, status.Errorf(codes.NotFound, "entry %q not in history", req.GetValue())
	}
	contentType, data, err := Export(e)
	if err != nil {
		return nil, toStatus(err)
	}
	return &httpbody.HttpBody{ContentType: contentType, Data: data}, nil
}

// Status implements History.Status.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	info := StatusInfo{
		Version: s.cfg.Version,
		Source:  s.cfg.Source,
		Capture: "disabled",
		Entries: s.cfg.Store.Len(),
		Pinned:  s.cfg.Store.PinnedCount(),
		Uptime:  time.Since(s.started),
	}
	if s.cfg.Capture != nil {
		info.Capture = s.cfg.Capture.State().String()
	}
	if s.cfg.Pins != nil {
		n, err := s.cfg.Pins.Count(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		info.Persisted = n
	}
	st, err := structpb.NewStruct(info.asMap())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode status: %v", err)
	}
	return st, nil
}

// Watch implements History.Watch, streaming every history event until the
// client goes away.
func (s *Service) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}
	events, unsubscribe := s.cfg.Bus.Subscribe(64)
	defer unsubscribe()

	slog.Info("watch started")
	defer slog.Info("watch ended")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			msg, err := eventStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when no token is
// configured.
func (s *Service) auth(ctx context.Context) error {
	if s.cfg.Token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	if !tokenMatches(vals[0], s.cfg.Token) {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

// tokenMatches compares a presented credential, with or without its Bearer
// prefix, against want in constant time.
func tokenMatches(presented, want string) bool {
	tok, _ := strings.CutPrefix(presented, "Bearer ")
	return subtle.ConstantTimeCompare([]byte(tok), []byte(want)) == 1
}

// ErrEmptyEntry is returned by Export for an entry with no payloads.
var ErrEmptyEntry = errors.New("entry has no content")

// Export renders e in its most useful representation: an encoded image,
// then text, then a file list, then the first raw payload.
func Export(e *entry.Entry) (contentType string, data []byte, err error) {
	if img, ok := e.Image(); ok && len(img.Encoded) > 0 {
		return "image/png", img.Encoded, nil
	}
	if t, ok := e.Text(); ok {
		return "text/plain; charset=utf-8", []byte(t.Text), nil
	}
	for _, it := range e.Items() {
		if fl, ok := it.Value.(entry.FileList); ok {
			var out []byte
			for _, p := range fl.Paths {
				u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
				out = append(out, u.String()+"\r\n"...)
			}
			return "text/uri-list", out, nil
		}
	}
	if e.Len() == 0 {
		return "", nil, ErrEmptyEntry
	}
	return "application/octet-stream", e.Item(0).Raw, nil
}

// toStatus maps domain errors onto gRPC status codes.
func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codes.Internal
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, history.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, history.ErrUnknownAction), errors.Is(err, history.ErrInvalidPane):
		code = codes.InvalidArgument
	case errors.Is(err, history.ErrPinned),
		errors.Is(err, history.ErrNoSelection),
		errors.Is(err, history.ErrNotApplicable),
		errors.Is(err, clip.ErrNothingWritable),
		errors.Is(err, ErrEmptyEntry):
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}
