package control

import (
	"context"
	"net/http"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type gateway struct {
	mux *gwruntime.ServeMux
	svc HistoryServer
}

// NewGateway returns an HTTP/JSON mirror of svc:
//
//	GET  /v1/entries
//	GET  /v1/entries/{id}/export
//	POST /v1/entries/{id}/actions/{action}
//	GET  /v1/status
func NewGateway(svc HistoryServer) (*gwruntime.ServeMux, error) {
	g := &gateway{mux: gwruntime.NewServeMux(), svc: svc}
	routes := []struct {
		method, pattern string
		h               gwruntime.HandlerFunc
	}{
		{http.MethodGet, "/v1/entries", g.list},
		{http.MethodGet, "/v1/entries/{id}/export", g.export},
		{http.MethodPost, "/v1/entries/{id}/actions/{action}", g.perform},
		{http.MethodGet, "/v1/status", g.status},
	}
	for _, rt := range routes {
		if err := g.mux.HandlePath(rt.method, rt.pattern, rt.h); err != nil {
			return nil, err
		}
	}
	return g.mux, nil
}

// incoming carries the HTTP Authorization header into the service's auth check.
func incoming(r *http.Request) context.Context {
	md := metadata.MD{}
	if a := r.Header.Get("Authorization"); a != "" {
		md.Set("authorization", a)
	}
	return metadata.NewIncomingContext(r.Context(), md)
}

func (g *gateway) fail(w http.ResponseWriter, r *http.Request, err error) {
	_, out := gwruntime.MarshalerForRequest(g.mux, r)
	gwruntime.HTTPError(r.Context(), g.mux, out, w, r, err)
}

func (g *gateway) write(w http.ResponseWriter, r *http.Request, msg proto.Message) {
	_, out := gwruntime.MarshalerForRequest(g.mux, r)
	buf, err := out.Marshal(msg)
	if err != nil {
		g.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType(msg))
	_, _ = w.Write(buf)
}

func (g *gateway) list(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	lv, err := g.svc.List(incoming(r), &emptypb.Empty{})
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.write(w, r, lv)
}

func (g *gateway) export(w http.ResponseWriter, r *http.Request, params map[string]string) {
	body, err := g.svc.Export(incoming(r), wrapperspb.String(params["id"]))
	if err != nil {
		g.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", body.GetContentType())
	_, _ = w.Write(body.GetData())
}

func (g *gateway) perform(w http.ResponseWriter, r *http.Request, params map[string]string) {
	req, err := structpb.NewStruct(map[string]any{"entry": params["id"], "action": params["action"]})
	if err != nil {
		g.fail(w, r, err)
		return
	}
	if _, err := g.svc.Perform(incoming(r), req); err != nil {
		g.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) status(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	st, err := g.svc.Status(incoming(r), &emptypb.Empty{})
	if err != nil {
		g.fail(w, r, err)
		return
	}
	g.write(w, r, st)
}
