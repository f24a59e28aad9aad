package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipdeck/internal/actions"
	"go.klb.dev/clipdeck/internal/clip"
	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/history"
	"go.klb.dev/clipdeck/internal/tlsconf"
)

type fixture struct {
	store *history.Store
	bus   *history.Bus
	clip  *clip.Memory
	svc   *Service
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	bus := history.NewBus()
	store := history.NewStore(bus)
	cb := clip.NewMemory()
	store.SetActions(actions.Default(cb, store, nil))
	svc := NewService(Config{
		Store:       store,
		Coordinator: history.NewCoordinator(store, nil, bus),
		Bus:         bus,
		Source:      "test",
		Version:     "v0.0.0-test",
		Token:       token,
	})
	return &fixture{store: store, bus: bus, clip: cb, svc: svc}
}

func textEntry(s string) *entry.Entry {
	return entry.New([]entry.Item{{Format: entry.FormatText, Raw: []byte(s), Value: entry.Text{Text: s}}})
}

func (f *fixture) add(t *testing.T, s string) *entry.Entry {
	t.Helper()
	e := textEntry(s)
	require.NoError(t, f.store.Insert(e))
	return e
}

func (f *fixture) dial(t *testing.T, token string) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	Register(gs, f.svc)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	opts := []grpc.DialOption{
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearer(token)))
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestListAndStatus(t *testing.T) {
	f := newFixture(t, "")
	a := f.add(t, "first https://example.com")
	b := f.add(t, "second")
	c := f.dial(t, "")
	ctx := context.Background()

	got, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID(), got[0].ID)
	assert.Equal(t, a.ID(), got[1].ID)
	assert.Equal(t, "text", got[1].Kind)
	assert.Equal(t, []string{"CF_TEXT"}, got[1].Formats)
	assert.WithinDuration(t, a.Created(), got[1].Created, time.Millisecond)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Entries)
	assert.Equal(t, "disabled", st.Capture)
	assert.Equal(t, "v0.0.0-test", st.Version)
}

func TestPerformPasteOverGRPC(t *testing.T) {
	f := newFixture(t, "")
	a := f.add(t, "a")
	f.add(t, "b")
	c := f.dial(t, "")

	require.NoError(t, c.Perform(context.Background(), a.ID(), "paste"))
	raws, _ := f.clip.Read()
	assert.Equal(t, "a", string(raws[0].Data))
	assert.Equal(t, a.ContentKey(), f.store.Entries()[0].ContentKey())
}

func TestErrorCodes(t *testing.T) {
	f := newFixture(t, "")
	a := f.add(t, "a")
	c := f.dial(t, "")
	ctx := context.Background()

	err := c.Perform(ctx, "missing", "paste")
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = c.Perform(ctx, a.ID(), "frobnicate")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	err = c.Perform(ctx, "", "")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, _, err = c.Export(ctx, "missing")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestExport(t *testing.T) {
	f := newFixture(t, "")
	a := f.add(t, "hello")
	c := f.dial(t, "")

	ct, data, err := c.Export(context.Background(), a.ID())
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)
	assert.Equal(t, "hello", string(data))
}

func TestExportFormats(t *testing.T) {
	img := entry.New([]entry.Item{{Format: entry.FormatPNG, Raw: []byte("png"), Value: entry.Image{Encoded: []byte("png")}}})
	ct, data, err := Export(img)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, "png", string(data))

	files := entry.New([]entry.Item{{Format: entry.FormatHDrop, Value: entry.FileList{Paths: []string{"/tmp/a b.txt"}}}})
	ct, data, err = Export(files)
	require.NoError(t, err)
	assert.Equal(t, "text/uri-list", ct)
	assert.Equal(t, "file:///tmp/a%20b.txt\r\n", string(data))

	raw := entry.New([]entry.Item{{Format: entry.Format(0xC0FF), Raw: []byte{1}}})
	ct, _, err = Export(raw)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", ct)

	_, _, err = Export(entry.New(nil))
	assert.ErrorIs(t, err, ErrEmptyEntry)
}

func TestAuth(t *testing.T) {
	f := newFixture(t, "s3cret")
	f.add(t, "a")

	_, err := f.dial(t, "").List(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = f.dial(t, "wrong").List(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	got, err := f.dial(t, "s3cret").List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTokenMatches(t *testing.T) {
	assert.True(t, tokenMatches("Bearer s3cret", "s3cret"))
	assert.True(t, tokenMatches("s3cret", "s3cret"))
	assert.False(t, tokenMatches("Bearer s3cre", "s3cret"))
	assert.False(t, tokenMatches("Bearer s3cretX", "s3cret"))
	assert.False(t, tokenMatches("Bearer ", "s3cret"))
	assert.False(t, tokenMatches("bearer s3cret", "s3cret"))
}

func TestWatchStreamsEvents(t *testing.T) {
	f := newFixture(t, "")
	c := f.dial(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan EventInfo, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, func(ev EventInfo) error {
			events <- ev
			return nil
		})
	}()

	// The subscription is registered asynchronously; keep inserting until
	// the stream observes an insert.
	var ev EventInfo
	require.Eventually(t, func() bool {
		_ = f.store.Insert(textEntry("x"))
		select {
		case ev = <-events:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, "entry-added", ev.Kind)
	require.NotNil(t, ev.Entry)
	assert.Equal(t, "x", ev.Entry.Preview)

	cancel()
	err := <-done
	if err != nil {
		assert.Equal(t, codes.Canceled, status.Code(err))
	}
}

func TestGateway(t *testing.T) {
	f := newFixture(t, "")
	a := f.add(t, "gw")
	mux, err := NewGateway(f.svc)
	require.NoError(t, err)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/entries")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, a.ID(), list[0]["id"])

	resp, err = http.Post(srv.URL+"/v1/entries/"+a.ID()+"/actions/pin", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, a.Pinned())

	resp, err = http.Get(srv.URL + "/v1/entries/nope/export")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	assert.EqualValues(t, 1, st["entries"])
	assert.EqualValues(t, 1, st["pinned"])
}

func TestServeMultiplexes(t *testing.T) {
	f := newFixture(t, "")
	f.add(t, "mux")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, f.svc) }()

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	got, err := NewClient(conn).List(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)

	resp, err := http.Get("http://" + ln.Addr().String() + "/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}

func TestServeOverTLS(t *testing.T) {
	f := newFixture(t, "s3cret")
	f.add(t, "remote")
	ln, err := tlsconf.Listen("127.0.0.1:0", "s3cret")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, f.svc) }()

	conn, err := DialTCP(ln.Addr().String(), "s3cret")
	require.NoError(t, err)
	defer conn.Close()
	got, err := NewClient(conn).List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "remote", got[0].Preview)

	bad, err := DialTCP(ln.Addr().String(), "wrong")
	require.NoError(t, err)
	defer bad.Close()
	_, err = NewClient(bad).List(context.Background())
	assert.Equal(t, codes.Unavailable, status.Code(err))

	cancel()
	assert.NoError(t, <-done)
}
