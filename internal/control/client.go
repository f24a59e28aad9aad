package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/clipdeck/internal/ipc"
	"go.klb.dev/clipdeck/internal/tlsconf"
)

// Client is a typed stub for the History service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the daemon's IPC channel at path. token is sent as a
// bearer credential when non-empty.
func Dial(path, token string) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx, path)
		}),
	}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearer(token)))
	}
	return grpc.NewClient("passthrough:///clipdeck", opts...)
}

// DialTCP connects to a daemon's TLS control listener at addr. The server
// key is checked against token, which is also sent as a bearer credential.
func DialTCP(addr, token string) (*grpc.ClientConn, error) {
	creds, err := tlsconf.ClientCredentials(token)
	if err != nil {
		return nil, fmt.Errorf("tls credentials: %w", err)
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearer(token)))
	}
	return grpc.NewClient(addr, opts...)
}

type bearer string

func (b bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

// List returns the history in display order.
func (c *Client) List(ctx context.Context) ([]EntryInfo, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "List", &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	entries := make([]EntryInfo, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		entries = append(entries, entryFromStruct(v.GetStructValue()))
	}
	return entries, nil
}

// Perform runs the named action on the entry with the given id.
func (c *Client) Perform(ctx context.Context, id, action string) error {
	req, err := structpb.NewStruct(map[string]any{"entry": id, "action": action})
	if err != nil {
		return err
	}
	return c.invoke(ctx, "Perform", req, new(emptypb.Empty))
}

// Export returns the entry's content and its media type.
func (c *Client) Export(ctx context.Context, id string) (contentType string, data []byte, err error) {
	out := new(httpbody.HttpBody)
	if err := c.invoke(ctx, "Export", wrapperspb.String(id), out); err != nil {
		return "", nil, err
	}
	return out.GetContentType(), out.GetData(), nil
}

// Status describes the running daemon.
func (c *Client) Status(ctx context.Context) (StatusInfo, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Status", &emptypb.Empty{}, out); err != nil {
		return StatusInfo{}, err
	}
	return statusFromStruct(out), nil
}

// Watch calls fn for every history event until ctx is done, the server
// closes the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(EventInfo) error) error {
	cs, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		if err := fn(eventFromStruct(msg)); err != nil {
			return err
		}
	}
}
