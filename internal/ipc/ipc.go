// Package ipc locates and opens the local control channel between the
// clipdeck daemon and its CLI sub-commands: a Unix domain socket, or a named
// pipe on Windows.
package ipc

import (
	"context"
	"net"
	"os"
	"time"
)

// SocketPath returns the platform-appropriate path for the IPC channel.
//
//   - Linux:   $XDG_RUNTIME_DIR/clipdeck.sock
//   - macOS:   $TMPDIR/clipdeck.sock
//   - Windows: \\.\pipe\clipdeck
//
// $CLIPDECK_SOCKET overrides all of them.
func SocketPath() string {
	if s := os.Getenv("CLIPDECK_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// IsRunning reports whether a daemon appears to be listening on the
// default path.
func IsRunning() bool { return Listening(SocketPath()) }

// Listening reports whether something accepts connections at path. It does
// a cheap dial-and-close; no data is exchanged.
func Listening(path string) bool {
	c, err := Dial(context.Background(), path)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Listen returns a listener on path, removing any stale socket from a
// previous crashed run first.
func Listen(path string) (net.Listener, error) {
	removeStale(path)
	return listenIPC(path)
}

// Dial connects to the daemon at path. It honours ctx for cancellation and
// gives up after five seconds.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return dialIPC(ctx, path)
}
