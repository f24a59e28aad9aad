// Package clip is the raw system clipboard boundary. Sources hand out
// undecoded payloads tagged with their native format; decoding happens in
// the decode package.
//
//	native.go          golang.design/x/clipboard, polling (all but Windows)
//	native_windows.go  clipboard listener window, every native format
//	formats.go         payload selection and native format mapping
//	headless.go        no-op, for servers and --no-clipboard
//	memory.go          in-process clipboard
package clip

import (
	"errors"
	"time"

	"go.klb.dev/clipdeck/internal/entry"
)

// DefaultPollInterval is how often a polling source samples the clipboard.
// Sources that are told about changes ignore it.
const DefaultPollInterval = 250 * time.Millisecond

// ErrNothingWritable is returned by Write when none of the payloads has a
// format the source can put on the clipboard.
var ErrNothingWritable = errors.New("no writable clipboard format")

// Writer puts raw payloads on the clipboard.
type Writer interface {
	Write(raws []entry.Raw) error
}

// Source is the interface every clipboard backend satisfies.
type Source interface {
	Writer

	// Name returns a human-readable name for the backend.
	Name() string

	// Read returns the current clipboard payloads, one per available format.
	// Returns nil, nil if the clipboard is empty.
	Read() ([]entry.Raw, error)

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. Writes made through the source
	// itself do not signal.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
