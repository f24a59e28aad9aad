package clip

import "go.klb.dev/clipdeck/internal/entry"

// headlessSource is a no-op clipboard for environments without a display
// server. It never signals Watch and silently discards writes.
type headlessSource struct {
	watchCh chan struct{}
}

// Headless returns a no-op Source.
func Headless() Source {
	return &headlessSource{watchCh: make(chan struct{})}
}

func (s *headlessSource) Name() string               { return "headless (no-op)" }
func (s *headlessSource) Read() ([]entry.Raw, error) { return nil, nil }
func (s *headlessSource) Write(_ []entry.Raw) error  { return nil }
func (s *headlessSource) Watch() <-chan struct{}     { return s.watchCh }
func (s *headlessSource) Close()                     {}
