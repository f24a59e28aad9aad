package clip

import (
	"slices"
	"sync"

	"go.klb.dev/clipdeck/internal/entry"
)

// Memory is an in-process clipboard. Set simulates an external copy and
// signals Watch; Write stores without signalling, like a native source.
type Memory struct {
	watchCh chan struct{}

	mu     sync.Mutex
	raws   []entry.Raw
	writes int
}

// NewMemory returns an empty in-process clipboard.
func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string { return "memory" }

// Set replaces the clipboard contents and signals a change.
func (m *Memory) Set(raws ...entry.Raw) {
	m.mu.Lock()
	m.raws = cloneRaws(raws)
	m.mu.Unlock()
	notify(m.watchCh)
}

func (m *Memory) Read() ([]entry.Raw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRaws(m.raws), nil
}

func (m *Memory) Write(raws []entry.Raw) error {
	if len(raws) == 0 {
		return ErrNothingWritable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raws = cloneRaws(raws)
	m.writes++
	return nil
}

// Writes reports how many times Write succeeded.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}

func cloneRaws(raws []entry.Raw) []entry.Raw {
	out := make([]entry.Raw, len(raws))
	for i, r := range raws {
		out[i] = entry.Raw{Format: r.Format, Data: slices.Clone(r.Data)}
	}
	return out
}
