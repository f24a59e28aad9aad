package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.klb.dev/clipdeck/internal/entry"
)

// DefaultIdle bounds how long one Step waits for a clipboard change, so a
// stopped loop notices within that time even on a quiet clipboard.
const DefaultIdle = time.Second

// Source is the clipboard side of a capture.
type Source interface {
	Read() ([]entry.Raw, error)
	Watch() <-chan struct{}
}

// Decoder turns raw payloads into entry items.
type Decoder interface {
	DecodeAll(raws []entry.Raw) []entry.Item
}

// Inserter receives captured entries.
type Inserter interface {
	Insert(e *entry.Entry) error
}

// Loader returns persisted pinned entries in pin order.
type Loader interface {
	Load(ctx context.Context) ([]entry.Snapshot, error)
}

// Capturer is the unit of work a Loop repeats.
type Capturer struct {
	Source  Source
	Decoder Decoder
	Store   Inserter
	Idle    time.Duration

	lastKey string
}

// Step waits for one clipboard change and inserts it into the store. It
// returns nil without capturing if nothing changed within Idle, if the
// clipboard is empty, or if the contents equal the previous capture.
func (c *Capturer) Step(ctx context.Context) error {
	idle := c.Idle
	if idle <= 0 {
		idle = DefaultIdle
	}
	t := time.NewTimer(idle)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
		return nil
	case <-c.Source.Watch():
	}

	raws, err := c.Source.Read()
	if err != nil {
		return fmt.Errorf("clipboard read: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	key := entry.ContentKey(raws)
	if key == c.lastKey {
		slog.Debug("clipboard unchanged, skipping capture")
		return nil
	}
	c.lastKey = key

	e := entry.New(c.Decoder.DecodeAll(raws))
	if err := c.Store.Insert(e); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	slog.Info("clipboard captured", "id", e.ID(), "formats", e.Len(), "preview", e.Preview(40))
	return nil
}

// Restore decodes the persisted pinned entries and inserts them pinned, in
// the order the loader returns them. It returns the number restored.
func (c *Capturer) Restore(ctx context.Context, loader Loader) (int, error) {
	snaps, err := loader.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pinned entries: %w", err)
	}
	for i, s := range snaps {
		e := entry.Restore(s.ID, s.Created, c.Decoder.DecodeAll(s.Raws), true)
		if err := c.Store.Insert(e); err != nil {
			return i, fmt.Errorf("restore %s: %w", s.ID, err)
		}
	}
	if len(snaps) > 0 {
		slog.Info("pinned entries restored", "count", len(snaps))
	}
	return len(snaps), nil
}
