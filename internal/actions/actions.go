// Package actions holds the built-in history actions: paste, delete and pin.
package actions

import (
	"context"
	"fmt"
	"log/slog"

	"go.klb.dev/clipdeck/internal/clip"
	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/history"
)

const (
	PasteOrder  = 0
	DeleteOrder = 254
	PinOrder    = 255
)

// Remover is the part of the store Delete needs.
type Remover interface {
	Remove(e *entry.Entry) error
}

// Pinner is the part of the store Pin needs.
type Pinner interface {
	SetPinned(e *entry.Entry, pinned bool) error
}

// Paste offers the entry's raw payloads back to the clipboard.
type Paste struct {
	Clipboard clip.Writer
}

var _ history.Promoting = (*Paste)(nil)

func (*Paste) Name() string { return "paste" }
func (*Paste) Order() int   { return PasteOrder }
func (*Paste) Promotes()    {}

func (*Paste) Title(context.Context, *entry.Entry) (string, error) { return "Paste", nil }

func (*Paste) CanPerform(_ context.Context, e *entry.Entry) (bool, error) {
	return e.Len() > 0, nil
}

func (p *Paste) Perform(_ context.Context, e *entry.Entry) error {
	if err := p.Clipboard.Write(e.Raws()); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	slog.Info("entry pasted", "id", e.ID(), "formats", len(e.Formats()))
	return nil
}

// Delete removes the entry from the history, and from persistence if it
// was pinned.
type Delete struct {
	Store       Remover
	Persistence history.Persistence
}

func (*Delete) Name() string { return "delete" }
func (*Delete) Order() int   { return DeleteOrder }

func (*Delete) Title(context.Context, *entry.Entry) (string, error) { return "Delete", nil }

func (*Delete) CanPerform(context.Context, *entry.Entry) (bool, error) { return true, nil }

func (d *Delete) Perform(ctx context.Context, e *entry.Entry) error {
	pinned := e.Pinned()
	if err := d.Store.Remove(e); err != nil {
		return err
	}
	if pinned && d.Persistence != nil {
		if err := d.Persistence.Delete(ctx, e); err != nil {
			return fmt.Errorf("persistence delete: %w", err)
		}
	}
	slog.Info("entry deleted", "id", e.ID(), "pinned", pinned)
	return nil
}

// Pin toggles whether the entry is kept across restarts.
type Pin struct {
	Store       Pinner
	Persistence history.Persistence
}

func (*Pin) Name() string { return "pin" }
func (*Pin) Order() int   { return PinOrder }

func (*Pin) Title(_ context.Context, e *entry.Entry) (string, error) {
	if e.Pinned() {
		return "Unpin from clipboard", nil
	}
	return "Pin to clipboard", nil
}

// CanPerform reports whether any item carries raw data worth persisting.
func (*Pin) CanPerform(_ context.Context, e *entry.Entry) (bool, error) {
	for _, r := range e.Raws() {
		if len(r.Data) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (p *Pin) Perform(ctx context.Context, e *entry.Entry) error {
	pin := !e.Pinned()
	if p.Persistence != nil {
		var err error
		if pin {
			err = p.Persistence.Persist(ctx, e)
		} else {
			err = p.Persistence.Delete(ctx, e)
		}
		if err != nil {
			return fmt.Errorf("persistence: %w", err)
		}
	}
	if err := p.Store.SetPinned(e, pin); err != nil {
		return err
	}
	slog.Info("entry pin changed", "id", e.ID(), "pinned", pin)
	return nil
}

// Default returns the built-in action set.
func Default(cb clip.Writer, store *history.Store, persist history.Persistence) []history.Action {
	return []history.Action{
		&Paste{Clipboard: cb},
		&Delete{Store: store, Persistence: persist},
		&Pin{Store: store, Persistence: persist},
	}
}
