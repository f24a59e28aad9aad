package history

import (
	"context"

	"go.klb.dev/clipdeck/internal/entry"
)

// Action is something the user can do with an entry.
type Action interface {
	// Name is a stable identifier, e.g. "paste".
	Name() string
	// Title is the label shown to the user; it may depend on the entry.
	Title(ctx context.Context, e *entry.Entry) (string, error)
	// Order sorts the active action list, lowest first.
	Order() int
	CanPerform(ctx context.Context, e *entry.Entry) (bool, error)
	Perform(ctx context.Context, e *entry.Entry) error
}

// Promoting is implemented by actions after which an unpinned entry moves
// to the head of the history. The paste action is one.
type Promoting interface {
	Action
	Promotes()
}

// Persistence keeps pinned entries across restarts. Implementations match
// entries by content, so a clone is persisted iff its original is.
type Persistence interface {
	IsPersisted(ctx context.Context, e *entry.Entry) (bool, error)
	Persist(ctx context.Context, e *entry.Entry) error
	Delete(ctx context.Context, e *entry.Entry) error
}
