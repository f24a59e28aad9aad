package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Coordinator runs the selected action against the selected entry, one
// call at a time. Callers queue rather than fail, so no paste is dropped.
//
// Lock order is fixed: the coordinator's gate is taken first and the store's
// list gate only inside it (Selection, Promote). The store never calls back
// into the coordinator.
type Coordinator struct {
	store   *Store
	persist Persistence
	bus     *Bus

	mu sync.Mutex
}

// NewCoordinator returns a coordinator for store. persist decides whether an
// entry is pinned after the action ran; bus may be nil.
func NewCoordinator(store *Store, persist Persistence, bus *Bus) *Coordinator {
	return &Coordinator{store: store, persist: persist, bus: bus}
}

// PerformPaste runs the selected action on the selected entry. Only after it
// succeeds is the entry promoted, and only for promoting actions on entries
// that are not persisted.
func (c *Coordinator) PerformPaste(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performLocked(ctx)
}

// Perform selects the entry and action by id and name, then behaves like
// PerformPaste. Selection and execution happen under the same gate, so a
// concurrent caller cannot change the target in between.
func (c *Coordinator) Perform(ctx context.Context, entryID, action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Select(entryID); err != nil {
		return err
	}
	if err := c.store.SelectAction(action); err != nil {
		return err
	}
	return c.performLocked(ctx)
}

func (c *Coordinator) performLocked(ctx context.Context) error {
	sel := c.store.Selection()
	if sel.Entry == nil || sel.Action == nil {
		return ErrNoSelection
	}
	e, act := sel.Entry, sel.Action

	ok, err := act.CanPerform(ctx, e)
	if err != nil {
		return fmt.Errorf("%s: %w", act.Name(), err)
	}
	if !ok {
		return fmt.Errorf("%s: %w: %s", act.Name(), ErrNotApplicable, e.ID())
	}
	if err := act.Perform(ctx, e); err != nil {
		return fmt.Errorf("%s: %w", act.Name(), err)
	}
	slog.Debug("action performed", "action", act.Name(), "entry", e.ID())

	if _, promotes := act.(Promoting); promotes {
		persisted := e.Pinned()
		if !persisted && c.persist != nil {
			persisted, err = c.persist.IsPersisted(ctx, e)
			if err != nil {
				return fmt.Errorf("persistence lookup: %w", err)
			}
		}
		if !persisted {
			if _, err := c.store.Promote(e); err != nil {
				return err
			}
		}
	}

	if c.bus != nil {
		c.bus.Publish(Event{Kind: PastePerformed, Entry: e, Action: act.Name()})
	}
	return nil
}
