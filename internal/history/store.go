// Package history holds the ordered, pin-aware clipboard history and
// serialises actions against the selected entry.
//
// The list is partitioned into a prefix of pinned entries, in the order they
// were pinned, followed by unpinned entries, most recently active first. The
// boundary is computed on demand and never stored. All list and selection
// state is guarded by the Store's mutex; events are published after it has
// been released.
package history

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"go.klb.dev/clipdeck/internal/entry"
)

var (
	ErrNotFound    = errors.New("entry not in history")
	ErrDuplicate   = errors.New("entry already in history")
	ErrPinned      = errors.New("pinned entries are not promoted")
	ErrInvalidPane = errors.New("invalid pane")
	ErrNoSelection = errors.New("nothing selected")

	ErrUnknownAction = errors.New("unknown action")
	ErrNotApplicable = errors.New("action not applicable to entry")
)

// Pane is one of the two independently navigable selection groups.
type Pane int

const (
	PaneEntries Pane = iota
	PaneActions
)

func (p Pane) String() string {
	switch p {
	case PaneEntries:
		return "entries"
	case PaneActions:
		return "actions"
	default:
		return fmt.Sprintf("pane(%d)", int(p))
	}
}

func (p Pane) valid() bool { return p == PaneEntries || p == PaneActions }

// Direction is a navigation step.
type Direction int

const (
	Next     Direction = 1
	Previous Direction = -1
)

// Selection is a snapshot of the current cursors.
type Selection struct {
	Entry  *entry.Entry
	Action Action
	Pane   Pane
}

// Store is the ordered history.
type Store struct {
	bus *Bus

	mu        sync.Mutex
	entries   []*entry.Entry
	selected  *entry.Entry
	actions   []Action
	actionIdx int
	pane      Pane
}

// NewStore returns an empty store publishing on bus. bus may be nil.
func NewStore(bus *Bus) *Store {
	return &Store{bus: bus, actionIdx: -1}
}

func (s *Store) publish(ev Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

// boundaryLocked returns the index of the first unpinned entry.
func (s *Store) boundaryLocked() int {
	for i, e := range s.entries {
		if !e.Pinned() {
			return i
		}
	}
	return len(s.entries)
}

func (s *Store) indexLocked(e *entry.Entry) int {
	return slices.Index(s.entries, e)
}

func (s *Store) insertLocked(e *entry.Entry) int {
	i := s.boundaryLocked()
	s.entries = slices.Insert(s.entries, i, e)
	return i
}

func (s *Store) removeAtLocked(i int) {
	s.entries = slices.Delete(s.entries, i, i+1)
}

// Insert places e at the first unpinned position and selects it. A pinned
// entry therefore lands at the end of the pinned prefix and an unpinned one
// at the head of the unpinned suffix.
func (s *Store) Insert(e *entry.Entry) error {
	s.mu.Lock()
	if slices.ContainsFunc(s.entries, func(x *entry.Entry) bool { return x.ID() == e.ID() }) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID())
	}
	i := s.insertLocked(e)
	s.selected = e
	total := len(s.entries)
	s.mu.Unlock()

	slog.Debug("history entry added", "id", e.ID(), "index", i, "pinned", e.Pinned(), "total", total)
	s.publish(Event{Kind: EntryAdded, Entry: e})
	return nil
}

// Remove deletes e. If it was selected, the selection moves to the entry now
// at the same index, or to the last entry if e was last.
func (s *Store) Remove(e *entry.Entry) error {
	s.mu.Lock()
	i := s.indexLocked(e)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID())
	}
	s.removeAtLocked(i)
	n := len(s.entries)
	if s.selected == e {
		switch {
		case n == 0:
			s.selected = nil
		case i == n:
			s.selected = s.entries[n-1]
		default:
			s.selected = s.entries[i]
		}
	}
	s.mu.Unlock()

	slog.Debug("history entry removed", "id", e.ID(), "total", n)
	s.publish(Event{Kind: EntryRemoved, Entry: e, Empty: n == 0})
	return nil
}

// Promote replaces e with a fresh clone at the head of the unpinned suffix
// and selects the clone.
func (s *Store) Promote(e *entry.Entry) (*entry.Entry, error) {
	s.mu.Lock()
	i := s.indexLocked(e)
	if i < 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, e.ID())
	}
	if e.Pinned() {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPinned, e.ID())
	}
	s.selected = nil
	s.removeAtLocked(i)
	clone := e.Clone()
	s.insertLocked(clone)
	s.selected = clone
	s.mu.Unlock()

	slog.Debug("history entry promoted", "from", e.ID(), "to", clone.ID())
	s.publish(Event{Kind: EntryRemoved, Entry: e})
	s.publish(Event{Kind: EntryAdded, Entry: clone})
	return clone, nil
}

// SetPinned changes e's pinned flag and moves it to the partition boundary:
// a newly pinned entry becomes the last pin, an unpinned one leads the
// unpinned suffix. The selection is unchanged.
func (s *Store) SetPinned(e *entry.Entry, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(e)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, e.ID())
	}
	if e.Pinned() == pinned {
		return nil
	}
	s.removeAtLocked(i)
	e.SetPinned(pinned)
	s.insertLocked(e)
	return nil
}

// Navigate moves the cursor of pane one step in dir, wrapping at both ends.
// Navigating an empty pane does nothing.
func (s *Store) Navigate(pane Pane, dir Direction) error {
	if !pane.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidPane, pane)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch pane {
	case PaneActions:
		if len(s.actions) > 0 {
			s.actionIdx = step(s.actionIdx, len(s.actions), dir)
		}
	case PaneEntries:
		if len(s.entries) > 0 {
			s.selected = s.entries[step(s.indexLocked(s.selected), len(s.entries), dir)]
		}
	}
	return nil
}

// step moves cur by dir within [0,n), wrapping. cur < 0 means no selection.
func step(cur, n int, dir Direction) int {
	if cur < 0 {
		if dir == Previous {
			return n - 1
		}
		return 0
	}
	return ((cur+int(dir))%n + n) % n
}

// SwitchPane makes pane the active navigation group.
func (s *Store) SwitchPane(pane Pane) error {
	if !pane.valid() {
		return fmt.Errorf("%w: %v", ErrInvalidPane, pane)
	}
	s.mu.Lock()
	s.pane = pane
	s.mu.Unlock()
	s.publish(Event{Kind: PaneSwitched, Pane: pane})
	return nil
}

// SetActions replaces the active action set, ordered by Order. The selected
// action is kept if it is still present, otherwise the first one is selected.
func (s *Store) SetActions(actions []Action) {
	sorted := slices.Clone(actions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })

	s.mu.Lock()
	defer s.mu.Unlock()
	var current string
	if s.actionIdx >= 0 && s.actionIdx < len(s.actions) {
		current = s.actions[s.actionIdx].Name()
	}
	s.actions = sorted
	s.actionIdx = -1
	for i, a := range sorted {
		if a.Name() == current {
			s.actionIdx = i
		}
	}
	if s.actionIdx < 0 && len(sorted) > 0 {
		s.actionIdx = 0
	}
}

// Select makes the entry with the given id current.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID() == id {
			s.selected = e
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// SelectAction makes the named action current.
func (s *Store) SelectAction(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.actions {
		if a.Name() == name {
			s.actionIdx = i
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Selection returns the current cursors.
func (s *Store) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel := Selection{Entry: s.selected, Pane: s.pane}
	if s.actionIdx >= 0 && s.actionIdx < len(s.actions) {
		sel.Action = s.actions[s.actionIdx]
	}
	return sel
}

// Entries returns a snapshot of the list in display order.
func (s *Store) Entries() []*entry.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Actions returns the active action set in display order.
func (s *Store) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.actions)
}

// Lookup returns the entry with the given id.
func (s *Store) Lookup(id string) (*entry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// PinnedCount returns the length of the pinned prefix.
func (s *Store) PinnedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundaryLocked()
}
