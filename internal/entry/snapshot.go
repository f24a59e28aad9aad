package entry

import "time"

// Snapshot is the undecoded, persistable form of an Entry.
type Snapshot struct {
	ID      string
	Created time.Time
	Raws    []Raw
}

// Snapshot returns the entry's identity and raw payloads.
func (e *Entry) Snapshot() Snapshot {
	return Snapshot{ID: e.id, Created: e.created, Raws: e.Raws()}
}
