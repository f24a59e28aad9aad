// Package entry defines the clipboard history data model.
//
// An Entry is one captured clipboard snapshot. It carries one Item per native
// format the clipboard exposed at capture time, in capture order. Each Item
// keeps the undecoded bytes so the snapshot can be offered back to the system
// clipboard losslessly, plus a decoded Value for display and classification.
package entry

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rivo/uniseg"
)

// Raw is a single undecoded clipboard payload as produced by a clipboard source.
type Raw struct {
	Format Format
	Data   []byte
}

// Item is one native-format payload within an Entry.
type Item struct {
	Format Format
	Raw    []byte
	Value  Value
}

// Kind returns the variant of the decoded value, KindUnknown if there is none.
func (it Item) Kind() Kind {
	if it.Value == nil {
		return KindUnknown
	}
	return it.Value.Kind()
}

func (it Item) clone() Item {
	out := Item{Format: it.Format, Raw: cloneBytes(it.Raw)}
	if it.Value != nil {
		out.Value = it.Value.cloneValue()
	}
	return out
}

// Entry is one captured clipboard snapshot.
type Entry struct {
	id      string
	created time.Time
	items   []Item
	pinned  atomic.Bool
}

// New creates an Entry with a fresh identity.
func New(items []Item) *Entry {
	return Restore(newID(), time.Now(), items, false)
}

// Restore rebuilds an Entry with a known identity, e.g. one reloaded from the
// pin store. items is copied.
func Restore(id string, created time.Time, items []Item, pinned bool) *Entry {
	e := &Entry{
		id:      id,
		created: created,
		items:   make([]Item, len(items)),
	}
	for i, it := range items {
		e.items[i] = it.clone()
	}
	e.pinned.Store(pinned)
	return e
}

// entropy is shared so ids minted within one millisecond still sort in
// creation order.
var entropy = &ulid.LockedMonotonicReader{MonotonicReader: ulid.Monotonic(rand.Reader, 0)}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func (e *Entry) ID() string         { return e.id }
func (e *Entry) Created() time.Time { return e.created }
func (e *Entry) Pinned() bool       { return e.pinned.Load() }
func (e *Entry) SetPinned(p bool)   { e.pinned.Store(p) }
func (e *Entry) Len() int           { return len(e.items) }
func (e *Entry) Item(i int) Item    { return e.items[i] }
func (e *Entry) String() string     { return e.id }

// Items returns a copy of the entry's items. The byte slices are shared and
// must be treated as read-only.
func (e *Entry) Items() []Item {
	out := make([]Item, len(e.items))
	copy(out, e.items)
	return out
}

// Raws returns the undecoded payloads in capture order.
func (e *Entry) Raws() []Raw {
	out := make([]Raw, len(e.items))
	for i, it := range e.items {
		out[i] = Raw{Format: it.Format, Data: it.Raw}
	}
	return out
}

// Formats returns the native format ids in capture order.
func (e *Entry) Formats() []Format {
	out := make([]Format, len(e.items))
	for i, it := range e.items {
		out[i] = it.Format
	}
	return out
}

// Clone returns a new Entry with a fresh identity and deep copies of every
// item. The clone is never pinned.
func (e *Entry) Clone() *Entry {
	return New(e.items)
}

// ContentKey identifies the entry's content independently of its identity.
// Capture uses it to skip re-inserting an unchanged clipboard.
func (e *Entry) ContentKey() string {
	return ContentKey(e.Raws())
}

// ContentKey hashes a set of raw payloads in order.
func ContentKey(raws []Raw) string {
	h := sha256.New()
	var hdr [12]byte
	for _, r := range raws {
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(r.Format))
		binary.LittleEndian.PutUint64(hdr[4:12], uint64(len(r.Data)))
		h.Write(hdr[:])
		h.Write(r.Data)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Text returns the first decoded text payload, if any.
func (e *Entry) Text() (Text, bool) {
	for _, it := range e.items {
		if t, ok := it.Value.(Text); ok {
			return t, true
		}
	}
	return Text{}, false
}

// Image returns the first decoded image payload, if any.
func (e *Entry) Image() (Image, bool) {
	for _, it := range e.items {
		if img, ok := it.Value.(Image); ok {
			return img, true
		}
	}
	return Image{}, false
}

// Preview returns a single-line summary of the entry limited to n grapheme
// clusters. Non-text entries are summarised by kind.
func (e *Entry) Preview(n int) string {
	if t, ok := e.Text(); ok {
		return truncate(strings.Join(strings.Fields(t.Text), " "), n)
	}
	for _, it := range e.items {
		switch v := it.Value.(type) {
		case Image:
			return v.String()
		case FileList:
			return truncate(v.String(), n)
		}
	}
	if len(e.items) == 0 {
		return ""
	}
	return e.items[0].Format.String()
}

func truncate(s string, n int) string {
	if n <= 0 || uniseg.GraphemeClusterCount(s) <= n {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for i := 0; i < n && g.Next(); i++ {
		b.WriteString(g.Str())
	}
	b.WriteString("…")
	return b.String()
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
