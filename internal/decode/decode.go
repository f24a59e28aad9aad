// Package decode turns native clipboard payloads into typed entry items.
//
// A Registry holds an ordered set of Decoders and dispatches each payload to
// the first one that accepts its format. Decoders are pure: they never touch
// the clipboard or the filesystem.
package decode

import (
	"errors"
	"fmt"
	"log/slog"

	"go.klb.dev/clipdeck/internal/entry"
)

var (
	// ErrUnsupportedFormat is returned when no decoder accepts a format.
	ErrUnsupportedFormat = errors.New("unsupported clipboard format")

	// ErrMalformed is returned when a payload is truncated or inconsistent.
	ErrMalformed = errors.New("malformed clipboard payload")
)

// Decoder converts one native payload into an entry.Item.
type Decoder interface {
	CanDecode(f entry.Format) bool
	Decode(f entry.Format, data []byte) (entry.Item, error)
}

// Registry dispatches payloads to the first matching Decoder.
type Registry struct {
	decoders []Decoder
}

// NewRegistry returns a registry that tries decoders in the given order.
func NewRegistry(decoders ...Decoder) *Registry {
	return &Registry{decoders: decoders}
}

// Default returns the standard decoder set. enc produces the persisted form
// of decoded bitmaps.
func Default(enc ImageEncoder) *Registry {
	return NewRegistry(
		&BitmapDecoder{Encoder: enc},
		PNGDecoder{},
		TextDecoder{},
		FileDropDecoder{},
	)
}

func (r *Registry) find(f entry.Format) Decoder {
	for _, d := range r.decoders {
		if d.CanDecode(f) {
			return d
		}
	}
	return nil
}

// CanDecode reports whether any registered decoder accepts f.
func (r *Registry) CanDecode(f entry.Format) bool {
	return r.find(f) != nil
}

// Decode decodes data with the first decoder that accepts f.
func (r *Registry) Decode(f entry.Format, data []byte) (entry.Item, error) {
	d := r.find(f)
	if d == nil {
		return entry.Item{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	return d.Decode(f, data)
}

// DecodeAll decodes every payload in order. A payload that cannot be decoded
// is kept as an Unknown item carrying its raw bytes, so one bad format never
// loses the rest of the snapshot.
func (r *Registry) DecodeAll(raws []entry.Raw) []entry.Item {
	items := make([]entry.Item, 0, len(raws))
	for _, raw := range raws {
		it, err := r.Decode(raw.Format, raw.Data)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedFormat) {
				slog.Warn("clipboard payload not decoded", "format", raw.Format, "size_bytes", len(raw.Data), "err", err)
			}
			it = entry.Item{Format: raw.Format, Raw: raw.Data, Value: entry.Unknown{}}
		}
		items = append(items, it)
	}
	return items
}
