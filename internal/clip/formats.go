package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding/unicode"

	"go.klb.dev/clipdeck/internal/entry"
)

// payload is the single value a text-or-image clipboard holds.
type payload struct {
	image bool
	data  []byte
}

// writable picks what a text-or-image clipboard should hold for raws. Every
// write replaces the clipboard contents, so an image wins over text. UTF-16
// text is converted to UTF-8; other formats are skipped.
func writable(raws []entry.Raw) (payload, error) {
	var text []byte
	for _, r := range raws {
		switch r.Format {
		case entry.FormatPNG:
			return payload{image: true, data: r.Data}, nil
		case entry.FormatText:
			if text == nil {
				text = r.Data
			}
		case entry.FormatUnicodeText:
			if text == nil {
				dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
				u, err := dec.Bytes(r.Data)
				if err != nil {
					return payload{}, fmt.Errorf("utf-16 text: %w", err)
				}
				text = bytes.TrimRight(u, "\x00")
			}
		default:
			slog.Debug("skipping clipboard format", "format", r.Format)
		}
	}
	if text == nil {
		return payload{}, ErrNothingWritable
	}
	return payload{data: text}, nil
}

// Native Windows formats whose clipboard handle is a GDI object or owner
// drawn rather than a global memory block.
const (
	cfMetafilePict    = 3
	cfPalette         = 9
	cfEnhMetafile     = 14
	cfOwnerDisplay    = 0x80
	cfDspBitmap       = 0x82
	cfDspMetafilePict = 0x83
	cfDspEnhMetafile  = 0x8E
	cfPrivateFirst    = 0x200
	cfGDIObjLast      = 0x3FF
)

// memoryBacked reports whether the data of native format f can be copied
// out of a global memory block.
func memoryBacked(f uint32) bool {
	switch f {
	case uint32(entry.FormatBitmap), cfMetafilePict, cfPalette, cfEnhMetafile,
		cfOwnerDisplay, cfDspBitmap, cfDspMetafilePict, cfDspEnhMetafile:
		return false
	}
	return f < cfPrivateFirst || f > cfGDIObjLast
}

const (
	bmpFileHeaderSize = 14
	bmpInfoHeaderSize = 40
	bmpBitfields      = 3
)

var errShortDIB = errors.New("dib shorter than its info header")

// withFileHeader prefixes a packed DIB with a BITMAPFILEHEADER, the layout
// the bitmap decoder reads.
func withFileHeader(dib []byte) ([]byte, error) {
	if len(dib) < bmpInfoHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", errShortDIB, len(dib))
	}
	le := binary.LittleEndian
	off := uint32(bmpFileHeaderSize) + le.Uint32(dib[0:4]) + le.Uint32(dib[32:36])*4
	if le.Uint32(dib[16:20]) == bmpBitfields {
		off += 12
	}
	out := make([]byte, bmpFileHeaderSize+len(dib))
	out[0], out[1] = 'B', 'M'
	le.PutUint32(out[2:6], uint32(len(out)))
	le.PutUint32(out[10:14], off)
	copy(out[bmpFileHeaderSize:], dib)
	return out, nil
}

// stripFileHeader returns the packed DIB inside a file-header-prefixed
// bitmap.
func stripFileHeader(b []byte) []byte {
	if len(b) >= bmpFileHeaderSize && b[0] == 'B' && b[1] == 'M' {
		return b[bmpFileHeaderSize:]
	}
	return b
}

// fromNative converts one native clipboard format into a capture payload.
// pngID is the id the system registered for "PNG". ok is false for data
// that should not be captured.
func fromNative(id uint32, data []byte, pngID uint32) (r entry.Raw, ok bool) {
	switch {
	case pngID != 0 && id == pngID:
		return entry.Raw{Format: entry.FormatPNG, Data: data}, true
	case entry.Format(id) == entry.FormatPNG:
		// Some other registered format landed on the id we use for PNG.
		return entry.Raw{}, false
	case entry.Format(id) == entry.FormatDIBV5:
		b, err := withFileHeader(data)
		if err != nil {
			slog.Debug("skipping dibv5", "err", err)
			return entry.Raw{}, false
		}
		return entry.Raw{Format: entry.FormatDIBV5, Data: b}, true
	}
	return entry.Raw{Format: entry.Format(id), Data: data}, true
}

// nativeItem is one format to place on the system clipboard.
type nativeItem struct {
	id   uint32
	data []byte
}

// toNative maps captured payloads back onto native formats for a paste.
// Bitmaps go back as a single CF_DIBV5; formats that need a GDI handle are
// dropped.
func toNative(raws []entry.Raw, pngID uint32) ([]nativeItem, error) {
	var out []nativeItem
	seen := make(map[uint32]bool, len(raws))
	add := func(id uint32, data []byte) {
		if seen[id] {
			return
		}
		seen[id] = true
		out = append(out, nativeItem{id: id, data: data})
	}
	for _, r := range raws {
		switch r.Format {
		case entry.FormatPNG:
			if pngID != 0 {
				add(pngID, r.Data)
			}
		case entry.FormatBitmap, entry.FormatDIBV5:
			add(uint32(entry.FormatDIBV5), stripFileHeader(r.Data))
		default:
			if memoryBacked(uint32(r.Format)) {
				add(uint32(r.Format), r.Data)
			}
		}
	}
	if len(out) == 0 {
		return nil, ErrNothingWritable
	}
	return out, nil
}
