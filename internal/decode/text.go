package decode

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/links"
)

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUTF16(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// TextDecoder decodes CF_TEXT (UTF-8) and CF_UNICODETEXT (UTF-16LE) payloads
// and records the link candidates found in them.
type TextDecoder struct{}

func (TextDecoder) CanDecode(f entry.Format) bool {
	return f == entry.FormatText || f == entry.FormatUnicodeText
}

func (d TextDecoder) Decode(f entry.Format, data []byte) (entry.Item, error) {
	var text string
	switch f {
	case entry.FormatText:
		text = string(data)
	case entry.FormatUnicodeText:
		if len(data)%2 != 0 {
			return entry.Item{}, fmt.Errorf("%w: odd-length UTF-16 payload", ErrMalformed)
		}
		s, err := decodeUTF16(data)
		if err != nil {
			return entry.Item{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		text = s
	default:
		return entry.Item{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	text = strings.TrimRight(text, "\x00")
	return entry.Item{
		Format: f,
		Raw:    data,
		Value:  entry.Text{Text: text, Links: links.Extract(text)},
	}, nil
}
