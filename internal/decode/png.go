package decode

import (
	"bytes"
	"fmt"
	"image/png"

	"go.klb.dev/clipdeck/internal/entry"
)

// PNGDecoder accepts payloads that are already PNG encoded.
type PNGDecoder struct{}

func (PNGDecoder) CanDecode(f entry.Format) bool { return f == entry.FormatPNG }

func (PNGDecoder) Decode(f entry.Format, data []byte) (entry.Item, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return entry.Item{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return entry.Item{
		Format: f,
		Raw:    data,
		Value: entry.Image{
			Width:       cfg.Width,
			Height:      cfg.Height,
			DpiX:        96,
			DpiY:        96,
			PixelFormat: entry.PixelFormatBgra32,
			Encoded:     data,
		},
	}, nil
}
