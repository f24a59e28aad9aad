// Package imaging turns decoded pixel rows into a persistable encoding.
package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"go.klb.dev/clipdeck/internal/entry"
)

// Resolution is the device-independent resolution of an image in dots per inch.
type Resolution struct {
	DpiX float64
	DpiY float64
}

// FromPelsPerMeter converts bitmap-header resolution fields to DPI.
// Zero or negative values fall back to 96 DPI.
func FromPelsPerMeter(x, y int32) Resolution {
	conv := func(v int32) float64 {
		if v <= 0 {
			return 96
		}
		return float64(v) * 0.0254
	}
	return Resolution{DpiX: conv(x), DpiY: conv(y)}
}

// ErrShortRows is returned when fewer bytes than width*height*bpp are supplied.
var ErrShortRows = errors.New("pixel rows shorter than image dimensions")

// PNGEncoder encodes top-down pixel rows as PNG. The zero value is ready to use.
type PNGEncoder struct {
	Compression png.CompressionLevel
}

// Encode builds an image from rows and returns its PNG encoding. rows holds
// height rows of equal stride; the stride may exceed the packed row width.
// The standard PNG encoder does not write pHYs, so the resolution is dropped.
func (e PNGEncoder) Encode(width, height int, _ Resolution, pf entry.PixelFormat, rows []byte) ([]byte, error) {
	img, err := Image(width, height, pf, rows)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: e.Compression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Image converts raw pixel rows into an image.Image.
func Image(width, height int, pf entry.PixelFormat, rows []byte) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", width, height)
	}
	bpp := pf.BitsPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("unknown pixel format %v", pf)
	}
	stride := len(rows) / height
	if stride*8 < width*bpp {
		return nil, fmt.Errorf("%w: stride %d, need %d bits per row", ErrShortRows, stride, width*bpp)
	}

	rect := image.Rect(0, 0, width, height)
	switch pf {
	case entry.PixelFormatBlackWhite:
		img := image.NewPaletted(rect, color.Palette{color.Black, color.White})
		for y := 0; y < height; y++ {
			row := rows[y*stride:]
			for x := 0; x < width; x++ {
				if row[x/8]&(0x80>>(x%8)) != 0 {
					img.SetColorIndex(x, y, 1)
				}
			}
		}
		return img, nil

	case entry.PixelFormatGray8:
		img := image.NewGray(rect)
		for y := 0; y < height; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+width], rows[y*stride:])
		}
		return img, nil

	case entry.PixelFormatGray16:
		img := image.NewGray16(rect)
		for y := 0; y < height; y++ {
			row := rows[y*stride:]
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: binary.LittleEndian.Uint16(row[x*2:])})
			}
		}
		return img, nil

	case entry.PixelFormatBgr24, entry.PixelFormatBgra32:
		n := bpp / 8
		img := image.NewNRGBA(rect)
		for y := 0; y < height; y++ {
			row := rows[y*stride:]
			dst := img.Pix[y*img.Stride:]
			for x := 0; x < width; x++ {
				px := row[x*n:]
				dst[x*4+0] = px[2]
				dst[x*4+1] = px[1]
				dst[x*4+2] = px[0]
				dst[x*4+3] = 0xff
				if n == 4 {
					dst[x*4+3] = px[3]
				}
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("unsupported pixel format %v", pf)
}
