package decode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/imaging"
)

// ErrUnsupportedPixelFormat is returned for bit depths outside the pixel
// format table. Use errors.As with *PixelFormatError for the offending depth.
var ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")

// PixelFormatError reports the bit depth that could not be mapped.
type PixelFormatError struct {
	BitCount uint16
}

func (e *PixelFormatError) Error() string {
	return fmt.Sprintf("%s: %d bits per pixel", ErrUnsupportedPixelFormat, e.BitCount)
}

func (e *PixelFormatError) Unwrap() error { return ErrUnsupportedPixelFormat }

// ImageEncoder produces the persistable encoding of decoded pixel rows.
type ImageEncoder interface {
	Encode(width, height int, res imaging.Resolution, pf entry.PixelFormat, rows []byte) ([]byte, error)
}

const (
	fileHeaderSize = 14  // BITMAPFILEHEADER
	v5HeaderSize   = 124 // BITMAPV5HEADER
	rgbQuadSize    = 4
	bitfieldsSize  = 12 // three DWORD masks following the header

	biBitfields = 3
)

// bitmapV5Header holds the BITMAPV5HEADER fields the decoder needs.
type bitmapV5Header struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   uint32
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
}

// parseV5Header reads a little-endian BITMAPV5HEADER from b.
func parseV5Header(b []byte) (bitmapV5Header, error) {
	if len(b) < v5HeaderSize {
		return bitmapV5Header{}, fmt.Errorf("%w: bitmap header needs %d bytes, have %d", ErrMalformed, v5HeaderSize, len(b))
	}
	le := binary.LittleEndian
	h := bitmapV5Header{
		Size:          le.Uint32(b[0:]),
		Width:         int32(le.Uint32(b[4:])),
		Height:        int32(le.Uint32(b[8:])),
		Planes:        le.Uint16(b[12:]),
		BitCount:      le.Uint16(b[14:]),
		Compression:   le.Uint32(b[16:]),
		SizeImage:     le.Uint32(b[20:]),
		XPelsPerMeter: int32(le.Uint32(b[24:])),
		YPelsPerMeter: int32(le.Uint32(b[28:])),
		ClrUsed:       le.Uint32(b[32:]),
	}
	if h.Size < v5HeaderSize {
		return h, fmt.Errorf("%w: header size %d is not a V5 header", ErrMalformed, h.Size)
	}
	return h, nil
}

// pixelFormatFor maps a bit depth onto a pixel format.
func pixelFormatFor(bitCount uint16) (entry.PixelFormat, error) {
	switch bitCount {
	case 2:
		return entry.PixelFormatBlackWhite, nil
	case 8:
		return entry.PixelFormatGray8, nil
	case 16:
		return entry.PixelFormatGray16, nil
	case 24:
		return entry.PixelFormatBgr24, nil
	case 32:
		return entry.PixelFormatBgra32, nil
	default:
		return entry.PixelFormatUnknown, &PixelFormatError{BitCount: bitCount}
	}
}

// BitmapDecoder decodes file-header-prefixed DIBV5 payloads.
type BitmapDecoder struct {
	Encoder ImageEncoder
}

func (d *BitmapDecoder) CanDecode(f entry.Format) bool {
	return f == entry.FormatBitmap || f == entry.FormatDIBV5
}

// Decode parses the bitmap, flips its rows into top-down order and hands
// them to the encoder.
func (d *BitmapDecoder) Decode(f entry.Format, data []byte) (entry.Item, error) {
	if !d.CanDecode(f) {
		return entry.Item{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
	bmp, err := ParseDIBV5(data)
	if err != nil {
		return entry.Item{}, err
	}

	res := imaging.FromPelsPerMeter(bmp.XPelsPerMeter, bmp.YPelsPerMeter)
	img := entry.Image{
		Width:       bmp.Width,
		Height:      bmp.Height,
		DpiX:        res.DpiX,
		DpiY:        res.DpiY,
		PixelFormat: bmp.PixelFormat,
	}
	if d.Encoder != nil {
		img.Encoded, err = d.Encoder.Encode(bmp.Width, bmp.Height, res, bmp.PixelFormat, bmp.Rows)
		if err != nil {
			return entry.Item{}, fmt.Errorf("encode bitmap: %w", err)
		}
	}
	return entry.Item{Format: f, Raw: data, Value: img}, nil
}

// DIB is a parsed bitmap with its pixel rows in top-down order.
type DIB struct {
	Width         int
	Height        int
	Stride        int
	XPelsPerMeter int32
	YPelsPerMeter int32
	PixelFormat   entry.PixelFormat
	Rows          []byte
}

// ParseDIBV5 parses a BITMAPFILEHEADER-prefixed DIBV5 buffer. Pixel data is
// located at file header + V5 header + colour table (+ bit-field masks), all
// measured from the start of data. Every offset is bounds-checked.
func ParseDIBV5(data []byte) (*DIB, error) {
	if len(data) < fileHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the file header", ErrMalformed, len(data))
	}
	h, err := parseV5Header(data[fileHeaderSize:])
	if err != nil {
		return nil, err
	}
	pf, err := pixelFormatFor(h.BitCount)
	if err != nil {
		return nil, err
	}
	if h.Width <= 0 || h.Height == 0 {
		return nil, fmt.Errorf("%w: bad dimensions %dx%d", ErrMalformed, h.Width, h.Height)
	}

	width := int(h.Width)
	height := int(h.Height)
	bottomUp := height > 0
	if !bottomUp {
		height = -height
	}

	var stride int
	if h.SizeImage != 0 {
		stride = int(h.SizeImage) / height
	} else {
		stride = ((width*int(h.BitCount) + 31) / 32) * 4
	}
	if stride <= 0 || stride*8 < width*int(h.BitCount) {
		return nil, fmt.Errorf("%w: stride %d too small for width %d", ErrMalformed, stride, width)
	}
	size := stride * height

	offset := uint64(fileHeaderSize) + uint64(h.Size) + uint64(h.ClrUsed)*rgbQuadSize
	if h.Compression == biBitfields {
		offset += bitfieldsSize
	}
	if offset+uint64(size) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: pixel data [%d,+%d) exceeds %d bytes", ErrMalformed, offset, size, len(data))
	}
	pixels := data[offset : offset+uint64(size)]

	rows := make([]byte, size)
	if bottomUp {
		for y := 0; y < height; y++ {
			copy(rows[(height-1-y)*stride:(height-y)*stride], pixels[y*stride:(y+1)*stride])
		}
	} else {
		copy(rows, pixels)
	}

	return &DIB{
		Width:         width,
		Height:        height,
		Stride:        stride,
		XPelsPerMeter: h.XPelsPerMeter,
		YPelsPerMeter: h.YPelsPerMeter,
		PixelFormat:   pf,
		Rows:          rows,
	}, nil
}
