package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipdeck/internal/entry"
	"go.klb.dev/clipdeck/internal/imaging"
)

// recordingEncoder captures what the bitmap decoder hands to the encoder.
type recordingEncoder struct {
	width, height int
	res           imaging.Resolution
	pf            entry.PixelFormat
	rows          []byte
}

func (r *recordingEncoder) Encode(w, h int, res imaging.Resolution, pf entry.PixelFormat, rows []byte) ([]byte, error) {
	r.width, r.height, r.res, r.pf = w, h, res, pf
	r.rows = append([]byte(nil), rows...)
	return []byte("encoded"), nil
}

type dibSpec struct {
	width, height int32
	bitCount      uint16
	compression   uint32
	sizeImage     uint32
	clrUsed       uint32
	xPels, yPels  int32
	gap           int // bytes between header and pixels (colour table, masks)
	pixels        []byte
}

func buildDIB(s dibSpec) []byte {
	var buf bytes.Buffer
	// BITMAPFILEHEADER: contents are not interpreted.
	buf.Write([]byte{'B', 'M'})
	buf.Write(make([]byte, 12))

	hdr := make([]byte, 124)
	le := binary.LittleEndian
	le.PutUint32(hdr[0:], 124)
	le.PutUint32(hdr[4:], uint32(s.width))
	le.PutUint32(hdr[8:], uint32(s.height))
	le.PutUint16(hdr[12:], 1)
	le.PutUint16(hdr[14:], s.bitCount)
	le.PutUint32(hdr[16:], s.compression)
	le.PutUint32(hdr[20:], s.sizeImage)
	le.PutUint32(hdr[24:], uint32(s.xPels))
	le.PutUint32(hdr[28:], uint32(s.yPels))
	le.PutUint32(hdr[32:], s.clrUsed)
	buf.Write(hdr)
	buf.Write(bytes.Repeat([]byte{0xEE}, s.gap))
	buf.Write(s.pixels)
	return buf.Bytes()
}

// 2x2 24-bit, stride 8. Stored bottom row first.
var pixels2x2 = []byte{
	// bottom row: blue, white, pad
	0xff, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00,
	// top row: red, green, pad
	0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0x00, 0x00,
}

var want2x2TopDown = []byte{
	0x00, 0x00, 0xff, 0x00, 0xff, 0x00, 0x00, 0x00,
	0xff, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00,
}

func TestBitmapDecodeReversesRows(t *testing.T) {
	enc := &recordingEncoder{}
	d := &BitmapDecoder{Encoder: enc}
	raw := buildDIB(dibSpec{width: 2, height: 2, bitCount: 24, sizeImage: 16, xPels: 3780, yPels: 3780, pixels: pixels2x2})

	it, err := d.Decode(entry.FormatDIBV5, raw)
	require.NoError(t, err)

	assert.Equal(t, want2x2TopDown, enc.rows)
	assert.Equal(t, 2, enc.width)
	assert.Equal(t, 2, enc.height)
	assert.Equal(t, entry.PixelFormatBgr24, enc.pf)
	assert.InDelta(t, 96.0, enc.res.DpiX, 0.1)

	img, ok := it.Value.(entry.Image)
	require.True(t, ok)
	assert.Equal(t, []byte("encoded"), img.Encoded)
	assert.Equal(t, raw, it.Raw, "raw bytes are kept for re-offer")
	assert.Equal(t, entry.FormatDIBV5, it.Format)
}

func TestBitmapDecodeBitfieldsAndColorTable(t *testing.T) {
	enc := &recordingEncoder{}
	d := &BitmapDecoder{Encoder: enc}
	raw := buildDIB(dibSpec{
		width: 2, height: 2, bitCount: 24, sizeImage: 16,
		compression: biBitfields, clrUsed: 2, gap: 2*4 + 12,
		pixels: pixels2x2,
	})

	_, err := d.Decode(entry.FormatBitmap, raw)
	require.NoError(t, err)
	assert.Equal(t, want2x2TopDown, enc.rows)
}

func TestBitmapDecodeTopDownAndImplicitStride(t *testing.T) {
	// Negative height: rows are already top-down. SizeImage 0: stride is
	// the DWORD-aligned row width.
	raw := buildDIB(dibSpec{width: 2, height: -2, bitCount: 24, pixels: want2x2TopDown})
	dib, err := ParseDIBV5(raw)
	require.NoError(t, err)
	assert.Equal(t, 8, dib.Stride)
	assert.Equal(t, 2, dib.Height)
	assert.Equal(t, want2x2TopDown, dib.Rows)
}

func TestBitmapDecodeEndToEndPNG(t *testing.T) {
	d := &BitmapDecoder{Encoder: imaging.PNGEncoder{}}
	raw := buildDIB(dibSpec{width: 2, height: 2, bitCount: 24, sizeImage: 16, pixels: pixels2x2})

	it, err := d.Decode(entry.FormatDIBV5, raw)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(it.Value.(entry.Image).Encoded))
	require.NoError(t, err)

	r, g, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r, g, b}, "top-left is red")
	r, g, b, _ = img.At(0, 1).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b}, "bottom-left is blue")
}

func TestBitmapDecodeUnsupportedBitDepth(t *testing.T) {
	d := &BitmapDecoder{Encoder: &recordingEncoder{}}
	raw := buildDIB(dibSpec{width: 2, height: 2, bitCount: 4, sizeImage: 8, pixels: make([]byte, 8)})

	_, err := d.Decode(entry.FormatDIBV5, raw)
	require.ErrorIs(t, err, ErrUnsupportedPixelFormat)

	var pfErr *PixelFormatError
	require.True(t, errors.As(err, &pfErr))
	assert.Equal(t, uint16(4), pfErr.BitCount)
}

func TestBitmapDecodePixelFormatTable(t *testing.T) {
	for bits, want := range map[uint16]entry.PixelFormat{
		2:  entry.PixelFormatBlackWhite,
		8:  entry.PixelFormatGray8,
		16: entry.PixelFormatGray16,
		24: entry.PixelFormatBgr24,
		32: entry.PixelFormatBgra32,
	} {
		got, err := pixelFormatFor(bits)
		require.NoError(t, err)
		assert.Equal(t, want, got, "bits %d", bits)
	}
	for _, bits := range []uint16{0, 1, 4, 15, 48} {
		_, err := pixelFormatFor(bits)
		assert.ErrorIs(t, err, ErrUnsupportedPixelFormat, "bits %d", bits)
	}
}

func TestBitmapDecodeMalformed(t *testing.T) {
	d := &BitmapDecoder{}
	for name, raw := range map[string][]byte{
		"empty":          nil,
		"header only":    make([]byte, 20),
		"pixels missing": buildDIB(dibSpec{width: 2, height: 2, bitCount: 24, sizeImage: 16, pixels: pixels2x2[:10]}),
		"zero height":    buildDIB(dibSpec{width: 2, height: 0, bitCount: 24, pixels: pixels2x2}),
		"tiny stride":    buildDIB(dibSpec{width: 20, height: 2, bitCount: 24, sizeImage: 16, pixels: pixels2x2}),
	} {
		_, err := d.Decode(entry.FormatDIBV5, raw)
		assert.ErrorIs(t, err, ErrMalformed, name)
	}
}

func TestRegistry(t *testing.T) {
	r := Default(&recordingEncoder{})

	assert.True(t, r.CanDecode(entry.FormatDIBV5))
	assert.True(t, r.CanDecode(entry.FormatUnicodeText))
	assert.False(t, r.CanDecode(entry.FormatDIB))

	_, err := r.Decode(entry.FormatDIB, []byte{1})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type claimAll struct{ name string }

func (claimAll) CanDecode(entry.Format) bool { return true }
func (c claimAll) Decode(f entry.Format, data []byte) (entry.Item, error) {
	return entry.Item{Format: f, Raw: data, Value: entry.Text{Text: c.name}}, nil
}

func TestRegistryFirstMatchWins(t *testing.T) {
	r := NewRegistry(claimAll{"first"}, claimAll{"second"})
	it, err := r.Decode(entry.FormatText, nil)
	require.NoError(t, err)
	assert.Equal(t, "first", it.Value.(entry.Text).Text)
}

func TestDecodeAllKeepsUndecodable(t *testing.T) {
	r := Default(&recordingEncoder{})
	badBitmap := buildDIB(dibSpec{width: 2, height: 2, bitCount: 4, sizeImage: 8, pixels: make([]byte, 8)})

	items := r.DecodeAll([]entry.Raw{
		{Format: entry.FormatText, Data: []byte("see example.com")},
		{Format: entry.FormatDIB, Data: []byte{1, 2, 3}},
		{Format: entry.FormatDIBV5, Data: badBitmap},
	})
	require.Len(t, items, 3)

	assert.Equal(t, entry.KindText, items[0].Kind())
	assert.Equal(t, []string{"example.com"}, items[0].Value.(entry.Text).Links)

	assert.Equal(t, entry.KindUnknown, items[1].Kind())
	assert.Equal(t, []byte{1, 2, 3}, items[1].Raw)

	assert.Equal(t, entry.KindUnknown, items[2].Kind())
	assert.Equal(t, badBitmap, items[2].Raw)
}

func TestTextDecoder(t *testing.T) {
	var d TextDecoder

	it, err := d.Decode(entry.FormatUnicodeText, []byte{'h', 0, 'i', 0, ' ', 0, 'a', 0, '.', 0, 'i', 0, 'o', 0, 0, 0})
	require.NoError(t, err)
	txt := it.Value.(entry.Text)
	assert.Equal(t, "hi a.io", txt.Text)
	assert.Equal(t, []string{"a.io"}, txt.Links)

	_, err = d.Decode(entry.FormatUnicodeText, []byte{'h'})
	assert.ErrorIs(t, err, ErrMalformed)

	it, err = d.Decode(entry.FormatText, []byte("plain\x00"))
	require.NoError(t, err)
	assert.Equal(t, "plain", it.Value.(entry.Text).Text)
}

func TestFileDropDecoder(t *testing.T) {
	hdr := make([]byte, dropFilesSize)
	binary.LittleEndian.PutUint32(hdr[0:], dropFilesSize)
	binary.LittleEndian.PutUint32(hdr[16:], 1)
	var list []byte
	for _, r := range "C:\\a.txt\x00D:\\b.png\x00\x00" {
		list = append(list, byte(r), 0)
	}

	it, err := FileDropDecoder{}.Decode(entry.FormatHDrop, append(hdr, list...))
	require.NoError(t, err)
	assert.Equal(t, []string{"C:\\a.txt", "D:\\b.png"}, it.Value.(entry.FileList).Paths)

	ansi := make([]byte, dropFilesSize)
	binary.LittleEndian.PutUint32(ansi[0:], dropFilesSize)
	it, err = FileDropDecoder{}.Decode(entry.FormatHDrop, append(ansi, []byte("/tmp/x\x00\x00")...))
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/x"}, it.Value.(entry.FileList).Paths)

	_, err = FileDropDecoder{}.Decode(entry.FormatHDrop, []byte{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPNGDecoder(t *testing.T) {
	encoded, err := imaging.PNGEncoder{}.Encode(2, 2, imaging.Resolution{}, entry.PixelFormatBgr24, want2x2TopDown)
	require.NoError(t, err)

	it, err := PNGDecoder{}.Decode(entry.FormatPNG, encoded)
	require.NoError(t, err)
	img := it.Value.(entry.Image)
	assert.Equal(t, 2, img.Width)
	assert.Equal(t, encoded, img.Encoded)

	_, err = PNGDecoder{}.Decode(entry.FormatPNG, []byte("not a png"))
	assert.ErrorIs(t, err, ErrMalformed)
}
