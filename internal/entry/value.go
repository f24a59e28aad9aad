package entry

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies the variant of a decoded value.
type Kind int

const (
	KindUnknown Kind = iota
	KindText
	KindImage
	KindFileList
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindFileList:
		return "files"
	default:
		return "unknown"
	}
}

// Value is the decoded form of an Item. The set of variants is closed.
type Value interface {
	Kind() Kind
	cloneValue() Value
}

// Text is a decoded text payload together with the link candidates found in it.
type Text struct {
	Text  string
	Links []string
}

func (Text) Kind() Kind { return KindText }

func (t Text) cloneValue() Value {
	if t.Links != nil {
		t.Links = append([]string(nil), t.Links...)
	}
	return t
}

// PixelFormat names the layout of decoded pixel rows.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBlackWhite
	PixelFormatGray8
	PixelFormatGray16
	PixelFormatBgr24
	PixelFormatBgra32
)

// BitsPerPixel returns the storage width of one pixel, 0 if unknown.
func (p PixelFormat) BitsPerPixel() int {
	switch p {
	case PixelFormatBlackWhite:
		return 1
	case PixelFormatGray8:
		return 8
	case PixelFormatGray16:
		return 16
	case PixelFormatBgr24:
		return 24
	case PixelFormatBgra32:
		return 32
	default:
		return 0
	}
}

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBlackWhite:
		return "BlackWhite"
	case PixelFormatGray8:
		return "Gray8"
	case PixelFormatGray16:
		return "Gray16"
	case PixelFormatBgr24:
		return "Bgr24"
	case PixelFormatBgra32:
		return "Bgra32"
	default:
		return "Unknown"
	}
}

// Image is a decoded bitmap. Encoded holds a persistable encoding (PNG).
type Image struct {
	Width       int
	Height      int
	DpiX        float64
	DpiY        float64
	PixelFormat PixelFormat
	Encoded     []byte
}

func (Image) Kind() Kind { return KindImage }

func (img Image) cloneValue() Value {
	img.Encoded = cloneBytes(img.Encoded)
	return img
}

func (img Image) String() string {
	return fmt.Sprintf("image %dx%d", img.Width, img.Height)
}

// FileList is a decoded list of file paths (e.g. a file-manager copy).
type FileList struct {
	Paths []string
}

func (FileList) Kind() Kind { return KindFileList }

func (f FileList) cloneValue() Value {
	f.Paths = append([]string(nil), f.Paths...)
	return f
}

func (f FileList) String() string {
	names := make([]string, len(f.Paths))
	for i, p := range f.Paths {
		names[i] = filepath.Base(p)
	}
	return strings.Join(names, ", ")
}

// Unknown marks a payload no decoder could handle. The item's Raw bytes are
// still kept.
type Unknown struct{}

func (Unknown) Kind() Kind          { return KindUnknown }
func (u Unknown) cloneValue() Value { return u }
