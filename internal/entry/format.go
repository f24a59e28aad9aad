package entry

import "strconv"

// Format is a native clipboard format identifier.
type Format uint32

// Standard clipboard format ids. FormatPNG sits in the registered-format
// range; backends that register "PNG" dynamically map their id onto it.
const (
	FormatText        Format = 1
	FormatBitmap      Format = 2
	FormatDIB         Format = 8
	FormatUnicodeText Format = 13
	FormatHDrop       Format = 15
	FormatDIBV5       Format = 17
	FormatPNG         Format = 0xC100
)

var formatNames = map[Format]string{
	FormatText:        "CF_TEXT",
	FormatBitmap:      "CF_BITMAP",
	FormatDIB:         "CF_DIB",
	FormatUnicodeText: "CF_UNICODETEXT",
	FormatHDrop:       "CF_HDROP",
	FormatDIBV5:       "CF_DIBV5",
	FormatPNG:         "PNG",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return "format#" + strconv.FormatUint(uint64(f), 10)
}
