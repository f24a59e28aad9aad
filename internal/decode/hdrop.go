package decode

import (
	"encoding/binary"
	"fmt"
	"strings"

	"go.klb.dev/clipdeck/internal/entry"
)

const dropFilesSize = 20 // DROPFILES

// FileDropDecoder decodes CF_HDROP payloads: a DROPFILES header followed by
// a double-NUL-terminated list of paths, wide or ANSI.
type FileDropDecoder struct{}

func (FileDropDecoder) CanDecode(f entry.Format) bool { return f == entry.FormatHDrop }

func (FileDropDecoder) Decode(f entry.Format, data []byte) (entry.Item, error) {
	if len(data) < dropFilesSize {
		return entry.Item{}, fmt.Errorf("%w: %d bytes is shorter than DROPFILES", ErrMalformed, len(data))
	}
	offset := binary.LittleEndian.Uint32(data[0:])
	wide := binary.LittleEndian.Uint32(data[16:]) != 0
	if offset < dropFilesSize || uint64(offset) > uint64(len(data)) {
		return entry.Item{}, fmt.Errorf("%w: file list offset %d out of range", ErrMalformed, offset)
	}
	list := data[offset:]

	var joined string
	if wide {
		if len(list)%2 != 0 {
			list = list[:len(list)-1]
		}
		s, err := decodeUTF16(list)
		if err != nil {
			return entry.Item{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		joined = s
	} else {
		joined = string(list)
	}

	var paths []string
	for _, p := range strings.Split(joined, "\x00") {
		if p == "" {
			break
		}
		paths = append(paths, p)
	}
	return entry.Item{Format: f, Raw: data, Value: entry.FileList{Paths: paths}}, nil
}
