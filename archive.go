package synth

import (
	"fmt"

	"github.com/eggtone/synth/field"
)

// NumPrograms is the number of program slots.
const NumPrograms = 128

// ArchiveEntry is one program of an archive.
type ArchiveEntry struct {
	Program byte
	Body    []byte
}

// ParseArchive splits an archive of `program vlq(length) body` records. Every
// body must be exactly one terminated node. Bodies alias data.
func ParseArchive(data []byte) ([]ArchiveEntry, error) {
	var ret []ArchiveEntry
	for p := 0; p < len(data); {
		id := data[p]
		if id >= NumPrograms {
			return nil, fmt.Errorf("archive offset %d: program id %d out of range", p, id)
		}
		l, n, err := field.DecodeVLQ(data[p+1:])
		if err != nil {
			return nil, fmt.Errorf("archive offset %d: %w", p+1, err)
		}
		start := p + 1 + n
		if start+l > len(data) {
			return nil, fmt.Errorf("archive offset %d: program %d needs %d bytes, %d left: %w", p, id, l, len(data)-start, field.ErrTruncated)
		}
		body := data[start : start+l]
		if sz, err := field.SkipNode(body); err != nil {
			return nil, fmt.Errorf("archive program %d: %w", id, err)
		} else if sz != l {
			return nil, fmt.Errorf("archive program %d: %d bytes after the node", id, l-sz)
		}
		ret = append(ret, ArchiveEntry{Program: id, Body: body})
		p = start + l
	}
	return ret, nil
}

// AppendArchive appends one archive record to dst.
func AppendArchive(dst []byte, program byte, body []byte) []byte {
	dst = append(dst, program)
	dst = field.AppendVLQ(dst, len(body))
	return append(dst, body...)
}
