package aucm

import (
	"fmt"

	"github.com/eggtone/synth/field"
	"github.com/eggtone/synth/node"
)

type muxEntry struct {
	start, count, dest byte
	node               []byte
}

// parseMultiplex splits an encoded multiplex node into its ranges. The node
// may carry nothing but its ranges field, and every range must be one note
// wide.
func parseMultiplex(b []byte) ([]muxEntry, error) {
	t, err := node.LookupName("multiplex")
	if err != nil {
		return nil, err
	}
	principal := t.Principal()
	if len(b) < 1 || b[0] != t.ID {
		return nil, fmt.Errorf("not a multiplex node")
	}
	var ranges []byte
	seen := false
	p := 1
	for {
		if p >= len(b) {
			return nil, &field.DecodeError{Offset: p, Err: field.ErrTruncated}
		}
		id := b[p]
		p++
		if id == 0 {
			break
		}
		if id != principal.ID || seen {
			return nil, fmt.Errorf("multiplex field 0x%02x cannot be merged", id)
		}
		v, n, err := field.Decode(b[p:])
		if err != nil {
			return nil, err
		}
		if v.Kind != field.KindSerial {
			return nil, fmt.Errorf("multiplex ranges are not a serial block")
		}
		ranges, seen = v.Serial, true
		p += n
	}
	if p != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after the multiplex node", len(b)-p)
	}
	var ret []muxEntry
	for q := 0; q < len(ranges); {
		if q+3 > len(ranges) {
			return nil, &field.DecodeError{Offset: q, Err: field.ErrTruncated}
		}
		e := muxEntry{start: ranges[q], count: ranges[q+1], dest: ranges[q+2]}
		if e.count != 1 {
			return nil, fmt.Errorf("range at note %d is %d notes wide, only single notes merge", e.start, e.count)
		}
		if len(ret) > 0 && ret[len(ret)-1].start >= e.start {
			return nil, fmt.Errorf("range at note %d is out of order", e.start)
		}
		n, err := field.SkipNode(ranges[q+3:])
		if err != nil {
			return nil, err
		}
		e.node = ranges[q+3 : q+3+n]
		ret = append(ret, e)
		q += 3 + n
	}
	return ret, nil
}

// MergeMultiplex merges two sound banks, both multiplex nodes of single note
// ranges. Where both have a range at the same note, the one of b wins. An
// empty a yields b.
func MergeMultiplex(a, b []byte) ([]byte, error) {
	ea, err := parseMultiplex(a)
	if len(a) == 0 {
		ea, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first bank: %w", err)
	}
	eb, err := parseMultiplex(b)
	if err != nil {
		return nil, fmt.Errorf("second bank: %w", err)
	}
	var ranges []byte
	add := func(e muxEntry) {
		ranges = append(ranges, e.start, e.count, e.dest)
		ranges = append(ranges, e.node...)
	}
	i, j := 0, 0
	for i < len(ea) && j < len(eb) {
		switch {
		case ea[i].start < eb[j].start:
			add(ea[i])
			i++
		case ea[i].start > eb[j].start:
			add(eb[j])
			j++
		default:
			add(eb[j])
			i++
			j++
		}
	}
	for ; i < len(ea); i++ {
		add(ea[i])
	}
	for ; j < len(eb); j++ {
		add(eb[j])
	}
	t, err := node.LookupName("multiplex")
	if err != nil {
		return nil, err
	}
	var e field.Encoder
	e.Byte(t.ID, t.Principal().ID)
	if err := e.Serial(ranges); err != nil {
		return nil, err
	}
	e.Byte(0)
	return e.Bytes(), nil
}
