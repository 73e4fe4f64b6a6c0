package aucm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/eggtone/synth/field"
	"github.com/eggtone/synth/node"
)

type (
	// envSource collects the keys of an env node. Either the preset keys
	// or the point keys may be used, not both.
	envSource struct {
		tok                    Token
		preset, points         bool
		attack, decay, release int
		hires                  bool
		initial                *float64
		list                   []envPoint
		seen                   map[string]bool
	}

	envPoint struct {
		time     int
		level    float64
		curve    int
		hasCurve bool
		tok      Token
	}
)

var envKeyRange = map[string]int{"attack": 3, "decay": 3, "release": 7}

func (p *parser) parseEnvKey(n *astNode, keyTok Token) error {
	p.push(scope{typ: n.typ, format: "envelope", key: keyTok.Text})
	defer p.pop()
	vals, err := p.parseValues()
	if err != nil {
		return err
	}
	if n.env == nil {
		n.env = &envSource{tok: keyTok, seen: map[string]bool{}}
	}
	env := n.env
	key := keyTok.Text
	if key != "point" && env.seen[key] {
		return p.errorf(keyTok, "%v assigned twice", key)
	}
	env.seen[key] = true
	count := func(lo, hi int) error {
		if len(vals) < lo {
			return p.errorf(keyTok, "%v takes at least %d values", key, lo)
		}
		if len(vals) > hi {
			return p.errorf(vals[hi], "%v takes at most %d values", key, hi)
		}
		return nil
	}
	switch key {
	case "attack", "decay", "release":
		if env.points {
			return p.errorf(keyTok, "%v cannot be mixed with init, point or hires", key)
		}
		env.preset = true
		if err := count(1, 1); err != nil {
			return err
		}
		v, err := p.integer(vals[0], 0, envKeyRange[key])
		if err != nil {
			return err
		}
		switch key {
		case "attack":
			env.attack = v
		case "decay":
			env.decay = v
		default:
			env.release = v
		}
		return nil
	case "init", "point", "hires":
		if env.preset {
			return p.errorf(keyTok, "%v cannot be mixed with attack, decay or release", key)
		}
		env.points = true
	default:
		return p.errorf(keyTok, "env has no field or key %q", key)
	}
	switch key {
	case "init":
		if err := count(1, 1); err != nil {
			return err
		}
		v, err := p.number(vals[0], -1, 1)
		if err != nil {
			return err
		}
		env.initial = &v
	case "hires":
		if err := count(1, 1); err != nil {
			return err
		}
		v, err := p.integer(vals[0], 0, 1)
		if err != nil {
			return err
		}
		env.hires = v == 1
	case "point":
		if err := count(2, 3); err != nil {
			return err
		}
		pt := envPoint{tok: keyTok}
		if pt.time, err = p.integer(vals[0], 0, 0xffff); err != nil {
			return err
		}
		if pt.level, err = p.number(vals[1], -1, 1); err != nil {
			return err
		}
		if len(vals) == 3 {
			if pt.curve, err = p.integer(vals[2], 0, 255); err != nil {
				return err
			}
			pt.hasCurve = true
		}
		if len(env.list) == 255 {
			return p.errorf(keyTok, "too many points")
		}
		env.list = append(env.list, pt)
	}
	return nil
}

// content encodes the envelope in its shortest form.
func (e *envSource) content() []byte {
	if e.preset {
		return []byte{node.EnvPreset | byte(e.attack)<<5 | byte(e.decay)<<3 | byte(e.release)}
	}
	var flags byte
	if e.hires {
		flags |= node.EnvHiRes
	}
	if e.initial != nil {
		flags |= node.EnvInit
		if *e.initial < 0 {
			flags |= node.EnvSigned
		}
	}
	for _, pt := range e.list {
		if pt.time > 0xff {
			flags |= node.EnvHiRes
		}
		if pt.level < 0 {
			flags |= node.EnvSigned
		}
		if pt.hasCurve {
			flags |= node.EnvCurve
		}
	}
	level := func(b []byte, l float64) []byte {
		switch {
		case flags&node.EnvHiRes != 0 && flags&node.EnvSigned != 0:
			return binary.BigEndian.AppendUint16(b, uint16(int16(math.Round(l*32767))))
		case flags&node.EnvHiRes != 0:
			return binary.BigEndian.AppendUint16(b, uint16(math.Round(l*65535)))
		case flags&node.EnvSigned != 0:
			return append(b, byte(int8(math.Round(l*127))))
		}
		return append(b, byte(math.Round(l*255)))
	}
	b := []byte{flags, byte(len(e.list))}
	if e.initial != nil {
		b = level(b, *e.initial)
	}
	for _, pt := range e.list {
		if flags&node.EnvHiRes != 0 {
			b = binary.BigEndian.AppendUint16(b, uint16(pt.time))
		} else {
			b = append(b, byte(pt.time))
		}
		b = level(b, pt.level)
		if flags&node.EnvCurve != 0 {
			b = append(b, byte(pt.curve))
		}
	}
	return b
}

// emit encodes a parsed node: type id, fields in id order, terminator.
func (p *parser) emit(n *astNode) ([]byte, error) {
	values := make(map[byte]field.Value, len(n.values)+2)
	for id, v := range n.values {
		values[id] = v
	}
	if _, ok := values[node.FieldMain]; !ok {
		values[node.FieldMain] = field.Value{Kind: field.KindLink, Target: 0}
	}
	if f := n.typ.Principal(); f != nil {
		body, err := p.serialBody(n, f)
		if err != nil {
			return nil, err
		}
		if body != nil {
			values[f.ID] = field.Value{Kind: field.KindSerial, Serial: body}
		}
	}
	fields := append([]*node.Field(nil), n.typ.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	var e field.Encoder
	e.Byte(n.typ.ID)
	for _, f := range fields {
		v, ok := values[f.ID]
		if !ok {
			if f.Flags&node.Required != 0 {
				return nil, p.errorf(n.tok, "%v needs %v", n.typ.Name, requirement(f))
			}
			continue
		}
		e.Byte(f.ID)
		if err := e.Value(v); err != nil {
			tok, ok := n.tokens[f.ID]
			if !ok {
				tok = n.tok
			}
			return nil, p.errorf(tok, "%v: %v", f.Name, err)
		}
	}
	e.Byte(0)
	return e.Bytes(), nil
}

func requirement(f *node.Field) string {
	switch f.Format {
	case "envelope":
		return "attack, decay and release or points"
	case "nodes":
		return "at least one node"
	case "ranges":
		return "at least one range"
	}
	return f.Name
}

// serialBody builds the principal serial block of a node, or nil if the
// source gave nothing for it.
func (p *parser) serialBody(n *astNode, f *node.Field) ([]byte, error) {
	switch f.Format {
	case "nodes":
		var b []byte
		for _, c := range n.children {
			cb, err := p.emit(c)
			if err != nil {
				return nil, err
			}
			b = append(b, cb...)
		}
		return b, nil
	case "ranges":
		ranges := append([]astRange(nil), n.ranges...)
		sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
		var b []byte
		for i, r := range ranges {
			if i > 0 && ranges[i-1].start+ranges[i-1].count > r.start {
				return nil, p.errorf(r.tok, "range at note %d overlaps the range at note %d", r.start, ranges[i-1].start)
			}
			cb, err := p.emit(r.child)
			if err != nil {
				return nil, err
			}
			b = append(b, byte(r.start), byte(r.count), byte(r.dest))
			b = append(b, cb...)
		}
		return b, nil
	case "envelope":
		if n.env == nil {
			return nil, nil
		}
		if n.env.points && len(n.env.list) == 0 {
			return nil, p.errorf(n.env.tok, "envelope needs at least one point")
		}
		return n.env.content(), nil
	case "coefficients":
		if n.coefs == nil {
			return nil, nil
		}
		b := make([]byte, len(n.coefs))
		for i, c := range n.coefs {
			b[i] = byte(math.Round(c * 255))
		}
		return b, nil
	}
	return nil, fmt.Errorf("no encoder for %v content", f.Format)
}

// wrapSound wraps a node in a multiplex node with the single range note.
func wrapSound(body []byte, note byte) ([]byte, error) {
	t, err := node.LookupName("multiplex")
	if err != nil {
		return nil, err
	}
	ranges := append([]byte{note, 1, note}, body...)
	var e field.Encoder
	e.Byte(t.ID, t.Principal().ID)
	if err := e.Serial(ranges); err != nil {
		return nil, err
	}
	e.Byte(0)
	return e.Bytes(), nil
}
