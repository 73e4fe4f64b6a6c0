package field

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encoder appends field values to a byte slice. The zero value is ready to
// use; Bytes returns everything written so far.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded bytes. The slice aliases the encoder's storage.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Byte appends a raw byte, e.g. a node type or field id.
func (e *Encoder) Byte(b ...byte) {
	e.buf = append(e.buf, b...)
}

// Link appends a link to target.
func (e *Encoder) Link(target Target) error {
	if !target.Valid() {
		return fmt.Errorf("cannot encode link to %v: %w", target, ErrBadTarget)
	}
	e.buf = append(e.buf, TagLink, byte(target))
	return nil
}

// Float appends a scalar constant, using the sentinel tags for 0, 1 and -1
// and 16.16 fixed point otherwise.
func (e *Encoder) Float(f float64) error {
	switch f {
	case 0:
		e.buf = append(e.buf, TagZero)
		return nil
	case 1:
		e.buf = append(e.buf, TagOne)
		return nil
	case -1:
		e.buf = append(e.buf, TagNegOne)
		return nil
	}
	fixed := math.Round(f * 65536)
	if fixed > math.MaxInt32 || fixed < math.MinInt32 || math.IsNaN(fixed) {
		return fmt.Errorf("constant %v does not fit in 16.16 fixed point", f)
	}
	e.buf = append(e.buf, TagFixed)
	e.buf = binary.BigEndian.AppendUint32(e.buf, uint32(int32(fixed)))
	return nil
}

// Int appends an integer constant.
func (e *Encoder) Int(i int) error {
	switch {
	case i == 0:
		e.buf = append(e.buf, TagZero)
	case i == 1:
		e.buf = append(e.buf, TagOne)
	case i == -1:
		e.buf = append(e.buf, TagNegOne)
	case i >= 0 && i <= 255:
		e.buf = append(e.buf, TagU8, byte(i))
	default:
		return e.Float(float64(i))
	}
	return nil
}

// Serial appends a length-prefixed block, choosing the shortest header.
func (e *Encoder) Serial(b []byte) error {
	switch {
	case len(b) <= 0xff:
		e.buf = append(e.buf, TagSerial1, byte(len(b)))
	case len(b) <= 0xffff:
		e.buf = append(e.buf, TagSerial2)
		e.buf = binary.BigEndian.AppendUint16(e.buf, uint16(len(b)))
	default:
		return fmt.Errorf("serial block of %d bytes is too long", len(b))
	}
	e.buf = append(e.buf, b...)
	return nil
}

// Value appends an already decoded value.
func (e *Encoder) Value(v Value) error {
	switch v.Kind {
	case KindLink:
		return e.Link(v.Target)
	case KindInt:
		return e.Int(v.Int)
	case KindFloat:
		return e.Float(float64(v.Float))
	case KindSerial:
		return e.Serial(v.Serial)
	}
	return fmt.Errorf("cannot encode value of kind %v", v.Kind)
}
