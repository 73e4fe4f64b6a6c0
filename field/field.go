// Package field implements the typed wire values that make up the body of a
// compiled synth program: dynamic links to buffers or note context, scalar
// constants in a handful of encodings, and length-prefixed serial blocks.
package field

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

type (
	// Kind tells which member of a Value is meaningful.
	Kind int

	// Value is one decoded field value. Exactly one of the members is
	// meaningful, as told by Kind. Float constants that happen to be
	// integral are also available through Int, and integer constants through
	// Float, so that a node type can accept whichever encoding the compiler
	// chose.
	Value struct {
		Kind   Kind
		Target Target  // KindLink
		Float  float32 // KindFloat, KindInt
		Int    int     // KindInt, KindFloat when integral
		Serial []byte  // KindSerial; aliases the decoded input
	}

	// Target is the destination of a link: a buffer slot or a per-note
	// context value.
	Target byte

	// DecodeError reports where in the input a value failed to decode.
	DecodeError struct {
		Offset int
		Err    error
	}
)

const (
	KindLink Kind = iota
	KindFloat
	KindInt
	KindSerial
)

// Tag bytes. Anything below TagZero is a link.
const (
	TagLink    = 0x00
	TagZero    = 0x80
	TagOne     = 0x81
	TagNegOne  = 0x82
	TagFixed   = 0x83
	TagU08     = 0x84
	TagU8      = 0x85
	TagSerial1 = 0x86
	TagSerial2 = 0x87
)

// Link targets. Buffer slots are 0..NumBuffers-1.
const (
	NumBuffers = 16

	TargetNoteID Target = 0x80
	TargetNoteHz Target = 0x81
)

var (
	ErrTruncated  = errors.New("truncated field value")
	ErrUnknownTag = errors.New("unknown field value tag")
	ErrBadTarget  = errors.New("invalid link target")
	ErrBadVLQ     = errors.New("malformed variable-length quantity")
)

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (offset=%d)", e.Err, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (k Kind) String() string {
	switch k {
	case KindLink:
		return "link"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindSerial:
		return "serial"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsBuffer tells if the target is one of the shared buffer slots.
func (t Target) IsBuffer() bool {
	return t < NumBuffers
}

// Valid tells if the target may appear in encoded data.
func (t Target) Valid() bool {
	return t.IsBuffer() || t == TargetNoteID || t == TargetNoteHz
}

func (t Target) String() string {
	switch {
	case t.IsBuffer():
		return fmt.Sprintf("buf%d", int(t))
	case t == TargetNoteID:
		return "noteid"
	case t == TargetNoteHz:
		return "notehz"
	}
	return fmt.Sprintf("Target(0x%02x)", byte(t))
}

// Decode decodes one value from the start of src and returns it together
// with the number of bytes consumed. On error nothing is consumed.
func Decode(src []byte) (Value, int, error) {
	if len(src) < 1 {
		return Value{}, 0, &DecodeError{Offset: 0, Err: ErrTruncated}
	}
	tag := src[0]
	if tag < TagZero {
		if len(src) < 2 {
			return Value{}, 0, &DecodeError{Offset: 1, Err: ErrTruncated}
		}
		target := Target(src[1])
		if !target.Valid() {
			return Value{}, 0, &DecodeError{Offset: 1, Err: ErrBadTarget}
		}
		return Value{Kind: KindLink, Target: target}, 2, nil
	}
	switch tag {
	case TagZero:
		return floatValue(0), 1, nil
	case TagOne:
		return floatValue(1), 1, nil
	case TagNegOne:
		return floatValue(-1), 1, nil
	case TagFixed:
		if len(src) < 5 {
			return Value{}, 0, &DecodeError{Offset: len(src), Err: ErrTruncated}
		}
		fixed := int32(binary.BigEndian.Uint32(src[1:5]))
		return floatValue(float32(float64(fixed) / 65536)), 5, nil
	case TagU08:
		if len(src) < 2 {
			return Value{}, 0, &DecodeError{Offset: 1, Err: ErrTruncated}
		}
		return floatValue(float32(src[1]) / 255), 2, nil
	case TagU8:
		if len(src) < 2 {
			return Value{}, 0, &DecodeError{Offset: 1, Err: ErrTruncated}
		}
		return Value{Kind: KindInt, Int: int(src[1]), Float: float32(src[1])}, 2, nil
	case TagSerial1:
		if len(src) < 2 {
			return Value{}, 0, &DecodeError{Offset: 1, Err: ErrTruncated}
		}
		l := int(src[1])
		if len(src) < 2+l {
			return Value{}, 0, &DecodeError{Offset: len(src), Err: ErrTruncated}
		}
		return Value{Kind: KindSerial, Serial: src[2 : 2+l]}, 2 + l, nil
	case TagSerial2:
		if len(src) < 3 {
			return Value{}, 0, &DecodeError{Offset: len(src), Err: ErrTruncated}
		}
		l := int(binary.BigEndian.Uint16(src[1:3]))
		if len(src) < 3+l {
			return Value{}, 0, &DecodeError{Offset: len(src), Err: ErrTruncated}
		}
		return Value{Kind: KindSerial, Serial: src[3 : 3+l]}, 3 + l, nil
	}
	return Value{}, 0, &DecodeError{Offset: 0, Err: ErrUnknownTag}
}

func floatValue(f float32) Value {
	v := Value{Kind: KindFloat, Float: f}
	if f == float32(math.Trunc(float64(f))) {
		v.Int = int(f)
	}
	return v
}

// Integral tells if the value is a constant that can be read as an integer
// without loss.
func (v Value) Integral() bool {
	switch v.Kind {
	case KindInt:
		return true
	case KindFloat:
		return float32(v.Int) == v.Float
	}
	return false
}

// SkipNode returns the length of an encoded node starting at src[0]: the
// node type byte, its fields and the terminating zero. Field values are only
// walked, not interpreted, so this works for node types unknown to the caller.
func SkipNode(src []byte) (int, error) {
	if len(src) < 1 {
		return 0, &DecodeError{Offset: 0, Err: ErrTruncated}
	}
	p := 1
	for {
		if p >= len(src) {
			return 0, &DecodeError{Offset: p, Err: ErrTruncated}
		}
		id := src[p]
		p++
		if id == 0 {
			return p, nil
		}
		_, n, err := Decode(src[p:])
		if err != nil {
			return 0, offsetError(err, p)
		}
		p += n
	}
}

func offsetError(err error, delta int) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return &DecodeError{Offset: de.Offset + delta, Err: de.Err}
	}
	return err
}
