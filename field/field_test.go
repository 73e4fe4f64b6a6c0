package field_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/eggtone/synth/field"
)

func TestDecode(t *testing.T) {
	cases := []struct {
		name     string
		input    []byte
		expected field.Value
		consumed int
	}{
		{"link buffer", []byte{0x00, 0x03}, field.Value{Kind: field.KindLink, Target: 3}, 2},
		{"link noteid", []byte{0x00, 0x80}, field.Value{Kind: field.KindLink, Target: field.TargetNoteID}, 2},
		{"link notehz", []byte{0x7f, 0x81, 0xaa}, field.Value{Kind: field.KindLink, Target: field.TargetNoteHz}, 2},
		{"zero", []byte{0x80, 0xaa}, field.Value{Kind: field.KindFloat}, 1},
		{"one", []byte{0x81}, field.Value{Kind: field.KindFloat, Float: 1, Int: 1}, 1},
		{"negone", []byte{0x82}, field.Value{Kind: field.KindFloat, Float: -1, Int: -1}, 1},
		{"fixed", []byte{0x83, 0x00, 0x01, 0x80, 0x00}, field.Value{Kind: field.KindFloat, Float: 1.5}, 5},
		{"fixed negative", []byte{0x83, 0xff, 0xfe, 0x00, 0x00}, field.Value{Kind: field.KindFloat, Float: -2, Int: -2}, 5},
		{"u08", []byte{0x84, 0xff}, field.Value{Kind: field.KindFloat, Float: 1, Int: 1}, 2},
		{"u8", []byte{0x85, 200}, field.Value{Kind: field.KindInt, Float: 200, Int: 200}, 2},
		{"serial1", []byte{0x86, 0x02, 0xa, 0xb, 0xc}, field.Value{Kind: field.KindSerial, Serial: []byte{0xa, 0xb}}, 4},
		{"serial2", []byte{0x87, 0x00, 0x01, 0xa}, field.Value{Kind: field.KindSerial, Serial: []byte{0xa}}, 4},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, n, err := field.Decode(c.input)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if n != c.consumed {
				t.Fatalf("consumed %v bytes, expected %v", n, c.consumed)
			}
			if !reflect.DeepEqual(v, c.expected) {
				t.Fatalf("got %+v, expected %+v", v, c.expected)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		input []byte
		err   error
	}{
		{[]byte{}, field.ErrTruncated},
		{[]byte{0x00}, field.ErrTruncated},
		{[]byte{0x00, 0x10}, field.ErrBadTarget},
		{[]byte{0x00, 0x82}, field.ErrBadTarget},
		{[]byte{0x00, 0xff}, field.ErrBadTarget},
		{[]byte{0x83, 0x00, 0x00}, field.ErrTruncated},
		{[]byte{0x84}, field.ErrTruncated},
		{[]byte{0x86, 0x03, 0x00}, field.ErrTruncated},
		{[]byte{0x87, 0x01}, field.ErrTruncated},
		{[]byte{0x88}, field.ErrUnknownTag},
		{[]byte{0xff}, field.ErrUnknownTag},
	}
	for _, c := range cases {
		_, n, err := field.Decode(c.input)
		if !errors.Is(err, c.err) {
			t.Fatalf("decoding %x: got error %v, expected %v", c.input, err, c.err)
		}
		if n != 0 {
			t.Fatalf("decoding %x consumed %v bytes on failure", c.input, n)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	floats := []float64{0, 1, -1, 0.5, 440, -3.25, 1.0 / 65536, 32767}
	for _, f := range floats {
		var e field.Encoder
		if err := e.Float(f); err != nil {
			t.Fatalf("encoding %v: %v", f, err)
		}
		v, n, err := field.Decode(e.Bytes())
		if err != nil {
			t.Fatalf("decoding %v: %v", f, err)
		}
		if n != e.Len() {
			t.Fatalf("encoded %v bytes but decoded %v", e.Len(), n)
		}
		if float64(v.Float) != f {
			t.Fatalf("got %v back, expected %v", v.Float, f)
		}
	}
	var e field.Encoder
	if err := e.Float(40000); err == nil {
		t.Fatalf("encoding a constant above the fixed point range should fail")
	}
}

func TestEncodeShortestForm(t *testing.T) {
	var e field.Encoder
	e.Int(0)
	e.Int(1)
	e.Int(7)
	e.Link(4)
	e.Serial(make([]byte, 3))
	expected := []byte{0x80, 0x81, 0x85, 7, 0x00, 4, 0x86, 3, 0, 0, 0}
	if !bytes.Equal(e.Bytes(), expected) {
		t.Fatalf("got %x, expected %x", e.Bytes(), expected)
	}
	var long field.Encoder
	long.Serial(make([]byte, 300))
	if h := long.Bytes()[:3]; !bytes.Equal(h, []byte{0x87, 0x01, 0x2c}) {
		t.Fatalf("long serial header %x", h)
	}
	for _, target := range []field.Target{0x82, 0xff} {
		if err := long.Link(target); !errors.Is(err, field.ErrBadTarget) {
			t.Fatalf("%v should not encode, got %v", target, err)
		}
	}
}

func TestTargetString(t *testing.T) {
	cases := map[field.Target]string{
		3:                  "buf3",
		field.TargetNoteID: "noteid",
		field.TargetNoteHz: "notehz",
		field.Target(0x82): "Target(0x82)",
		field.Target(0xff): "Target(0xff)",
	}
	for target, expected := range cases {
		if s := target.String(); s != expected {
			t.Fatalf("got %q, expected %q", s, expected)
		}
	}
}

func TestVLQ(t *testing.T) {
	for _, v := range []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, 1<<28 - 1} {
		enc := field.AppendVLQ(nil, v)
		got, n, err := field.DecodeVLQ(enc)
		if err != nil {
			t.Fatalf("vlq %v: %v", v, err)
		}
		if got != v || n != len(enc) {
			t.Fatalf("vlq %v: got %v in %v bytes (encoded %x)", v, got, n, enc)
		}
	}
	if _, _, err := field.DecodeVLQ([]byte{0x80, 0x80}); !errors.Is(err, field.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
	if _, _, err := field.DecodeVLQ([]byte{0x80, 0x80, 0x80, 0x80, 0x00}); !errors.Is(err, field.ErrBadVLQ) {
		t.Fatalf("expected malformed vlq, got %v", err)
	}
}

func TestSkipNode(t *testing.T) {
	node := []byte{0x04, 0x01, 0x00, 0x00, 0x03, 0x86, 0x01, 0xa2, 0x00, 0xee}
	n, err := field.SkipNode(node)
	if err != nil {
		t.Fatalf("SkipNode failed: %v", err)
	}
	if n != 9 {
		t.Fatalf("SkipNode returned %v, expected 9", n)
	}
	if _, err := field.SkipNode(node[:8]); !errors.Is(err, field.ErrTruncated) {
		t.Fatalf("unterminated node should be truncated, got %v", err)
	}
}
