package aucm_test

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/eggtone/synth/aucm"
	"github.com/eggtone/synth/field"
	"github.com/eggtone/synth/node"
)

const rate = 44100

func compileFile(t *testing.T, name string) (aucm.File, []byte) {
	t.Helper()
	path := filepath.Join("testdata", name)
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("cannot read %v: %v", path, err)
	}
	var c aucm.Compiler
	f, b, err := c.File(path, src)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return f, b
}

// summary lists the fields of a config in the order they were encoded.
func summary(c *node.Config) []string {
	var ret []string
	for _, a := range c.Values {
		var s string
		switch a.Value.Kind {
		case field.KindLink:
			s = a.Value.Target.String()
		case field.KindSerial:
			s = "serial"
		default:
			s = fmt.Sprint(a.Value.Float)
		}
		ret = append(ret, a.Field.Name+"="+s)
	}
	return ret
}

func serial(c *node.Config, name string) []byte {
	for _, a := range c.Values {
		if a.Field.Name == name {
			return a.Value.Serial
		}
	}
	return nil
}

func TestShortEnvelope(t *testing.T) {
	var c aucm.Compiler
	b, err := c.Instrument("env.ins", []byte("env{ attack=1; decay=0; release=2; }"))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	expected := []byte{0x04, 0x01, 0x00, 0x00, 0x03, 0x86, 0x01, 0xa2, 0x00}
	if !bytes.Equal(b, expected) {
		t.Fatalf("got % x, expected % x", b, expected)
	}
}

func TestRoundTrip(t *testing.T) {
	f, b := compileFile(t, "3-lead.ins")
	if f.Program != 3 || f.Sound || f.Name != "lead" {
		t.Fatalf("bad file info %+v", f)
	}
	root, err := node.Decode(b, rate)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if s, expected := summary(root), []string{"main=buf0", "nodes=serial", "level=0.5"}; !reflect.DeepEqual(s, expected) {
		t.Fatalf("instrument fields %v, expected %v", s, expected)
	}
	expected := [][]string{
		{"main=buf1", "shape=1", "level=0.25"},
		{"main=buf1", "gain=noteid", "clip=1"},
		{"main=buf0", "value=buf1"},
		{"main=buf0", "mode=0", "content=serial"},
		{"main=buf0", "rate=buf2", "coefs=serial"},
	}
	var children []*node.Config
	nodes := serial(root, "nodes")
	for p := 0; p < len(nodes); {
		c, n, err := node.DecodeNode(nodes[p:], rate)
		if err != nil {
			t.Fatalf("child %d: %v", len(children), err)
		}
		children = append(children, c)
		p += n
	}
	if len(children) != len(expected) {
		t.Fatalf("got %d children, expected %d", len(children), len(expected))
	}
	for i, c := range children {
		if s := summary(c); !reflect.DeepEqual(s, expected[i]) {
			t.Fatalf("child %d (%v) fields %v, expected %v", i, c.Type.Name, s, expected[i])
		}
	}
	initial, points, err := node.ParseEnvelope(serial(children[3], "content"))
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if expected := []node.EnvPoint{{Time: 10, Level: 1}, {Time: 300, Level: 0, Curve: 64}}; initial != 0 || !reflect.DeepEqual(points, expected) {
		t.Fatalf("envelope %v %v, expected %v", initial, points, expected)
	}
	if coefs := serial(children[4], "coefs"); !bytes.Equal(coefs, []byte{255, 128, 64}) {
		t.Fatalf("coefficients % x", coefs)
	}
}

func TestLiterals(t *testing.T) {
	var c aucm.Compiler
	b, err := c.Instrument("x.ins", []byte(`osc { rate = 0x10; phase = -.5; shape = "s\x61wup"; level = 0o3; }`))
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	cfg, err := node.Decode(b, rate)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	expected := []string{"main=buf0", "rate=16", "shape=2", "phase=-0.5", "level=3"}
	if s := summary(cfg); !reflect.DeepEqual(s, expected) {
		t.Fatalf("got %v, expected %v", s, expected)
	}
}

func TestSoundBank(t *testing.T) {
	kickFile, kick := compileFile(t, "9-36-kick.sound")
	snareFile, snare := compileFile(t, "9-38-snare.sound")
	if !kickFile.Sound || kickFile.Program != 9 || kickFile.Note != 36 || snareFile.Note != 38 {
		t.Fatalf("bad file info %+v %+v", kickFile, snareFile)
	}
	var c aucm.Compiler
	body := func(name string) []byte {
		src, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("cannot read %v: %v", name, err)
		}
		b, err := c.Instrument(name, src)
		if err != nil {
			t.Fatalf("compile failed: %v", err)
		}
		return b
	}
	kickBody, snareBody := body("9-36-kick.sound"), body("9-38-snare.sound")
	bank, err := aucm.MergeMultiplex(nil, snare)
	if err != nil {
		t.Fatalf("merge into empty bank failed: %v", err)
	}
	if bank, err = aucm.MergeMultiplex(bank, kick); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	ranges := append([]byte{36, 1, 36}, kickBody...)
	ranges = append(ranges, 38, 1, 38)
	ranges = append(ranges, snareBody...)
	var e field.Encoder
	e.Byte(0x02, 0x02)
	e.Serial(ranges)
	e.Byte(0)
	if !bytes.Equal(bank, e.Bytes()) {
		t.Fatalf("got % x, expected % x", bank, e.Bytes())
	}
	if _, err := node.Decode(bank, rate); err != nil {
		t.Fatalf("bank does not decode: %v", err)
	}
	// a new version of the kick replaces the old one
	newKick, err := c.Sound("kick", []byte("add { value = 1; }"), 36)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if bank, err = aucm.MergeMultiplex(bank, newKick); err != nil {
		t.Fatalf("merge failed: %v", err)
	}
	if !bytes.Contains(bank, []byte{36, 1, 36, 0x08, 0x01, 0x00, 0x00, 0x02, 0x81, 0x00}) || bytes.Contains(bank, kickBody) {
		t.Fatalf("kick not replaced: % x", bank)
	}
}

type entry struct{ start, tag byte }

func bank(t *testing.T, entries []entry) []byte {
	t.Helper()
	var ranges []byte
	for _, e := range entries {
		ranges = append(ranges, e.start, 1, e.start, 0x08, 0x02, 0x85, e.tag, 0x00)
	}
	var enc field.Encoder
	enc.Byte(0x02, 0x02)
	if err := enc.Serial(ranges); err != nil {
		t.Fatalf("serial failed: %v", err)
	}
	enc.Byte(0)
	return enc.Bytes()
}

func entries(t *testing.T, b []byte) []entry {
	t.Helper()
	v, n, err := field.Decode(b[2:])
	if err != nil || v.Kind != field.KindSerial || 2+n+1 != len(b) {
		t.Fatalf("malformed bank % x", b)
	}
	var ret []entry
	for p := 0; p < len(v.Serial); p += 8 {
		ret = append(ret, entry{v.Serial[p], v.Serial[p+6]})
	}
	return ret
}

func TestMergeProperties(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for iter := 0; iter < 100; iter++ {
		var a, b []entry
		want := map[byte]byte{}
		for note := byte(0); note < 128; note++ {
			if rnd.Intn(3) == 0 {
				a = append(a, entry{note, 1})
				want[note] = 1
			}
			if rnd.Intn(3) == 0 {
				b = append(b, entry{note, 2})
				want[note] = 2
			}
		}
		if len(b) == 0 {
			continue
		}
		merged, err := aucm.MergeMultiplex(bank(t, a), bank(t, b))
		if err != nil {
			t.Fatalf("merge failed: %v", err)
		}
		got := entries(t, merged)
		if len(got) != len(want) {
			t.Fatalf("merged %d ranges, expected %d", len(got), len(want))
		}
		for i, e := range got {
			if i > 0 && got[i-1].start >= e.start {
				t.Fatalf("ranges out of order at %d", i)
			}
			if want[e.start] != e.tag {
				t.Fatalf("note %d comes from bank %d, expected %d", e.start, e.tag, want[e.start])
			}
		}
		if _, err := node.Decode(merged, rate); err != nil {
			t.Fatalf("merged bank does not decode: %v", err)
		}
	}
}

func TestMergeRejects(t *testing.T) {
	good := bank(t, []entry{{1, 1}})
	wide := []byte{0x02, 0x02, 0x86, 0x08, 5, 2, 5, 0x08, 0x02, 0x85, 1, 0x00, 0x00}
	withMain := []byte{0x02, 0x01, 0x00, 0x00, 0x02, 0x86, 0x08, 5, 1, 5, 0x08, 0x02, 0x85, 1, 0x00, 0x00}
	notMux := []byte{0x08, 0x02, 0x81, 0x00}
	for name, b := range map[string][]byte{"wide": wide, "main": withMain, "not multiplex": notMux} {
		if _, err := aucm.MergeMultiplex(good, b); err == nil {
			t.Fatalf("%v: merge should fail", name)
		}
		if _, err := aucm.MergeMultiplex(b, good); err == nil {
			t.Fatalf("%v: merge should fail as first operand", name)
		}
	}
}

func TestHelp(t *testing.T) {
	cases := []struct {
		src      string
		contains []string
	}{
		{"help", []string{"Node Types", "instrument", "multiplex", "harm"}},
		{"env { help }", []string{"Env:", "content", "attack", "release"}},
		{"instrument { osc { shape = help; } }", []string{"Osc.shape", "sawdown", "noise"}},
		{"gain { gain = help }", []string{"Gain.gain", "noteid"}},
		{"multiplex { range(help", []string{"Multiplex range", "dest"}},
		{"env { point = 10, help", []string{"Env point", "curve"}},
	}
	for _, c := range cases {
		var out bytes.Buffer
		comp := aucm.Compiler{Help: &out}
		_, err := comp.Instrument("help.ins", []byte(c.src))
		if !errors.Is(err, aucm.ErrFullyLogged) {
			t.Fatalf("%q: got error %v, expected ErrFullyLogged", c.src, err)
		}
		for _, s := range c.contains {
			if !strings.Contains(out.String(), s) {
				t.Fatalf("%q: help does not mention %q:\n%v", c.src, s, out.String())
			}
		}
	}
}

func TestErrorCaret(t *testing.T) {
	var c aucm.Compiler
	_, err := c.Instrument("bad.ins", []byte("osc {\n  shape = wobble;\n}\n"))
	var e *aucm.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected an *aucm.Error, got %v", err)
	}
	if e.Line != 2 || e.Col != 11 || e.Len != 6 || e.Source != "  shape = wobble;" {
		t.Fatalf("bad position %+v", e)
	}
	expected := "\n  " + e.Source + "\n  " + strings.Repeat(" ", 10) + "^^^^^^"
	if !strings.HasSuffix(e.Error(), expected) || !strings.HasPrefix(e.Error(), "bad.ins:2:11: ") {
		t.Fatalf("bad error text:\n%v", e.Error())
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct{ name, src, msg string }{
		{"unknown type", "drum { }", "unknown node type"},
		{"unknown field", "osc { pitch = 1; }", "no field"},
		{"missing value", "add { }", "add needs value"},
		{"missing content", "env { mode = set; }", "env needs"},
		{"empty instrument", "instrument { }", "at least one node"},
		{"mixed envelope", "env { attack = 1; point = 10, 1; }", "cannot be mixed"},
		{"attack range", "env { attack = 4; }", "out of range"},
		{"bad link", "osc { shape = buf1; }", "cannot be linked"},
		{"main to noteid", "osc { main = noteid; }", "cannot be linked"},
		{"two values", "osc { phase = 1, 2; }", "takes one value"},
		{"twice", "osc { phase = 1; phase = 2; }", "assigned twice"},
		{"overlap", "multiplex { range(0, 10) add { value = 1; } range(5) add { value = 1; } }", "overlaps"},
		{"nested in osc", "osc { osc { } }", "cannot contain nodes"},
		{"unterminated", "osc { shape = sine;", "unterminated osc"},
		{"comment", "osc { } /* /* */", "unterminated comment"},
		{"number", "osc { phase = 0x; }", "malformed number"},
		{"trailing", "osc { } osc { }", "end of file"},
		{"string", "osc { shape = \"sine; }", "unterminated string"},
		{"character", "osc { phase = 1 @ }", "unexpected character"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var comp aucm.Compiler
			_, err := comp.Instrument("x.ins", []byte(c.src))
			if err == nil {
				t.Fatalf("compile succeeded")
			}
			if errors.Is(err, aucm.ErrFullyLogged) || !strings.Contains(err.Error(), c.msg) {
				t.Fatalf("got %v, expected a message with %q", err, c.msg)
			}
		})
	}
}

func TestParseFilename(t *testing.T) {
	cases := []struct {
		path     string
		expected aucm.File
		ok       bool
	}{
		{"dir/12.ins", aucm.File{Program: 12}, true},
		{"12-bass-line.ins", aucm.File{Program: 12, Name: "bass-line"}, true},
		{"5-36.sound", aucm.File{Program: 5, Note: 36, Sound: true}, true},
		{"5-36-kick.sound", aucm.File{Program: 5, Note: 36, Sound: true, Name: "kick"}, true},
		{"5.sound", aucm.File{}, false},
		{"128.ins", aucm.File{}, false},
		{"5-200.sound", aucm.File{}, false},
		{"bass.ins", aucm.File{}, false},
		{"5.txt", aucm.File{}, false},
	}
	for _, c := range cases {
		f, err := aucm.ParseFilename(c.path)
		if (err == nil) != c.ok {
			t.Fatalf("%v: got error %v", c.path, err)
		}
		if c.ok && f != c.expected {
			t.Fatalf("%v: got %+v, expected %+v", c.path, f, c.expected)
		}
	}
}
