package aucm

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// File is what the name of a source file tells about it:
// <program>[-name].ins is an instrument, <program>-<note>[-name].sound one
// sound of a bank.
type File struct {
	Program byte
	Note    byte
	Sound   bool
	Name    string
}

const (
	InstrumentExt = ".ins"
	SoundExt      = ".sound"
)

// ParseFilename reads the program, and for sounds the note, from the base
// name of path.
func ParseFilename(path string) (File, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	var f File
	switch ext {
	case InstrumentExt:
	case SoundExt:
		f.Sound = true
	default:
		return f, fmt.Errorf("%v: expected a %v or %v file", path, InstrumentExt, SoundExt)
	}
	parts := strings.SplitN(strings.TrimSuffix(base, ext), "-", 3)
	program, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || program >= 128 {
		return f, fmt.Errorf("%v: file name must start with a program id 0..127", path)
	}
	f.Program = byte(program)
	rest := parts[1:]
	if f.Sound {
		if len(rest) == 0 {
			return f, fmt.Errorf("%v: sound file name needs a note id after the program id", path)
		}
		note, err := strconv.ParseUint(rest[0], 10, 8)
		if err != nil || note >= 128 {
			return f, fmt.Errorf("%v: bad note id %q", path, rest[0])
		}
		f.Note = byte(note)
		rest = rest[1:]
	}
	f.Name = strings.Join(rest, "-")
	return f, nil
}

// File compiles a source file named by the conventions of ParseFilename.
func (c *Compiler) File(path string, src []byte) (File, []byte, error) {
	f, err := ParseFilename(path)
	if err != nil {
		return f, nil, err
	}
	var b []byte
	if f.Sound {
		b, err = c.Sound(path, src, f.Note)
	} else {
		b, err = c.Instrument(path, src)
	}
	return f, b, err
}
