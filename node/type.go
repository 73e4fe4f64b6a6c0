// Package node implements the synth program graph: the static catalog of node
// types, the decoding of program bytes into immutable configs and the per-note
// runners that render audio from them.
package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/eggtone/synth/field"
)

type (
	// Type describes one kind of DSP node. Types are registered once and never
	// changed afterwards.
	Type struct {
		ID     byte
		Name   string
		Doc    string
		Fields []*Field

		// NewCustom allocates the type specific constant storage of a config,
		// with every optional field at its default.
		NewCustom func() any
		// Ready validates a config once all fields are in and derives whatever
		// the runners need.
		Ready func(c *Config) error
		// Init sets up the state of a freshly bound runner and must pick its
		// update strategy with Runner.SetUpdate.
		Init func(r *Runner) error
		// Duration reports the length of the note in frames; nil or 0 means
		// the node does not bound the note.
		Duration func(r *Runner) int
	}

	// Field describes one assignable property of a node type.
	Field struct {
		ID    byte
		Name  string
		Modes Mode
		Flags Flag
		Enum  []string // names of the values of an enum field
		// Format names the serial sub-format, for documentation.
		Format string
		Doc    string

		floatPtr  func(custom any) *float32
		intPtr    func(custom any) *int
		setSerial func(c *Config, b []byte) error
	}

	// Mode is a set of ways a field can be assigned.
	Mode uint8

	// Flag marks fields with special treatment at ready time.
	Flag uint8
)

const (
	ModeFloat Mode = 1 << iota
	ModeInt
	ModeSerial
	ModeBuffer
	ModeNoteID
	ModeNoteHz

	ModeLink = ModeBuffer | ModeNoteID | ModeNoteHz
)

const (
	// Required fields must be assigned before a config is ready.
	Required Flag = 1 << iota
	// Principal marks the field that carries the body of the node, e.g. the
	// node list of an instrument.
	Principal
	// Fallback fields left unassigned are linked to buffer 0.
	Fallback
	// DefaultNoteHz fields left unassigned are linked to the note frequency.
	DefaultNoteHz
)

// FieldMain is the id of the output buffer link every node type has.
const FieldMain = 0x01

var (
	ErrUnknownType  = errors.New("unknown node type")
	ErrMissingField = errors.New("required field not assigned")
	ErrAssignMode   = errors.New("unsupported assignment")
)

// Field returns the field with the given id, or nil.
func (t *Type) Field(id byte) *Field {
	for _, f := range t.Fields {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// FieldByName returns the field with the given name, or nil.
func (t *Type) FieldByName(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Principal returns the principal field of the type, or nil.
func (t *Type) Principal() *Field {
	for _, f := range t.Fields {
		if f.Flags&Principal != 0 {
			return f
		}
	}
	return nil
}

func (t *Type) maxFieldID() int {
	m := 0
	for _, f := range t.Fields {
		m = max(m, int(f.ID))
	}
	return m
}

func (m Mode) String() string {
	names := []string{"float", "int", "serial", "buffer", "noteid", "notehz"}
	s := ""
	for i, n := range names {
		if m&(1<<i) != 0 {
			if s != "" {
				s += "|"
			}
			s += n
		}
	}
	return s
}

// Accepts tells if a link to target is allowed by the modes.
func (m Mode) Accepts(target field.Target) bool {
	switch {
	case target.IsBuffer():
		return m&ModeBuffer != 0
	case target == field.TargetNoteID:
		return m&ModeNoteID != 0
	case target == field.TargetNoteHz:
		return m&ModeNoteHz != 0
	}
	return false
}

// EnumValue returns the index of name in the enum of the field.
func (f *Field) EnumValue(name string) (int, bool) {
	for i, e := range f.Enum {
		if e == name {
			return i, true
		}
	}
	return 0, false
}

func mainField() *Field {
	return &Field{
		ID:    FieldMain,
		Name:  "main",
		Modes: ModeBuffer,
		Flags: Required | Fallback,
		Doc:   "Buffer the node writes its output to.",
	}
}

func floatField[T any](id byte, name string, modes Mode, get func(*T) *float32) *Field {
	return &Field{ID: id, Name: name, Modes: modes | ModeFloat, floatPtr: func(c any) *float32 { return get(c.(*T)) }}
}

func intField[T any](id byte, name string, enum []string, get func(*T) *int) *Field {
	return &Field{ID: id, Name: name, Modes: ModeInt, Enum: enum, intPtr: func(c any) *int { return get(c.(*T)) }}
}

func serialField(id byte, name, format string, set func(c *Config, b []byte) error) *Field {
	return &Field{ID: id, Name: name, Modes: ModeSerial, Flags: Required | Principal, Format: format, setSerial: set}
}

func (f *Field) with(flags Flag, doc string) *Field {
	f.Flags |= flags
	f.Doc = doc
	return f
}

// registry is filled on first use; it is read-only afterwards.
var (
	registryOnce sync.Once
	registry     [256]*Type
	registryList []*Type
	registryErr  error
)

func loadRegistry() {
	registryOnce.Do(func() {
		all := []*Type{
			instrumentType(),
			multiplexType(),
			oscType(),
			envType(),
			fmType(),
			harmType(),
			gainType(),
			addType(),
			multType(),
		}
		for _, t := range all {
			if err := validateType(t); err != nil {
				registryErr = err
				return
			}
			if registry[t.ID] != nil {
				registryErr = fmt.Errorf("node types %v and %v share id 0x%02x", registry[t.ID].Name, t.Name, t.ID)
				return
			}
			registry[t.ID] = t
			registryList = append(registryList, t)
		}
		sort.Slice(registryList, func(i, j int) bool { return registryList[i].ID < registryList[j].ID })
	})
}

func validateType(t *Type) error {
	if t.ID == 0 {
		return fmt.Errorf("node type %v: id 0 is reserved", t.Name)
	}
	if t.NewCustom == nil || t.Init == nil {
		return fmt.Errorf("node type %v: missing hooks", t.Name)
	}
	seen := map[byte]bool{}
	for _, f := range t.Fields {
		if f.ID == 0 {
			return fmt.Errorf("node type %v: field %v has reserved id 0", t.Name, f.Name)
		}
		if seen[f.ID] {
			return fmt.Errorf("node type %v: duplicate field id 0x%02x", t.Name, f.ID)
		}
		seen[f.ID] = true
		if f.Modes&ModeFloat != 0 && f.floatPtr == nil ||
			f.Modes&ModeInt != 0 && f.intPtr == nil ||
			f.Modes&ModeSerial != 0 && f.setSerial == nil {
			return fmt.Errorf("node type %v: field %v has no storage for its modes", t.Name, f.Name)
		}
	}
	if t.Field(FieldMain) == nil {
		return fmt.Errorf("node type %v: no main field", t.Name)
	}
	return nil
}

// Lookup returns the node type with the given id.
func Lookup(id byte) (*Type, error) {
	loadRegistry()
	if registryErr != nil {
		return nil, registryErr
	}
	if t := registry[id]; t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("0x%02x: %w", id, ErrUnknownType)
}

// LookupName returns the node type with the given name.
func LookupName(name string) (*Type, error) {
	loadRegistry()
	if registryErr != nil {
		return nil, registryErr
	}
	for _, t := range registryList {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrUnknownType)
}

// Types lists all registered node types in id order.
func Types() []*Type {
	loadRegistry()
	return registryList
}
