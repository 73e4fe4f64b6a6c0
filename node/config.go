package node

import (
	"errors"
	"fmt"

	"github.com/eggtone/synth/field"
)

type (
	// Config is the decoded blueprint of one node. It is built by Decode or
	// DecodePartial followed by Ready, and must not change once ready; runners
	// of many notes share it.
	Config struct {
		Type   *Type
		Rate   int // output sample rate the config was decoded for
		Custom any // type specific constants, as allocated by Type.NewCustom
		Links  []Link
		// Values lists the decoded field assignments in input order.
		Values []Assignment

		assigned [256]bool
		ready    bool
	}

	// Link binds a field to a buffer slot or a per-note context value.
	Link struct {
		Field  *Field
		Target field.Target
	}

	// Assignment is one field as it appeared in the encoded config.
	Assignment struct {
		Field *Field
		Value field.Value
	}
)

// NewConfig returns an empty config of type t.
func NewConfig(t *Type, rate int) *Config {
	return &Config{Type: t, Rate: rate, Custom: t.NewCustom()}
}

// Decode decodes one complete node, type id included, and readies it. All of
// b must be consumed.
func Decode(b []byte, rate int) (*Config, error) {
	c, n, err := DecodeNode(b, rate)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%d trailing bytes after %v node", len(b)-n, c.Type.Name)
	}
	return c, nil
}

// DecodeNode decodes one node from the start of b and readies it, returning
// the number of bytes consumed.
func DecodeNode(b []byte, rate int) (*Config, int, error) {
	if len(b) < 1 {
		return nil, 0, &field.DecodeError{Offset: 0, Err: field.ErrTruncated}
	}
	t, err := Lookup(b[0])
	if err != nil {
		return nil, 0, err
	}
	c := NewConfig(t, rate)
	n, err := DecodePartial(c, b[1:])
	if err != nil {
		return nil, 0, fmt.Errorf("%v: %w", t.Name, offsetError(err, 1))
	}
	if err := Ready(c); err != nil {
		return nil, 0, err
	}
	return c, n + 1, nil
}

// DecodePartial reads fields into c until the terminating zero field id and
// returns the number of bytes consumed, terminator included.
func DecodePartial(c *Config, b []byte) (int, error) {
	if c.ready {
		return 0, fmt.Errorf("%v: config is already ready", c.Type.Name)
	}
	p := 0
	for {
		if p >= len(b) {
			return 0, &field.DecodeError{Offset: p, Err: field.ErrTruncated}
		}
		id := b[p]
		p++
		if id == 0 {
			return p, nil
		}
		f := c.Type.Field(id)
		if f == nil {
			return 0, fmt.Errorf("unknown field 0x%02x: %w", id, ErrAssignMode)
		}
		v, n, err := field.Decode(b[p:])
		if err != nil {
			return 0, fmt.Errorf("field %v: %w", f.Name, offsetError(err, p))
		}
		p += n
		if err := c.Assign(f, v); err != nil {
			return 0, offsetError(err, p-len(v.Serial))
		}
	}
}

// Assign sets one field from a decoded value. A later assignment of the same
// field replaces the earlier one.
func (c *Config) Assign(f *Field, v field.Value) error {
	if c.ready {
		return fmt.Errorf("%v: config is already ready", c.Type.Name)
	}
	switch v.Kind {
	case field.KindLink:
		if !f.Modes.Accepts(v.Target) {
			return fmt.Errorf("field %v cannot link to %v: %w", f.Name, v.Target, ErrAssignMode)
		}
		c.unlink(f)
		c.Links = append(c.Links, Link{Field: f, Target: v.Target})
	case field.KindFloat, field.KindInt:
		switch {
		case f.Modes&ModeFloat != 0:
			*f.floatPtr(c.Custom) = v.Float
		case f.Modes&ModeInt != 0:
			if !v.Integral() {
				return fmt.Errorf("field %v needs an integer, got %v: %w", f.Name, v.Float, ErrAssignMode)
			}
			if f.Enum != nil && (v.Int < 0 || v.Int >= len(f.Enum)) {
				return fmt.Errorf("field %v: %d is not one of %v", f.Name, v.Int, f.Enum)
			}
			*f.intPtr(c.Custom) = v.Int
		default:
			return fmt.Errorf("field %v cannot be a constant: %w", f.Name, ErrAssignMode)
		}
		c.unlink(f)
	case field.KindSerial:
		if f.Modes&ModeSerial == 0 {
			return fmt.Errorf("field %v cannot be a serial block: %w", f.Name, ErrAssignMode)
		}
		if err := f.setSerial(c, v.Serial); err != nil {
			return fmt.Errorf("field %v: %w", f.Name, err)
		}
		v.Serial = append([]byte(nil), v.Serial...)
	}
	c.assigned[f.ID] = true
	c.Values = append(c.Values, Assignment{Field: f, Value: v})
	return nil
}

func (c *Config) unlink(f *Field) {
	for i, l := range c.Links {
		if l.Field == f {
			c.Links = append(c.Links[:i], c.Links[i+1:]...)
			return
		}
	}
}

// Assigned tells if the field has been given a value or a link.
func (c *Config) Assigned(f *Field) bool {
	return c.assigned[f.ID]
}

// Link returns the link of the field, if any.
func (c *Config) Link(f *Field) (field.Target, bool) {
	for _, l := range c.Links {
		if l.Field == f {
			return l.Target, true
		}
	}
	return 0, false
}

// IsReady tells if Ready has completed on the config.
func (c *Config) IsReady() bool {
	return c.ready
}

// Ready completes the config: unassigned fields get their default links,
// missing required fields fail, and the type derives its runtime state.
// Calling it again is a no-op.
func Ready(c *Config) error {
	if c.ready {
		return nil
	}
	var defaults []Link
	for _, f := range c.Type.Fields {
		if c.assigned[f.ID] {
			continue
		}
		switch {
		case f.Flags&Fallback != 0:
			defaults = append(defaults, Link{Field: f, Target: 0})
		case f.Flags&DefaultNoteHz != 0:
			defaults = append(defaults, Link{Field: f, Target: field.TargetNoteHz})
		case f.Flags&Required != 0:
			return fmt.Errorf("%v.%v: %w", c.Type.Name, f.Name, ErrMissingField)
		}
	}
	n := len(c.Links)
	c.Links = append(c.Links, defaults...)
	if c.Type.Ready != nil {
		if err := c.Type.Ready(c); err != nil {
			c.Links = c.Links[:n]
			return fmt.Errorf("%v: %w", c.Type.Name, err)
		}
	}
	c.ready = true
	return nil
}

// decodeNodes decodes a concatenation of complete nodes.
func decodeNodes(b []byte, rate int) ([]*Config, error) {
	var ret []*Config
	for p := 0; p < len(b); {
		c, n, err := DecodeNode(b[p:], rate)
		if err != nil {
			return nil, offsetError(err, p)
		}
		ret = append(ret, c)
		p += n
	}
	return ret, nil
}

// offsetError shifts the offset of a wrapped decode error by delta. The
// wrapping chain is kept.
func offsetError(err error, delta int) error {
	var de *field.DecodeError
	if errors.As(err, &de) {
		de.Offset += delta
	}
	return err
}
