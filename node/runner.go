package node

import (
	"fmt"
	"math"

	"github.com/eggtone/synth/field"
)

// ChunkSize is the largest block a runner processes at once. Containers keep
// scratch buffers of this size for their children.
const ChunkSize = 1024

type (
	// Buffers are the shared buffer slots of one container. A nil slot was not
	// supplied and cannot be linked to.
	Buffers [field.NumBuffers][]float32

	// Param is the per-note value of one field: either a constant (or context
	// value) in Val, or a buffer in Vec when linked.
	Param struct {
		Vec []float32
		Val float32
	}

	// Runner is a live per-note instance of a Config.
	Runner struct {
		Config *Config
		Note   byte
		NoteHz float32

		params []Param
		state  any
		update func(r *Runner, lo, hi int)
	}
)

// At returns the value of the param at sample i.
func (p *Param) At(i int) float32 {
	if p.Vec != nil {
		return p.Vec[i]
	}
	return p.Val
}

// Linked tells if the param follows a buffer.
func (p *Param) Linked() bool {
	return p.Vec != nil
}

// Instantiate creates a runner for config c playing note, with buffer links
// bound to the slots in bufs.
func Instantiate(c *Config, bufs *Buffers, note byte) (*Runner, error) {
	if !c.ready {
		return nil, fmt.Errorf("%v: instantiating a config that is not ready", c.Type.Name)
	}
	r := &Runner{
		Config: c,
		Note:   note,
		NoteHz: NoteFrequency(note),
		params: make([]Param, c.Type.maxFieldID()+1),
	}
	for _, f := range c.Type.Fields {
		if f.floatPtr != nil {
			r.params[f.ID].Val = *f.floatPtr(c.Custom)
		}
	}
	for _, l := range c.Links {
		p := &r.params[l.Field.ID]
		switch {
		case l.Target.IsBuffer():
			if bufs == nil || bufs[l.Target] == nil {
				return nil, fmt.Errorf("%v.%v: linked to %v which was not supplied", c.Type.Name, l.Field.Name, l.Target)
			}
			p.Vec = bufs[l.Target]
		case l.Target == field.TargetNoteID:
			p.Val = float32(note)
		case l.Target == field.TargetNoteHz:
			p.Val = r.NoteHz
		}
	}
	if err := c.Type.Init(r); err != nil {
		return nil, fmt.Errorf("%v: %w", c.Type.Name, err)
	}
	if r.update == nil {
		return nil, fmt.Errorf("%v: no update strategy", c.Type.Name)
	}
	return r, nil
}

// Param returns the per-note value of field id.
func (r *Runner) Param(id byte) *Param {
	return &r.params[id]
}

// Main returns the output buffer of the runner.
func (r *Runner) Main() []float32 {
	return r.params[FieldMain].Vec
}

// State returns the type specific state set with SetUpdate.
func (r *Runner) State() any {
	return r.state
}

// SetUpdate installs the runner state and the update strategy, which
// processes samples lo..hi of the bound buffers. hi-lo never exceeds
// ChunkSize.
func (r *Runner) SetUpdate(state any, update func(r *Runner, lo, hi int)) {
	r.state = state
	r.update = update
}

// Update renders n samples into the bound buffers, starting at index 0.
func (r *Runner) Update(n int) {
	for lo := 0; lo < n; lo += ChunkSize {
		r.update(r, lo, min(lo+ChunkSize, n))
	}
}

// Duration returns the length of the note in frames, or 0 if the node does
// not bound it.
func (r *Runner) Duration() int {
	if r.Config.Type.Duration == nil {
		return 0
	}
	return r.Config.Type.Duration(r)
}

// NoteFrequency maps a note id to hertz in equal temperament, A4 = 440 Hz at
// note 69.
func NoteFrequency(note byte) float32 {
	return noteTable[note&0x7f]
}

var noteTable = func() (t [128]float32) {
	for i := range t {
		t[i] = float32(440 * math.Exp2(float64(i-69)/12))
	}
	return t
}()
