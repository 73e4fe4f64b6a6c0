package node

import (
	"fmt"
	"sort"

	"github.com/eggtone/synth/field"
	"github.com/viterin/vek/vek32"
)

type (
	instrumentConfig struct {
		level    float32
		children []*Config
		slots    uint16
	}

	multiplexConfig struct {
		ranges []muxRange
	}

	muxRange struct {
		start, count, dest byte
		child              *Config
		slots              uint16
	}

	// containerState is the runner state of both container types.
	containerState struct {
		bufs     Buffers
		slots    uint16
		children []*Runner
		level    float32
	}
)

func instrumentType() *Type {
	return &Type{
		ID:   0x01,
		Name: "instrument",
		Doc:  "Runs a list of nodes over private buffers and mixes buffer 0 into main.",
		Fields: []*Field{
			mainField(),
			serialField(0x02, "nodes", "nodes", func(c *Config, b []byte) error {
				children, err := decodeNodes(b, c.Rate)
				if err != nil {
					return err
				}
				c.Custom.(*instrumentConfig).children = children
				return nil
			}).with(0, "Child nodes, run in order."),
			floatField(0x03, "level", 0, func(c *instrumentConfig) *float32 { return &c.level }).
				with(0, "Amount of buffer 0 mixed into main."),
		},
		NewCustom: func() any { return &instrumentConfig{level: 1} },
		Ready: func(c *Config) error {
			ic := c.Custom.(*instrumentConfig)
			ic.slots = usedSlots(ic.children...)
			return nil
		},
		Init: func(r *Runner) error {
			ic := r.Config.Custom.(*instrumentConfig)
			s := newContainerState(ic.slots, ic.level)
			for _, child := range ic.children {
				cr, err := Instantiate(child, &s.bufs, r.Note)
				if err != nil {
					return err
				}
				s.children = append(s.children, cr)
			}
			r.SetUpdate(s, updateContainer)
			return nil
		},
		Duration: containerDuration,
	}
}

func multiplexType() *Type {
	return &Type{
		ID:   0x02,
		Name: "multiplex",
		Doc:  "Picks one child node by the note id and plays it with a remapped note.",
		Fields: []*Field{
			mainField(),
			serialField(0x02, "ranges", "ranges", setRanges).
				with(0, "Sorted note ranges, each with its own child node."),
		},
		NewCustom: func() any { return &multiplexConfig{} },
		Init:      initMultiplex,
		Duration:  containerDuration,
	}
}

func setRanges(c *Config, b []byte) error {
	m := c.Custom.(*multiplexConfig)
	m.ranges = nil
	next := 0
	for p := 0; p < len(b); {
		if p+3 > len(b) {
			return &field.DecodeError{Offset: len(b), Err: field.ErrTruncated}
		}
		rg := muxRange{start: b[p], count: b[p+1], dest: b[p+2]}
		if rg.count == 0 || int(rg.start)+int(rg.count) > 128 {
			return fmt.Errorf("bad range %d+%d", rg.start, rg.count)
		}
		if int(rg.start) < next {
			return fmt.Errorf("range at %d overlaps or is out of order", rg.start)
		}
		next = int(rg.start) + int(rg.count)
		child, n, err := DecodeNode(b[p+3:], c.Rate)
		if err != nil {
			return offsetError(err, p+3)
		}
		rg.child = child
		rg.slots = usedSlots(child)
		m.ranges = append(m.ranges, rg)
		p += 3 + n
	}
	return nil
}

func initMultiplex(r *Runner) error {
	m := r.Config.Custom.(*multiplexConfig)
	i := sort.Search(len(m.ranges), func(i int) bool {
		rg := &m.ranges[i]
		return int(rg.start)+int(rg.count) > int(r.Note)
	})
	if i == len(m.ranges) || m.ranges[i].start > r.Note {
		r.SetUpdate(nil, func(*Runner, int, int) {})
		return nil
	}
	rg := &m.ranges[i]
	s := newContainerState(rg.slots, 1)
	note := r.Note - rg.start + rg.dest
	cr, err := Instantiate(rg.child, &s.bufs, note)
	if err != nil {
		return err
	}
	s.children = append(s.children, cr)
	r.SetUpdate(s, updateContainer)
	return nil
}

// usedSlots returns the mask of buffer slots linked by the configs, slot 0
// always included.
func usedSlots(configs ...*Config) uint16 {
	mask := uint16(1)
	for _, c := range configs {
		for _, l := range c.Links {
			if l.Target.IsBuffer() {
				mask |= 1 << l.Target
			}
		}
	}
	return mask
}

func newContainerState(slots uint16, level float32) *containerState {
	s := &containerState{slots: slots, level: level}
	for i := range s.bufs {
		if slots&(1<<i) != 0 {
			s.bufs[i] = make([]float32, ChunkSize)
		}
	}
	return s
}

func updateContainer(r *Runner, lo, hi int) {
	s := r.state.(*containerState)
	n := hi - lo
	for i, b := range s.bufs {
		if s.slots&(1<<i) != 0 {
			clear(b[:n])
		}
	}
	for _, c := range s.children {
		c.Update(n)
	}
	out := s.bufs[0][:n]
	if s.level != 1 {
		vek32.MulNumber_Inplace(out, s.level)
	}
	vek32.Add_Inplace(r.Main()[lo:hi], out)
}

func containerDuration(r *Runner) int {
	s, ok := r.state.(*containerState)
	if !ok {
		return 0
	}
	d := 0
	for _, c := range s.children {
		d = max(d, c.Duration())
	}
	return d
}

// Children returns the runners of the child nodes of a container runner.
func (r *Runner) Children() []*Runner {
	if s, ok := r.state.(*containerState); ok {
		return s.children
	}
	return nil
}
