package node

import (
	"math"
)

const (
	ShapeSine = iota
	ShapeSquare
	ShapeSawUp
	ShapeSawDown
	ShapeTriangle
	ShapeImpulse
	ShapeNoise
	ShapeDC
)

var shapeNames = []string{"sine", "square", "sawup", "sawdown", "triangle", "impulse", "noise", "dc"}

type oscConfig struct {
	rate  float32
	shape int
	phase float32
	level float32
}

type oscState struct {
	phase   float64 // cycles, 0..1
	wrapped bool
	noise   uint32
	held    float32
}

// genericOnly makes every type use its generic update strategy.
var genericOnly bool

func oscType() *Type {
	return &Type{
		ID:   0x03,
		Name: "osc",
		Doc:  "Periodic waveform generator, added into main.",
		Fields: []*Field{
			mainField(),
			floatField(0x02, "rate", ModeBuffer|ModeNoteHz, func(c *oscConfig) *float32 { return &c.rate }).
				with(DefaultNoteHz, "Frequency in hertz. Defaults to the note frequency."),
			intField(0x03, "shape", shapeNames, func(c *oscConfig) *int { return &c.shape }).
				with(0, "Waveform."),
			floatField(0x04, "phase", 0, func(c *oscConfig) *float32 { return &c.phase }).
				with(0, "Initial phase in cycles."),
			floatField(0x05, "level", ModeBuffer, func(c *oscConfig) *float32 { return &c.level }).
				with(0, "Output amplitude, 1 by default."),
		},
		NewCustom: func() any { return &oscConfig{level: 1} },
		Init:      initOsc,
	}
}

func initOsc(r *Runner) error {
	c := r.Config.Custom.(*oscConfig)
	p := float64(c.phase)
	s := &oscState{phase: p - math.Floor(p), wrapped: true, noise: 0x2545f491}
	rate, level := r.Param(0x02), r.Param(0x05)
	if !genericOnly && !rate.Linked() && !level.Linked() && c.shape != ShapeNoise && c.shape != ShapeImpulse {
		r.SetUpdate(s, updateOscConst)
		return nil
	}
	r.SetUpdate(s, updateOsc)
	return nil
}

func updateOsc(r *Runner, lo, hi int) {
	s := r.state.(*oscState)
	shape := r.Config.Custom.(*oscConfig).shape
	main, rate, level := r.Main(), r.Param(0x02), r.Param(0x05)
	sr := float64(r.Config.Rate)
	for i := lo; i < hi; i++ {
		main[i] += s.sample(shape) * level.At(i)
		s.advance(float64(rate.At(i)) / sr)
	}
}

// updateOscConst handles the common case of a constant rate and level on a
// stateless waveform.
func updateOscConst(r *Runner, lo, hi int) {
	s := r.state.(*oscState)
	shape := r.Config.Custom.(*oscConfig).shape
	main := r.Main()
	level := r.Param(0x05).Val
	delta := float64(r.Param(0x02).Val) / float64(r.Config.Rate)
	for i := lo; i < hi; i++ {
		main[i] += waveform(shape, s.phase) * level
		s.phase += delta
		s.phase -= math.Floor(s.phase)
	}
}

func (s *oscState) advance(delta float64) {
	s.phase += delta
	w := math.Floor(s.phase)
	s.wrapped = w != 0
	s.phase -= w
}

func (s *oscState) sample(shape int) float32 {
	switch shape {
	case ShapeImpulse:
		if s.wrapped {
			return 1
		}
		return 0
	case ShapeNoise:
		if s.wrapped {
			s.noise ^= s.noise << 13
			s.noise ^= s.noise >> 17
			s.noise ^= s.noise << 5
			s.held = float32(int32(s.noise)) / -math.MinInt32
		}
		return s.held
	}
	return waveform(shape, s.phase)
}

func waveform(shape int, phase float64) float32 {
	switch shape {
	case ShapeSine:
		return float32(math.Sin(2 * math.Pi * phase))
	case ShapeSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case ShapeSawUp:
		return float32(2*phase - 1)
	case ShapeSawDown:
		return float32(1 - 2*phase)
	case ShapeTriangle:
		if phase < 0.5 {
			return float32(4*phase - 1)
		}
		return float32(3 - 4*phase)
	case ShapeDC:
		return 1
	}
	return 0
}
