package node

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Envelope content flags. A content whose first byte has EnvPreset set is a
// single Short byte; otherwise it is the Long point list.
const (
	EnvPreset = 0x80

	EnvHiRes  = 0x01
	EnvInit   = 0x02
	EnvSigned = 0x04
	EnvCurve  = 0x08
)

const (
	EnvMultiply = iota
	EnvSet
	EnvAdd
)

// Short envelope presets.
var (
	ShortAttackMS  = [4]int{4, 12, 30, 80}
	ShortDecayMS   = [4]int{30, 80, 200, 500}
	ShortSustain   = [4]float32{0.70, 0.50, 0.30, 0.15}
	ShortReleaseMS = [8]int{15, 40, 80, 150, 300, 600, 1000, 2000}
)

const shortCurve = 64

var errEnvFormat = errors.New("malformed envelope")

type (
	envConfig struct {
		mode int

		initial float32
		points  []EnvPoint

		segs  []envSegment
		total int
	}

	// EnvPoint is one breakpoint: reach Level Time milliseconds after the
	// previous point. Curve 0 is linear, 1..255 exponential.
	EnvPoint struct {
		Time  int
		Level float32
		Curve byte
	}

	envSegment struct {
		frames int
		target float32
		curve  byte
	}

	envState struct {
		seg, pos int
		level    float64
		delta    float64 // linear
		k, m     float64 // exponential
		dlevel   float64
		state    float64
	}
)

var envModes = []string{"multiply", "set", "add"}

func envType() *Type {
	return &Type{
		ID:   0x04,
		Name: "env",
		Doc:  "Breakpoint envelope combined with the content of main.",
		Fields: []*Field{
			mainField(),
			intField(0x02, "mode", envModes, func(c *envConfig) *int { return &c.mode }).
				with(0, "How the envelope combines with main."),
			serialField(0x03, "content", "envelope", setEnvContent).
				with(0, "Breakpoints, either the attack/decay/release presets or explicit points."),
		},
		NewCustom: func() any { return &envConfig{} },
		Ready:     readyEnv,
		Init:      initEnv,
		Duration: func(r *Runner) int {
			return r.Config.Custom.(*envConfig).total
		},
	}
}

func setEnvContent(c *Config, b []byte) error {
	initial, points, err := ParseEnvelope(b)
	if err != nil {
		return err
	}
	e := c.Custom.(*envConfig)
	e.initial, e.points = initial, points
	return nil
}

// ParseEnvelope decodes envelope content in either format into its initial
// level and points.
func ParseEnvelope(b []byte) (float32, []EnvPoint, error) {
	if len(b) < 1 {
		return 0, nil, fmt.Errorf("empty content: %w", errEnvFormat)
	}
	if b[0]&EnvPreset != 0 {
		if len(b) != 1 {
			return 0, nil, fmt.Errorf("short form is one byte, got %d: %w", len(b), errEnvFormat)
		}
		attack, decay, release := b[0]>>5&3, b[0]>>3&3, b[0]&7
		return 0, []EnvPoint{
			{Time: ShortAttackMS[attack], Level: 1},
			{Time: ShortDecayMS[decay], Level: ShortSustain[decay], Curve: shortCurve},
			{Time: ShortReleaseMS[release], Level: 0, Curve: shortCurve},
		}, nil
	}
	flags := b[0]
	if flags&^(EnvHiRes|EnvInit|EnvSigned|EnvCurve) != 0 {
		return 0, nil, fmt.Errorf("unknown flags 0x%02x: %w", flags, errEnvFormat)
	}
	if len(b) < 2 || b[1] == 0 {
		return 0, nil, fmt.Errorf("missing point count: %w", errEnvFormat)
	}
	count := int(b[1])
	p := 2
	readLevel := func() (float32, bool) {
		switch {
		case flags&EnvHiRes != 0 && flags&EnvSigned != 0:
			if p+2 > len(b) {
				return 0, false
			}
			v := float32(int16(binary.BigEndian.Uint16(b[p:]))) / 32767
			p += 2
			return v, true
		case flags&EnvHiRes != 0:
			if p+2 > len(b) {
				return 0, false
			}
			v := float32(binary.BigEndian.Uint16(b[p:])) / 65535
			p += 2
			return v, true
		case flags&EnvSigned != 0:
			if p >= len(b) {
				return 0, false
			}
			v := float32(int8(b[p])) / 127
			p++
			return v, true
		}
		if p >= len(b) {
			return 0, false
		}
		v := float32(b[p]) / 255
		p++
		return v, true
	}
	var initial float32
	if flags&EnvInit != 0 {
		var ok bool
		if initial, ok = readLevel(); !ok {
			return 0, nil, fmt.Errorf("truncated initial level: %w", errEnvFormat)
		}
	}
	points := make([]EnvPoint, count)
	for i := range points {
		pt := &points[i]
		if flags&EnvHiRes != 0 {
			if p+2 > len(b) {
				return 0, nil, fmt.Errorf("truncated point %d: %w", i, errEnvFormat)
			}
			pt.Time = int(binary.BigEndian.Uint16(b[p:]))
			p += 2
		} else {
			if p >= len(b) {
				return 0, nil, fmt.Errorf("truncated point %d: %w", i, errEnvFormat)
			}
			pt.Time = int(b[p])
			p++
		}
		var ok bool
		if pt.Level, ok = readLevel(); !ok {
			return 0, nil, fmt.Errorf("truncated point %d: %w", i, errEnvFormat)
		}
		pt.Curve = 0
		if flags&EnvCurve != 0 {
			if p >= len(b) {
				return 0, nil, fmt.Errorf("truncated point %d: %w", i, errEnvFormat)
			}
			pt.Curve = b[p]
			p++
		}
	}
	if p != len(b) {
		return 0, nil, fmt.Errorf("%d trailing bytes: %w", len(b)-p, errEnvFormat)
	}
	return initial, points, nil
}

func readyEnv(c *Config) error {
	e := c.Custom.(*envConfig)
	e.segs = make([]envSegment, len(e.points))
	e.total = 0
	for i, pt := range e.points {
		frames := int(math.Round(float64(pt.Time) * float64(c.Rate) / 1000))
		e.segs[i] = envSegment{frames: frames, target: pt.Level, curve: pt.Curve}
		e.total += frames
	}
	return nil
}

func initEnv(r *Runner) error {
	e := r.Config.Custom.(*envConfig)
	s := &envState{level: float64(e.initial)}
	if len(e.segs) > 0 {
		s.enter(&e.segs[0])
	}
	if genericOnly {
		r.SetUpdate(s, updateEnv)
		return nil
	}
	switch e.mode {
	case EnvMultiply:
		r.SetUpdate(s, updateEnvMultiply)
	case EnvSet:
		r.SetUpdate(s, updateEnvSet)
	default:
		r.SetUpdate(s, updateEnv)
	}
	return nil
}

func (s *envState) enter(seg *envSegment) {
	start, target := s.level, float64(seg.target)
	if seg.frames == 0 {
		return
	}
	s.delta = (target - start) / float64(seg.frames)
	if seg.curve != 0 {
		s.k = float64(seg.curve) / 256
		s.m = math.Pow(s.k, 1/float64(seg.frames))
		s.dlevel = (start - target) / (1 - s.k)
		s.state = 1
	}
}

// step advances one frame and returns the level after it.
func (s *envState) step(segs []envSegment) float32 {
	for s.seg < len(segs) && s.pos >= segs[s.seg].frames {
		s.level = float64(segs[s.seg].target)
		s.seg++
		s.pos = 0
		if s.seg < len(segs) {
			s.enter(&segs[s.seg])
		}
	}
	if s.seg >= len(segs) {
		return float32(s.level)
	}
	seg := &segs[s.seg]
	s.pos++
	switch {
	case s.pos == seg.frames:
		s.level = float64(seg.target)
	case seg.curve == 0:
		s.level += s.delta
	default:
		s.state *= s.m
		s.level = float64(seg.target) + (s.state-s.k)*s.dlevel
	}
	return float32(s.level)
}

func updateEnv(r *Runner, lo, hi int) {
	s := r.state.(*envState)
	e := r.Config.Custom.(*envConfig)
	main := r.Main()
	for i := lo; i < hi; i++ {
		v := s.step(e.segs)
		switch e.mode {
		case EnvMultiply:
			main[i] *= v
		case EnvSet:
			main[i] = v
		case EnvAdd:
			main[i] += v
		}
	}
}

func updateEnvMultiply(r *Runner, lo, hi int) {
	s := r.state.(*envState)
	segs := r.Config.Custom.(*envConfig).segs
	main := r.Main()
	for i := lo; i < hi; i++ {
		main[i] *= s.step(segs)
	}
}

func updateEnvSet(r *Runner, lo, hi int) {
	s := r.state.(*envState)
	segs := r.Config.Custom.(*envConfig).segs
	main := r.Main()
	for i := lo; i < hi; i++ {
		main[i] = s.step(segs)
	}
}
