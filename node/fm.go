package node

import (
	"math"
)

type fmConfig struct {
	rate    float32
	modrate float32
	rng     float32
	level   float32
}

type fmState struct {
	carrier, modulator float64 // radians, 0..2π
}

func fmType() *Type {
	return &Type{
		ID:   0x05,
		Name: "fm",
		Doc:  "Two operator FM: a sine carrier whose rate is swept by a sine modulator.",
		Fields: []*Field{
			mainField(),
			floatField(0x02, "rate", ModeBuffer|ModeNoteHz, func(c *fmConfig) *float32 { return &c.rate }).
				with(DefaultNoteHz, "Carrier frequency in hertz. Defaults to the note frequency."),
			floatField(0x03, "modrate", 0, func(c *fmConfig) *float32 { return &c.modrate }).
				with(0, "Modulator frequency relative to the carrier."),
			floatField(0x04, "range", ModeBuffer, func(c *fmConfig) *float32 { return &c.rng }).
				with(0, "Modulation depth relative to the carrier rate."),
			floatField(0x05, "level", 0, func(c *fmConfig) *float32 { return &c.level }).
				with(0, "Output amplitude."),
		},
		NewCustom: func() any { return &fmConfig{modrate: 1, rng: 1, level: 1} },
		Init: func(r *Runner) error {
			r.SetUpdate(&fmState{}, updateFM)
			return nil
		},
	}
}

func updateFM(r *Runner, lo, hi int) {
	s := r.state.(*fmState)
	c := r.Config.Custom.(*fmConfig)
	main, rate, rng := r.Main(), r.Param(0x02), r.Param(0x04)
	w := 2 * math.Pi / float64(r.Config.Rate)
	modrate, level := float64(c.modrate), c.level
	for i := lo; i < hi; i++ {
		main[i] += float32(math.Sin(s.carrier)) * level
		base := float64(rate.At(i)) * w
		s.carrier = wrapRadians(s.carrier + base*(1+float64(rng.At(i))*math.Sin(s.modulator)))
		s.modulator = wrapRadians(s.modulator + base*modrate)
	}
}

func wrapRadians(p float64) float64 {
	p = math.Mod(p, 2*math.Pi)
	if p < 0 {
		p += 2 * math.Pi
	}
	return p
}
