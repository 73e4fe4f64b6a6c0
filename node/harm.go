package node

import (
	"fmt"
	"math"
)

const harmTableSize = 1024

type harmConfig struct {
	rate  float32
	coefs []float32
	level float32
	table []float32
}

type harmState struct {
	phase float64 // cycles
}

func harmType() *Type {
	return &Type{
		ID:   0x06,
		Name: "harm",
		Doc:  "Additive oscillator: a sum of harmonics of the rate, one coefficient per harmonic.",
		Fields: []*Field{
			mainField(),
			floatField(0x02, "rate", ModeBuffer|ModeNoteHz, func(c *harmConfig) *float32 { return &c.rate }).
				with(DefaultNoteHz, "Fundamental frequency in hertz. Defaults to the note frequency."),
			serialField(0x03, "coefs", "coefficients", setHarmCoefs).
				with(0, "Amplitude of each harmonic, fundamental first, 0..1."),
			floatField(0x04, "level", 0, func(c *harmConfig) *float32 { return &c.level }).
				with(0, "Output amplitude."),
		},
		NewCustom: func() any { return &harmConfig{level: 1} },
		Ready:     readyHarm,
		Init: func(r *Runner) error {
			r.SetUpdate(&harmState{}, updateHarm)
			return nil
		},
	}
}

func setHarmCoefs(c *Config, b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("no harmonics")
	}
	h := c.Custom.(*harmConfig)
	h.coefs = make([]float32, len(b))
	for i, v := range b {
		h.coefs[i] = float32(v) / 255
	}
	return nil
}

func readyHarm(c *Config) error {
	h := c.Custom.(*harmConfig)
	h.table = make([]float32, harmTableSize)
	for i := range h.table {
		var sum float64
		for n, coef := range h.coefs {
			sum += float64(coef) * math.Sin(2*math.Pi*float64((n+1)*i)/harmTableSize)
		}
		h.table[i] = float32(sum)
	}
	return nil
}

func updateHarm(r *Runner, lo, hi int) {
	s := r.state.(*harmState)
	h := r.Config.Custom.(*harmConfig)
	main, rate := r.Main(), r.Param(0x02)
	sr := float64(r.Config.Rate)
	for i := lo; i < hi; i++ {
		main[i] += h.table[int(s.phase*harmTableSize)&(harmTableSize-1)] * h.level
		s.phase += float64(rate.At(i)) / sr
		s.phase -= math.Floor(s.phase)
	}
}
