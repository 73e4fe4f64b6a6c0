package node

import (
	"github.com/viterin/vek/vek32"
)

type gainConfig struct {
	gain float32
	clip float32
}

type valueConfig struct {
	value float32
}

func gainType() *Type {
	return &Type{
		ID:   0x07,
		Name: "gain",
		Doc:  "Scales main, optionally clipping the result.",
		Fields: []*Field{
			mainField(),
			floatField(0x02, "gain", ModeBuffer|ModeNoteID, func(c *gainConfig) *float32 { return &c.gain }).
				with(0, "Multiplier, 1 by default."),
			floatField(0x03, "clip", 0, func(c *gainConfig) *float32 { return &c.clip }).
				with(0, "Clip the result to -clip..clip. 0 disables clipping."),
		},
		NewCustom: func() any { return &gainConfig{gain: 1} },
		Init: func(r *Runner) error {
			if !genericOnly && !r.Param(0x02).Linked() {
				r.SetUpdate(nil, updateGainConst)
			} else {
				r.SetUpdate(nil, updateGain)
			}
			return nil
		},
	}
}

func updateGain(r *Runner, lo, hi int) {
	main, gain := r.Main(), r.Param(0x02)
	for i := lo; i < hi; i++ {
		main[i] *= gain.At(i)
	}
	clipRange(main[lo:hi], r.Config.Custom.(*gainConfig).clip)
}

func updateGainConst(r *Runner, lo, hi int) {
	vek32.MulNumber_Inplace(r.Main()[lo:hi], r.Param(0x02).Val)
	clipRange(r.Main()[lo:hi], r.Config.Custom.(*gainConfig).clip)
}

func clipRange(x []float32, limit float32) {
	if limit <= 0 {
		return
	}
	for i, v := range x {
		x[i] = min(max(v, -limit), limit)
	}
}

func valueType(id byte, name, doc string, vector, scalar func(r *Runner, lo, hi int)) *Type {
	return &Type{
		ID:   id,
		Name: name,
		Doc:  doc,
		Fields: []*Field{
			mainField(),
			floatField(0x02, "value", ModeBuffer|ModeNoteID, func(c *valueConfig) *float32 { return &c.value }).
				with(Required, "Operand."),
		},
		NewCustom: func() any { return &valueConfig{} },
		Init: func(r *Runner) error {
			if !genericOnly && !r.Param(0x02).Linked() {
				r.SetUpdate(nil, scalar)
			} else {
				r.SetUpdate(nil, vector)
			}
			return nil
		},
	}
}

func addType() *Type {
	return valueType(0x08, "add", "Adds value to main.",
		func(r *Runner, lo, hi int) {
			main, v := r.Main(), r.Param(0x02)
			if v.Linked() {
				vek32.Add_Inplace(main[lo:hi], v.Vec[lo:hi])
				return
			}
			for i := lo; i < hi; i++ {
				main[i] += v.Val
			}
		},
		func(r *Runner, lo, hi int) {
			vek32.AddNumber_Inplace(r.Main()[lo:hi], r.Param(0x02).Val)
		})
}

func multType() *Type {
	return valueType(0x09, "mult", "Multiplies main by value.",
		func(r *Runner, lo, hi int) {
			main, v := r.Main(), r.Param(0x02)
			if v.Linked() {
				vek32.Mul_Inplace(main[lo:hi], v.Vec[lo:hi])
				return
			}
			for i := lo; i < hi; i++ {
				main[i] *= v.Val
			}
		},
		func(r *Runner, lo, hi int) {
			vek32.MulNumber_Inplace(r.Main()[lo:hi], r.Param(0x02).Val)
		})
}
