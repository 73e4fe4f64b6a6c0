// Package pcm prints notes of node configs into 16-bit sample buffers and
// keeps the results in a bounded cache, optionally backed by files on disk.
package pcm

import (
	"errors"
	"fmt"
	"math"

	"github.com/eggtone/synth/node"
)

// ErrSilent is returned for notes that have no duration, so there is
// nothing to print.
var ErrSilent = errors.New("note has no duration")

type (
	// PCM is the printed audio of one note. Samples always has the full
	// length of the note; only the first Printed() of them are final while a
	// printer is still attached.
	PCM struct {
		Samples []int16

		printed int
		printer *Printer
	}

	// Printer runs a node runner block by block into a PCM.
	Printer struct {
		pcm     *PCM
		runner  *node.Runner
		scratch []float32
		done    func(*PCM)
	}
)

// NewPCM wraps already printed samples.
func NewPCM(samples []int16) *PCM {
	return &PCM{Samples: samples, printed: len(samples)}
}

// Printed returns the number of final samples.
func (p *PCM) Printed() int {
	return p.printed
}

// Complete tells if all samples are final.
func (p *PCM) Complete() bool {
	return p.printed == len(p.Samples)
}

// Printer returns the printer still working on the PCM, or nil.
func (p *PCM) Printer() *Printer {
	return p.printer
}

// Ensure makes at least the first n samples final, printing them if needed.
func (p *PCM) Ensure(n int) {
	if p.printer != nil {
		p.printer.Update(n)
	}
}

// NewPrinter instantiates c for note and allocates the PCM to print into.
// The length of the PCM is the duration of the note, capped at maxFrames if
// that is positive.
func NewPrinter(c *node.Config, note byte, maxFrames int) (*Printer, error) {
	scratch := make([]float32, node.ChunkSize)
	r, err := node.Instantiate(c, &node.Buffers{scratch}, note)
	if err != nil {
		return nil, fmt.Errorf("could not instantiate note %d: %w", note, err)
	}
	d := r.Duration()
	if d <= 0 {
		return nil, ErrSilent
	}
	if maxFrames > 0 && d > maxFrames {
		d = maxFrames
	}
	p := &Printer{runner: r, scratch: scratch}
	p.pcm = &PCM{Samples: make([]int16, d), printer: p}
	return p, nil
}

// PCM returns the buffer the printer prints into.
func (p *Printer) PCM() *PCM {
	return p.pcm
}

// OnDone sets a function called once when the last sample is printed.
func (p *Printer) OnDone(f func(*PCM)) {
	p.done = f
}

// Update prints samples until the first until of them are final, and tells
// if the PCM is complete.
func (p *Printer) Update(until int) bool {
	pcm := p.pcm
	until = min(until, len(pcm.Samples))
	for pcm.printed < until {
		n := min(node.ChunkSize, until-pcm.printed)
		clear(p.scratch[:n])
		p.runner.Update(n)
		quantize(pcm.Samples[pcm.printed:pcm.printed+n], p.scratch[:n])
		pcm.printed += n
	}
	if !pcm.Complete() {
		return false
	}
	if pcm.printer == p {
		pcm.printer = nil
		p.runner = nil
		if p.done != nil {
			p.done(pcm)
		}
	}
	return true
}

// Finish prints the rest of the note.
func (p *Printer) Finish() {
	p.Update(len(p.pcm.Samples))
}

func quantize(dst []int16, src []float32) {
	for i, v := range src {
		s := math.Round(float64(v) * 32767)
		dst[i] = int16(min(max(s, math.MinInt16), math.MaxInt16))
	}
}
