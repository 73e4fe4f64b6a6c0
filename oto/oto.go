// Package oto plays a synth through the system audio device.
package oto

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"
	"github.com/eggtone/synth"
)

const otoBufferBytes = 8192

type (
	Context struct {
		ctx      *oto.Context
		rate     int
		channels int
	}

	Output struct {
		player *oto.Player
	}

	// Reader pulls 16-bit little-endian audio from a synth. It never waits
	// for the synth lock: if another goroutine holds it, the block is silent.
	Reader struct {
		synth    *synth.Synth
		channels int
		buf      []int16
	}
)

// NewContext opens the audio device and waits until it is ready.
func NewContext(rate, channels int) (*Context, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{ctx: ctx, rate: rate, channels: channels}, nil
}

// Play starts pulling audio from s. The synth must run at the rate and
// channel count of the context.
func (c *Context) Play(s *synth.Synth) (synth.AudioOutput, error) {
	h := s.Lock().Acquire()
	rate, channels := s.Rate(h), s.Channels(h)
	h.Release()
	if rate != c.rate || channels != c.channels {
		return nil, fmt.Errorf("synth runs at %d Hz with %d channels, device at %d Hz with %d channels", rate, channels, c.rate, c.channels)
	}
	p := c.ctx.NewPlayer(NewReader(s, channels))
	p.SetBufferSize(otoBufferBytes)
	p.Play()
	return &Output{player: p}, nil
}

// Close suspends the device; oto contexts cannot be released.
func (c *Context) Close() error {
	if err := c.ctx.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (o *Output) Close() error {
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// NewReader returns a reader of frames of the given number of channels, the
// channel count of the synth.
func NewReader(s *synth.Synth, channels int) *Reader {
	return &Reader{synth: s, channels: max(channels, 1)}
}

// Read implements io.Reader, filling whole frames of p.
func (r *Reader) Read(p []byte) (int, error) {
	n := len(p) / 2 / r.channels * r.channels
	h, ok := r.synth.Lock().TryAcquire()
	if !ok {
		clear(p[:2*n])
		return 2 * n, nil
	}
	defer h.Release()
	if ch := r.synth.Channels(h); ch != r.channels {
		return 0, fmt.Errorf("synth switched to %d channels while streaming %d", ch, r.channels)
	}
	if cap(r.buf) < n {
		r.buf = make([]int16, n)
	}
	buf := r.buf[:n]
	r.synth.Update(h, buf)
	Int16ToLE(p, buf)
	return 2 * n, nil
}

var (
	_ io.Reader          = (*Reader)(nil)
	_ synth.AudioContext = (*Context)(nil)
)
