package synth

type (
	// AudioBuffer is interleaved 16-bit audio.
	AudioBuffer struct {
		Samples  []int16
		Rate     int
		Channels int
	}

	// AudioOutput is a running output stream pulling from a Synth.
	AudioOutput interface {
		Close() error
	}

	// AudioContext is an audio device that can pull output from a Synth.
	AudioContext interface {
		Play(s *Synth) (AudioOutput, error)
		Close() error
	}
)

// Frames returns the number of frames in the buffer.
func (b AudioBuffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Render pulls audio from the synth until it is idle, but at most maxFrames
// frames. A song played with repeat never ends by itself, so maxFrames must
// bound it.
func (s *Synth) Render(h Held, maxFrames int) AudioBuffer {
	s.check(h)
	const block = 4096
	ret := AudioBuffer{Rate: s.store.rate, Channels: s.channels}
	for frames := 0; frames < maxFrames && !s.Idle(h); {
		n := min(block, maxFrames-frames)
		start := len(ret.Samples)
		ret.Samples = append(ret.Samples, make([]int16, n*s.channels)...)
		s.Update(h, ret.Samples[start:])
		frames += n
	}
	return ret
}
