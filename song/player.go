package song

// Player is the playhead of one playback of a Song.
type Player struct {
	song   *Song
	repeat bool
	pos    int
	delay  int
	carry  float64
	tempo  float64
	// loops tells if a repeated pass advances time at all.
	loops bool
}

// NewPlayer starts playback of s at its first command.
func NewPlayer(s *Song, repeat bool) *Player {
	p := &Player{song: s, repeat: repeat, tempo: 1}
	for _, c := range s.Commands[min(s.Repeat, len(s.Commands)):] {
		if c.IsDelay() && c.Frames() > 0 {
			p.loops = true
			break
		}
	}
	return p
}

// SetTempo scales the speed of playback; 2 plays twice as fast. Non-positive
// values are ignored.
func (p *Player) SetTempo(multiplier float64) {
	if multiplier > 0 {
		p.tempo = multiplier
	}
}

func (p *Player) Tempo() float64 {
	return p.tempo
}

// Update runs commands until the next pending delay, calling trigger for
// every note on the way. It returns the number of frames until the next
// command, or done when the song ended.
func (p *Player) Update(trigger func(program, note byte)) (frames int, done bool) {
	for p.delay == 0 {
		if p.pos >= len(p.song.Commands) {
			if !p.repeat || !p.loops {
				return 0, true
			}
			p.pos = p.song.Repeat
		}
		c := p.song.Commands[p.pos]
		p.pos++
		switch {
		case c.IsTrigger():
			trigger(c.Program(), c.Note())
		case c.IsDelay():
			f := float64(c.Frames())/p.tempo + p.carry
			p.delay = int(f)
			p.carry = f - float64(p.delay)
		}
	}
	return p.delay, false
}

// Advance consumes frames of the pending delay. It must not be given more
// frames than the last Update returned.
func (p *Player) Advance(frames int) {
	p.delay = max(p.delay-frames, 0)
}
