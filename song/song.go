// Package song flattens Standard MIDI Files into a compact stream of note
// triggers and delays, and plays such streams back.
package song

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Command is one 16-bit word of a flattened song.
//
//	0x0000..0x3fff  delay in frames
//	0x4000..0x7fff  trigger: 0x4000 | program<<7 | note
//	0x8000..0xffff  reserved, skipped on playback
type Command uint16

const (
	MaxDelay      = 0x3fff
	triggerBit    = 0x4000
	reservedBit   = 0x8000
	maxTracks     = 17
	defaultTempo  = 500000 // µs per quarter note, 120 BPM
	loopMarker    = "loop"
	channelsCount = 16
)

// ErrFormat is returned for input that is not a usable MIDI file.
var ErrFormat = errors.New("unsupported song format")

// Song is an immutable flattened song. Many players may share one.
type Song struct {
	Commands []Command
	// Repeat is the index of the command playback restarts from when
	// repeating.
	Repeat int
	// Rate is the sample rate the delays were computed for.
	Rate int

	TicksPerQnote int
	// UsPerTick is the tick length at the tempo the song starts with.
	UsPerTick float64
}

func Delay(frames int) Command {
	return Command(frames & MaxDelay)
}

func Trigger(program, note byte) Command {
	return Command(triggerBit | int(program&0x7f)<<7 | int(note&0x7f))
}

func (c Command) IsDelay() bool {
	return c&(reservedBit|triggerBit) == 0
}

func (c Command) IsTrigger() bool {
	return c&(reservedBit|triggerBit) == triggerBit
}

func (c Command) Frames() int {
	return int(c & MaxDelay)
}

func (c Command) Program() byte {
	return byte(c >> 7 & 0x7f)
}

func (c Command) Note() byte {
	return byte(c & 0x7f)
}

func (c Command) String() string {
	switch {
	case c.IsDelay():
		return fmt.Sprintf("delay %d", c.Frames())
	case c.IsTrigger():
		return fmt.Sprintf("trigger %d:%d", c.Program(), c.Note())
	}
	return fmt.Sprintf("reserved 0x%04x", uint16(c))
}

// Frames returns the length of one pass through the song in frames.
func (s *Song) Frames() int {
	n := 0
	for _, c := range s.Commands {
		if c.IsDelay() {
			n += c.Frames()
		}
	}
	return n
}

// Decode flattens a Standard MIDI File for output at rate.
func Decode(data []byte, rate int) (*Song, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid rate %d", rate)
	}
	f, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	ticks, ok := f.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fmt.Errorf("%w: time format %v is not metric", ErrFormat, f.TimeFormat)
	}
	if len(f.Tracks) < 1 || len(f.Tracks) > maxTracks {
		return nil, fmt.Errorf("%w: %d tracks, expected 1 to %d", ErrFormat, len(f.Tracks), maxTracks)
	}
	d := decoder{
		song:  &Song{Rate: rate, TicksPerQnote: int(ticks)},
		tempo: defaultTempo,
	}
	d.merge(f.Tracks)
	return d.song, nil
}

type decoder struct {
	song     *Song
	tempo    int // µs per quarter note
	started  bool
	frames   int
	carry    float64
	programs [channelsCount]byte
}

type cursor struct {
	events  smf.Track
	pending uint32
}

// merge walks all tracks in time order. Events at equal time are taken track
// by track in file order.
func (d *decoder) merge(tracks []smf.Track) {
	cursors := make([]*cursor, 0, len(tracks))
	for _, t := range tracks {
		if len(t) > 0 {
			cursors = append(cursors, &cursor{events: t, pending: t[0].Delta})
		}
	}
	for {
		var next uint32 = math.MaxUint32
		active := false
		for _, c := range cursors {
			if len(c.events) > 0 {
				active = true
				next = min(next, c.pending)
			}
		}
		if !active {
			break
		}
		d.elapse(next)
		for _, c := range cursors {
			if len(c.events) == 0 {
				continue
			}
			c.pending -= next
			for len(c.events) > 0 && c.pending == 0 {
				d.event(c.events[0].Message)
				c.events = c.events[1:]
				if len(c.events) > 0 {
					c.pending = c.events[0].Delta
				}
			}
		}
	}
	d.flush()
	if d.song.UsPerTick == 0 {
		d.song.UsPerTick = float64(d.tempo) / float64(d.song.TicksPerQnote)
	}
}

func (d *decoder) elapse(ticks uint32) {
	if ticks == 0 {
		return
	}
	d.startTempo()
	f := float64(ticks)*float64(d.song.Rate)*float64(d.tempo)/(float64(d.song.TicksPerQnote)*1e6) + d.carry
	whole := math.Floor(f)
	d.carry = f - whole
	d.frames += int(whole)
}

// startTempo records the initial tick length once time first moves.
func (d *decoder) startTempo() {
	if !d.started {
		d.started = true
		d.song.UsPerTick = float64(d.tempo) / float64(d.song.TicksPerQnote)
	}
}

func (d *decoder) flush() {
	for d.frames > 0 {
		n := min(d.frames, MaxDelay)
		d.song.Commands = append(d.song.Commands, Delay(n))
		d.frames -= n
	}
}

func (d *decoder) event(msg smf.Message) {
	var bpm float64
	var text string
	var ch, key, vel, prog uint8
	m := midi.Message(msg)
	switch {
	case msg.GetMetaTempo(&bpm):
		if bpm > 0 {
			d.tempo = int(math.Round(60000000 / bpm))
		}
	case msg.GetMetaMarker(&text):
		if strings.EqualFold(strings.TrimSpace(text), loopMarker) {
			d.flush()
			d.song.Repeat = len(d.song.Commands)
		}
	case m.GetProgramChange(&ch, &prog):
		d.programs[ch&0xf] = prog & 0x7f
	case m.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			return
		}
		d.flush()
		d.song.Commands = append(d.song.Commands, Trigger(d.programs[ch&0xf], key))
	}
}
