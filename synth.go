// Package synth is the audio engine: it keeps 128 program slots of compiled
// synth programs, prints notes from them into a PCM cache and mixes playing
// notes and songs into 16-bit output.
//
// The engine does no locking of its own. Every entry point takes a Held from
// the Lock the engine was created with, so the real-time thread pulling audio
// and the threads changing programs or starting notes are serialized by the
// caller.
package synth

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/eggtone/synth/pcm"
	"github.com/eggtone/synth/song"
)

type (
	// Options configure a Synth. Zero values get the defaults noted.
	Options struct {
		Rate     int // 44100
		Channels int // 1
		Cache    pcm.Limits
		// DiskRoot enables the file tier of the PCM cache.
		DiskRoot string
		// Incremental prints notes while they play instead of all at once
		// when triggered.
		Incremental bool
		// MaxNoteSeconds caps the length of printed notes; 0 means no cap.
		MaxNoteSeconds float64
		// MaxVoices caps the number of notes playing at once; the oldest is
		// dropped for a new one. 0 means no cap.
		MaxVoices int
		Logger    *log.Logger
		// Lock guards the synth; a new one is made if nil.
		Lock *Lock
	}

	// Synth is the engine.
	Synth struct {
		lock     *Lock
		opts     Options
		store    store
		channels int
		voices   []voice
		player   *song.Player
		songData []byte
		repeat   bool
		err      string
		logger   *log.Logger
	}

	voice struct {
		pcm *pcm.PCM
		pos int
	}
)

const (
	DefaultRate     = 44100
	DefaultChannels = 1
	maxChannels     = 8
)

func New(opts Options) (*Synth, error) {
	if opts.Rate == 0 {
		opts.Rate = DefaultRate
	}
	if opts.Channels == 0 {
		opts.Channels = DefaultChannels
	}
	if err := validate(opts.Rate, opts.Channels); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Lock == nil {
		opts.Lock = &Lock{}
	}
	s := &Synth{lock: opts.Lock, opts: opts, channels: opts.Channels, logger: opts.Logger}
	s.store = store{
		cache:       pcm.NewCache(opts.Cache),
		rate:        opts.Rate,
		incremental: opts.Incremental,
		logger:      opts.Logger,
		report:      s.setError,
	}
	if opts.DiskRoot != "" {
		s.store.disk = &pcm.Disk{Root: opts.DiskRoot}
	}
	s.store.maxFrames = maxFrames(opts.MaxNoteSeconds, opts.Rate)
	return s, nil
}

func validate(rate, channels int) error {
	if rate < 1000 || rate > 384000 {
		return fmt.Errorf("unsupported rate %d", rate)
	}
	if channels < 1 || channels > maxChannels {
		return fmt.Errorf("unsupported channel count %d", channels)
	}
	return nil
}

func maxFrames(seconds float64, rate int) int {
	if seconds <= 0 {
		return 0
	}
	return int(math.Ceil(seconds * float64(rate)))
}

// Lock returns the lock guarding the synth.
func (s *Synth) Lock() *Lock {
	return s.lock
}

// Load replaces the bytes of one program. The bytes are decoded when the
// program is first played.
func (s *Synth) Load(h Held, program byte, raw []byte) error {
	s.check(h)
	if program >= NumPrograms {
		return fmt.Errorf("program id %d out of range", program)
	}
	s.store.load(program, raw)
	return nil
}

// LoadArchive loads every program of an archive. Nothing is loaded unless
// the whole archive parses.
func (s *Synth) LoadArchive(h Held, data []byte) error {
	s.check(h)
	entries, err := ParseArchive(data)
	if err != nil {
		return err
	}
	for _, e := range entries {
		s.store.load(e.Program, e.Body)
	}
	return nil
}

// PlayNote starts one note. A note that cannot sound is ignored; the reason
// is logged.
func (s *Synth) PlayNote(h Held, program, note byte) {
	s.check(h)
	s.playNote(program, note)
}

func (s *Synth) playNote(program, note byte) {
	if program >= NumPrograms {
		s.logger.Printf("program id %d out of range", program)
		return
	}
	p := s.store.getOrPrint(program, note, s.store.incremental)
	if p == nil || len(p.Samples) == 0 {
		return
	}
	if s.opts.MaxVoices > 0 && len(s.voices) >= s.opts.MaxVoices {
		s.logger.Printf("dropping oldest voice for %d:%d", program, note)
		s.voices = s.voices[1:]
	}
	s.voices = append(s.voices, voice{pcm: p})
}

// Print returns the complete PCM of a note, printing it if needed, or nil if
// the note is silent.
func (s *Synth) Print(h Held, program, note byte) *pcm.PCM {
	s.check(h)
	if program >= NumPrograms {
		return nil
	}
	p := s.store.getOrPrint(program, note, false)
	if p != nil {
		p.Ensure(len(p.Samples))
	}
	return p
}

// PlaySong decodes a MIDI file and starts playing it, replacing any song
// playing before.
func (s *Synth) PlaySong(h Held, data []byte, repeat bool) error {
	s.check(h)
	sg, err := song.Decode(data, s.store.rate)
	if err != nil {
		return err
	}
	s.songData = append([]byte(nil), data...)
	s.repeat = repeat
	s.player = song.NewPlayer(sg, repeat)
	return nil
}

// StopSong stops the song. Notes it started keep playing.
func (s *Synth) StopSong(h Held) {
	s.check(h)
	s.player = nil
	s.songData = nil
}

// SetSongTempo scales the speed of the current song.
func (s *Synth) SetSongTempo(h Held, multiplier float64) error {
	s.check(h)
	if multiplier <= 0 {
		return fmt.Errorf("invalid tempo multiplier %v", multiplier)
	}
	if s.player != nil {
		s.player.SetTempo(multiplier)
	}
	return nil
}

// SongPlaying tells if a song is playing.
func (s *Synth) SongPlaying(h Held) bool {
	s.check(h)
	return s.player != nil
}

// Idle tells if nothing is playing.
func (s *Synth) Idle(h Held) bool {
	s.check(h)
	return s.player == nil && len(s.voices) == 0
}

// Update fills out with interleaved samples, silence if nothing plays.
func (s *Synth) Update(h Held, out []int16) {
	s.check(h)
	clear(out)
	frames := len(out) / s.channels
	for done := 0; done < frames; {
		n := frames - done
		if s.player != nil {
			f, end := s.player.Update(s.playNote)
			if end {
				s.player = nil
				s.songData = nil
			} else {
				n = min(n, f)
			}
		}
		s.mix(out[done*s.channels:(done+n)*s.channels], n)
		if s.player != nil {
			s.player.Advance(n)
		}
		done += n
	}
}

// mix adds n frames of every voice into out, dropping voices that end.
func (s *Synth) mix(out []int16, n int) {
	ch := s.channels
	kept := s.voices[:0]
	for _, v := range s.voices {
		m := min(n, len(v.pcm.Samples)-v.pos)
		v.pcm.Ensure(v.pos + m)
		src := v.pcm.Samples[v.pos : v.pos+m]
		for i, smp := range src {
			for c := 0; c < ch; c++ {
				o := &out[i*ch+c]
				*o = saturate(int32(*o) + int32(smp))
			}
		}
		v.pos += m
		if v.pos < len(v.pcm.Samples) {
			kept = append(kept, v)
		}
	}
	clear(s.voices[len(kept):])
	s.voices = kept
}

func saturate(v int32) int16 {
	return int16(min(max(v, math.MinInt16), math.MaxInt16))
}

// Rate returns the output sample rate.
func (s *Synth) Rate(h Held) int {
	s.check(h)
	return s.store.rate
}

// Channels returns the number of interleaved output channels.
func (s *Synth) Channels(h Held) int {
	s.check(h)
	return s.channels
}

// SetRate changes the output rate. Every printed note is forgotten, playing
// notes stop and a playing song restarts from its beginning.
func (s *Synth) SetRate(h Held, rate int) error {
	s.check(h)
	if rate == s.store.rate {
		return nil
	}
	if err := validate(rate, s.channels); err != nil {
		return err
	}
	s.store.setRate(rate)
	s.store.maxFrames = maxFrames(s.opts.MaxNoteSeconds, rate)
	s.voices = nil
	if s.player != nil {
		sg, err := song.Decode(s.songData, rate)
		if err != nil {
			s.player = nil
			return err
		}
		tempo := s.player.Tempo()
		s.player = song.NewPlayer(sg, s.repeat)
		s.player.SetTempo(tempo)
	}
	return nil
}

// SetChannels changes the number of interleaved output channels. Every
// channel gets the same mono mix. Printed notes are mono, so the PCM cache
// stays valid and is not cleared.
func (s *Synth) SetChannels(h Held, channels int) error {
	s.check(h)
	if err := validate(s.store.rate, channels); err != nil {
		return err
	}
	s.channels = channels
	return nil
}

// CacheStats describes the memory tier of the PCM cache.
func (s *Synth) CacheStats(h Held) pcm.Stats {
	s.check(h)
	return s.store.cache.Stats()
}

// SetError records a human readable error unless one is already recorded.
func (s *Synth) SetError(h Held, msg string) {
	s.check(h)
	s.setError(errors.New(msg))
}

func (s *Synth) setError(err error) {
	if s.err == "" && err != nil {
		s.err = err.Error()
	}
}

// ClearError forgets the recorded error.
func (s *Synth) ClearError(h Held) {
	s.check(h)
	s.err = ""
}

// Error returns the recorded error, or "".
func (s *Synth) Error(h Held) string {
	s.check(h)
	return s.err
}
