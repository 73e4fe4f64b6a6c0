package song_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/eggtone/synth/song"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const rate = 48000

func writeSMF(t *testing.T, tpq uint16, tracks ...smf.Track) []byte {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(tpq)
	for _, tr := range tracks {
		tr.Close(0)
		if err := s.Add(tr); err != nil {
			t.Fatalf("could not add track: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("could not write midi file: %v", err)
	}
	return buf.Bytes()
}

func TestTempoOnOtherTrackAppliesImmediately(t *testing.T) {
	var notes, tempo smf.Track
	notes.Add(0, midi.NoteOn(0, 60, 100))
	notes.Add(96, midi.NoteOn(0, 62, 100))
	tempo.Add(0, smf.MetaTempo(240))
	s, err := song.Decode(writeSMF(t, 96, notes, tempo), rate)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	expected := []song.Command{song.Trigger(0, 60), song.Delay(12000), song.Trigger(0, 62)}
	if !reflect.DeepEqual(s.Commands, expected) {
		t.Fatalf("got %v, expected %v", s.Commands, expected)
	}
	if s.UsPerTick != 250000.0/96 {
		t.Fatalf("starting tick length %v", s.UsPerTick)
	}
}

func TestLongDelaysAreSplit(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(96*4, midi.NoteOn(0, 60, 100))
	s, err := song.Decode(writeSMF(t, 96, tr), rate)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	total := 0
	for _, c := range s.Commands[1 : len(s.Commands)-1] {
		if !c.IsDelay() || c.Frames() == 0 {
			t.Fatalf("expected only nonzero delays between the notes, got %v", s.Commands)
		}
		total += c.Frames()
	}
	if total != 2*rate {
		t.Fatalf("delays sum to %v frames, expected %v", total, 2*rate)
	}
	if s.Frames() != total {
		t.Fatalf("song length %v, expected %v", s.Frames(), total)
	}
}

func TestProgramsAndLoopMarker(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.ProgramChange(1, 5))
	tr.Add(0, midi.NoteOn(1, 40, 1))
	tr.Add(48, smf.MetaMarker("Loop"))
	tr.Add(48, midi.NoteOn(1, 41, 0))
	tr.Add(0, midi.NoteOn(2, 42, 10))
	s, err := song.Decode(writeSMF(t, 96, tr), rate)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	expected := []song.Command{song.Trigger(5, 40), song.Delay(12000), song.Delay(12000), song.Trigger(0, 42)}
	if !reflect.DeepEqual(s.Commands, expected) {
		t.Fatalf("got %v, expected %v", s.Commands, expected)
	}
	if s.Repeat != 2 {
		t.Fatalf("repeat offset %v, expected 2", s.Repeat)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := song.Decode([]byte("not a midi file"), rate); !errors.Is(err, song.ErrFormat) {
		t.Fatalf("expected a format error, got %v", err)
	}
	var tracks []smf.Track
	for i := 0; i < 18; i++ {
		var tr smf.Track
		tr.Add(0, midi.NoteOn(0, 60, 100))
		tracks = append(tracks, tr)
	}
	if _, err := song.Decode(writeSMF(t, 96, tracks...), rate); !errors.Is(err, song.ErrFormat) {
		t.Fatalf("18 tracks should not decode, got %v", err)
	}
}

func TestCommand(t *testing.T) {
	c := song.Trigger(100, 27)
	if !c.IsTrigger() || c.IsDelay() || c.Program() != 100 || c.Note() != 27 {
		t.Fatalf("bad trigger %04x", uint16(c))
	}
	d := song.Delay(song.MaxDelay)
	if !d.IsDelay() || d.Frames() != song.MaxDelay {
		t.Fatalf("bad delay %04x", uint16(d))
	}
	if r := song.Command(0x8123); r.IsDelay() || r.IsTrigger() {
		t.Fatalf("reserved command classified as %v", r)
	}
}

type note struct{ program, note byte }

func TestPlayer(t *testing.T) {
	s := &song.Song{
		Commands: []song.Command{song.Trigger(1, 2), song.Delay(100), 0x8001, song.Trigger(1, 3), song.Delay(50)},
		Repeat:   2,
	}
	var played []note
	trigger := func(p, n byte) { played = append(played, note{p, n}) }
	p := song.NewPlayer(s, true)
	if f, done := p.Update(trigger); f != 100 || done {
		t.Fatalf("got %v %v, expected a delay of 100", f, done)
	}
	p.Advance(60)
	if f, _ := p.Update(trigger); f != 40 || len(played) != 1 {
		t.Fatalf("got %v frames and %v notes after a partial advance", f, len(played))
	}
	p.Advance(40)
	if f, _ := p.Update(trigger); f != 50 {
		t.Fatalf("got %v frames, expected 50", f)
	}
	p.Advance(50)
	if f, done := p.Update(trigger); f != 50 || done {
		t.Fatalf("repeat: got %v %v", f, done)
	}
	expected := []note{{1, 2}, {1, 3}, {1, 3}}
	if !reflect.DeepEqual(played, expected) {
		t.Fatalf("played %v, expected %v", played, expected)
	}

	once := song.NewPlayer(s, false)
	once.Update(trigger)
	once.Advance(100)
	once.Update(trigger)
	once.Advance(50)
	if _, done := once.Update(trigger); !done {
		t.Fatalf("song without repeat should end")
	}
}

func TestPlayerTempo(t *testing.T) {
	s := &song.Song{Commands: []song.Command{song.Delay(101), song.Delay(101)}}
	p := song.NewPlayer(s, false)
	p.SetTempo(2)
	total := 0
	for {
		f, done := p.Update(func(byte, byte) {})
		if done {
			break
		}
		total += f
		p.Advance(f)
	}
	if total != 101 {
		t.Fatalf("double tempo played %v frames, expected 101", total)
	}
}

func TestPlayerLoopWithoutDelays(t *testing.T) {
	s := &song.Song{Commands: []song.Command{song.Delay(10), song.Trigger(0, 1)}, Repeat: 1}
	p := song.NewPlayer(s, true)
	n := 0
	p.Update(func(byte, byte) { n++ })
	p.Advance(10)
	if _, done := p.Update(func(byte, byte) { n++ }); !done {
		t.Fatalf("a loop without delays should end playback")
	}
	if n != 1 {
		t.Fatalf("triggered %v notes", n)
	}
}
