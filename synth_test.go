package synth_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/eggtone/synth"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const rate = 22050

// dcProgram holds a constant level for 1 ms.
func dcProgram(level [4]byte) []byte {
	p := []byte{
		0x01, 0x02, 0x86, 0x15,
		0x03, 0x03, 0x85, 0x07, 0x05, 0x83,
	}
	p = append(p, level[:]...)
	return append(p,
		0x00,
		0x04, 0x03, 0x86, 0x05, 0x02, 0x01, 0xff, 0x01, 0xff, 0x00,
		0x00,
	)
}

var (
	quarter = dcProgram([4]byte{0x00, 0x00, 0x40, 0x00})
	loud    = dcProgram([4]byte{0x00, 0x02, 0x00, 0x00})
)

func newSynth(t *testing.T, opts synth.Options) (*synth.Synth, synth.Held) {
	t.Helper()
	if opts.Rate == 0 {
		opts.Rate = rate
	}
	s, err := synth.New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h := s.Lock().Acquire()
	t.Cleanup(h.Release)
	return s, h
}

func load(t *testing.T, s *synth.Synth, h synth.Held, program byte, raw []byte) {
	t.Helper()
	if err := s.Load(h, program, raw); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestPlayNoteMixesIntoAllChannels(t *testing.T) {
	s, h := newSynth(t, synth.Options{Channels: 2})
	load(t, s, h, 3, quarter)
	p := s.Print(h, 3, 60)
	if p == nil || len(p.Samples) != 22 || p.Samples[0] == 0 {
		t.Fatalf("unexpected print %v", p)
	}
	s.PlayNote(h, 3, 60)
	out := make([]int16, 2*64)
	s.Update(h, out)
	for i := 0; i < 64; i++ {
		var expected int16
		if i < len(p.Samples) {
			expected = p.Samples[i]
		}
		if out[2*i] != expected || out[2*i+1] != expected {
			t.Fatalf("frame %v is %v,%v, expected %v", i, out[2*i], out[2*i+1], expected)
		}
	}
	if !s.Idle(h) {
		t.Fatalf("synth should be idle after the note ended")
	}
}

func TestMixSaturates(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 0, loud)
	s.PlayNote(h, 0, 60)
	s.PlayNote(h, 0, 60)
	out := make([]int16, 8)
	s.Update(h, out)
	for i, v := range out {
		if v != 32767 {
			t.Fatalf("sample %v is %v, expected 32767", i, v)
		}
	}
}

func TestVoiceCapDropsOldest(t *testing.T) {
	s, h := newSynth(t, synth.Options{MaxVoices: 1})
	load(t, s, h, 0, loud)
	load(t, s, h, 1, quarter)
	s.PlayNote(h, 0, 60)
	s.PlayNote(h, 1, 60)
	out := make([]int16, 4)
	s.Update(h, out)
	if expected := s.Print(h, 1, 60).Samples[0]; out[0] != expected {
		t.Fatalf("got %v, expected only the newest voice %v", out[0], expected)
	}
}

func TestCacheSharesPrints(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 5, quarter)
	a := s.Print(h, 5, 60)
	b := s.Print(h, 5, 60)
	if a == nil || a != b {
		t.Fatalf("expected the same PCM twice")
	}
	if st := s.CacheStats(h); st.Count != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if s.Print(h, 5, 61) == a {
		t.Fatalf("another note shares the PCM")
	}
	load(t, s, h, 5, quarter)
	if s.Print(h, 5, 60) == a {
		t.Fatalf("reloading a program should drop its prints")
	}
}

func TestIncrementalMatchesSync(t *testing.T) {
	render := func(incremental bool) synth.AudioBuffer {
		s, h := newSynth(t, synth.Options{Incremental: incremental})
		load(t, s, h, 0, quarter)
		s.PlayNote(h, 0, 60)
		return s.Render(h, 1000)
	}
	sync, inc := render(false), render(true)
	if !reflect.DeepEqual(sync, inc) {
		t.Fatalf("incremental playback differs from synchronous playback")
	}
}

func TestBadProgramIsSilent(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 0, []byte{0x42, 0x00})
	s.PlayNote(h, 0, 60)
	if !s.Idle(h) {
		t.Fatalf("an undecodable program should not play")
	}
	msg := s.Error(h)
	if msg == "" {
		t.Fatalf("decode failure was not recorded")
	}
	s.SetError(h, "later")
	if s.Error(h) != msg {
		t.Fatalf("the first error should stick, got %q", s.Error(h))
	}
	s.ClearError(h)
	if s.Error(h) != "" {
		t.Fatalf("error not cleared")
	}
	s.PlayNote(h, 7, 60)
	if !s.Idle(h) {
		t.Fatalf("an empty program should not play")
	}
}

func TestLoadArchive(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	bad := synth.AppendArchive(nil, 1, quarter)
	bad = synth.AppendArchive(bad, 2, quarter[:5])
	if err := s.LoadArchive(h, bad); err == nil {
		t.Fatalf("truncated archive loaded")
	}
	if s.Print(h, 1, 60) != nil {
		t.Fatalf("a failed archive load changed the programs")
	}
	good := synth.AppendArchive(nil, 1, quarter)
	good = synth.AppendArchive(good, 2, loud)
	if err := s.LoadArchive(h, good); err != nil {
		t.Fatalf("LoadArchive failed: %v", err)
	}
	if s.Print(h, 1, 60) == nil || s.Print(h, 2, 60) == nil {
		t.Fatalf("archive programs missing")
	}
	entries, err := synth.ParseArchive(good)
	if err != nil || len(entries) != 2 || entries[1].Program != 2 || !bytes.Equal(entries[1].Body, loud) {
		t.Fatalf("ParseArchive returned %v, %v", entries, err)
	}
}

func TestEntryPointsRequireTheLock(t *testing.T) {
	s, err := synth.New(synth.Options{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	other := (&synth.Lock{}).Acquire()
	defer other.Release()
	for name, h := range map[string]synth.Held{"zero": {}, "other": other} {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%v held: expected a panic", name)
				}
			}()
			s.Update(h, make([]int16, 4))
		}()
	}
	if _, ok := s.Lock().TryAcquire(); !ok {
		t.Fatalf("free lock not acquired")
	}
	if _, ok := s.Lock().TryAcquire(); ok {
		t.Fatalf("held lock acquired twice")
	}
}

func TestPlaySong(t *testing.T) {
	var tr smf.Track
	tr.Add(0, midi.ProgramChange(0, 4))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(96, midi.NoteOn(0, 60, 100))
	tr.Close(0)
	mf := smf.New()
	mf.TimeFormat = smf.MetricTicks(96)
	if err := mf.Add(tr); err != nil {
		t.Fatalf("could not add track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := mf.WriteTo(&buf); err != nil {
		t.Fatalf("could not write midi file: %v", err)
	}
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 4, quarter)
	if err := s.PlaySong(h, buf.Bytes(), false); err != nil {
		t.Fatalf("PlaySong failed: %v", err)
	}
	out := s.Render(h, 10*rate)
	first := s.Print(h, 4, 60).Samples[0]
	half := rate / 2
	if out.Frames() < half+22 || out.Frames() > 2*rate {
		t.Fatalf("rendered %v frames", out.Frames())
	}
	if out.Samples[0] != first || out.Samples[half] != first {
		t.Fatalf("notes missing at 0 and %v", half)
	}
	if out.Samples[22] != 0 || out.Samples[half-1] != 0 {
		t.Fatalf("expected silence between the notes")
	}
	if s.SongPlaying(h) {
		t.Fatalf("song should have ended")
	}
}

func TestSetRate(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 0, quarter)
	if l := len(s.Print(h, 0, 60).Samples); l != 22 {
		t.Fatalf("print has %v samples", l)
	}
	if err := s.SetRate(h, 44100); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	if l := len(s.Print(h, 0, 60).Samples); l != 44 {
		t.Fatalf("print after rate change has %v samples", l)
	}
	if err := s.SetRate(h, 10); err == nil {
		t.Fatalf("absurd rate accepted")
	}
	if err := s.SetChannels(h, 0); err == nil {
		t.Fatalf("zero channels accepted")
	}
}

func TestSetChannelsKeepsPrints(t *testing.T) {
	s, h := newSynth(t, synth.Options{})
	load(t, s, h, 0, quarter)
	first := s.Print(h, 0, 60)
	if err := s.SetChannels(h, 2); err != nil {
		t.Fatalf("SetChannels failed: %v", err)
	}
	if p := s.Print(h, 0, 60); p != first {
		t.Fatalf("channel change reprinted the note")
	}
	if st := s.CacheStats(h); st.Count != 1 || st.Hits != 1 {
		t.Fatalf("unexpected cache stats %+v", st)
	}
}

func TestDiskCache(t *testing.T) {
	root := t.TempDir()
	a, ha := newSynth(t, synth.Options{DiskRoot: root})
	load(t, a, ha, 9, quarter)
	if a.Print(ha, 9, 60) == nil {
		t.Fatalf("print failed")
	}
	b, hb := newSynth(t, synth.Options{DiskRoot: root})
	load(t, b, hb, 9, quarter)
	files, _ := filepath.Glob(filepath.Join(root, "22050", "*", "093c"))
	if len(files) != 1 {
		t.Fatalf("loading the same bytes again should keep the printed note, found %v", files)
	}
	if err := os.WriteFile(files[0], []byte{1, 0, 2, 0}, 0644); err != nil {
		t.Fatal(err)
	}
	if p := b.Print(hb, 9, 60); p == nil || !reflect.DeepEqual(p.Samples, []int16{1, 2}) {
		t.Fatalf("note not loaded from disk")
	}
	c, hc := newSynth(t, synth.Options{DiskRoot: root})
	if p := c.Print(hc, 9, 60); p != nil {
		t.Fatalf("an empty program slot played %v samples from disk", len(p.Samples))
	}
}

func TestDiskCacheFollowsReloadAcrossRates(t *testing.T) {
	s, h := newSynth(t, synth.Options{DiskRoot: t.TempDir()})
	setRate := func(r int) {
		t.Helper()
		if err := s.SetRate(h, r); err != nil {
			t.Fatalf("SetRate failed: %v", err)
		}
	}
	load(t, s, h, 9, quarter)
	s.Print(h, 9, 60)
	setRate(44100)
	s.Print(h, 9, 60)
	setRate(rate)
	load(t, s, h, 9, loud)
	if p := s.Print(h, 9, 60); p == nil || p.Samples[0] != 32767 {
		t.Fatalf("stale note played after reload")
	}
	setRate(44100)
	if p := s.Print(h, 9, 60); p == nil || p.Samples[0] != 32767 {
		t.Fatalf("stale note of another rate played after reload")
	}
}

func TestWav(t *testing.T) {
	b := synth.AudioBuffer{Samples: []int16{1, -1, 2, -2}, Rate: rate, Channels: 2}
	wav, err := b.Wav()
	if err != nil {
		t.Fatalf("Wav failed: %v", err)
	}
	if len(wav) != 44+8 || string(wav[:4]) != "RIFF" || string(wav[36:40]) != "data" {
		t.Fatalf("bad wav header % x", wav[:44])
	}
	if ch := binary.LittleEndian.Uint16(wav[22:]); ch != 2 {
		t.Fatalf("header has %v channels", ch)
	}
	if r := binary.LittleEndian.Uint32(wav[24:]); r != rate {
		t.Fatalf("header has rate %v", r)
	}
	raw, err := b.Raw()
	if err != nil || !bytes.Equal(raw, wav[44:]) {
		t.Fatalf("raw data differs from wav data")
	}
}
