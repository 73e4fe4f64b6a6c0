package synth

import (
	"bytes"
	"errors"
	"fmt"
	"log"

	"github.com/eggtone/synth/node"
	"github.com/eggtone/synth/pcm"
)

type program struct {
	raw    []byte
	digest string // names raw in the disk tier
	config *node.Config
	err    error // decode failure, kept until the program is reloaded
}

// store holds the program slots and the notes printed from them.
type store struct {
	programs    [NumPrograms]program
	cache       *pcm.Cache
	disk        *pcm.Disk
	rate        int
	maxFrames   int
	incremental bool
	logger      *log.Logger
	report      func(error)
}

// load replaces the bytes of a program, forgetting its config and notes.
// Loading the bytes the slot already holds changes nothing.
func (st *store) load(id byte, raw []byte) {
	old := st.programs[id]
	if bytes.Equal(old.raw, raw) {
		return
	}
	st.programs[id] = program{raw: append([]byte(nil), raw...)}
	if len(raw) > 0 {
		st.programs[id].digest = pcm.Digest(raw)
	}
	st.cache.DropProgram(id)
	if st.disk != nil && old.digest != "" {
		if err := st.disk.Remove(old.digest, id); err != nil {
			st.logger.Printf("program %d: %v", id, err)
		}
	}
}

// setRate forgets every config and note.
func (st *store) setRate(rate int) {
	st.rate = rate
	for i := range st.programs {
		st.programs[i].config = nil
		st.programs[i].err = nil
	}
	st.cache.Clear()
}

func (st *store) config(id byte) (*node.Config, error) {
	p := &st.programs[id]
	if p.config != nil || p.err != nil {
		return p.config, p.err
	}
	if len(p.raw) == 0 {
		return nil, nil
	}
	c, err := node.Decode(p.raw, st.rate)
	if err != nil {
		p.err = fmt.Errorf("program %d: %w", id, err)
		st.logger.Print(p.err)
		st.report(p.err)
		return nil, p.err
	}
	p.config = c
	return c, nil
}

// getOrPrint returns the PCM of a note, printing it if needed. The PCM is in
// the cache before printing starts, so later calls share it while it is
// printed incrementally. A nil PCM means the note is silent.
func (st *store) getOrPrint(id, note byte, incremental bool) *pcm.PCM {
	key := pcm.MakeKey(id, note)
	if p, ok := st.cache.Get(key); ok {
		return p
	}
	digest := st.programs[id].digest
	if digest == "" {
		return nil
	}
	if st.disk != nil {
		samples, err := st.disk.Load(st.rate, digest, key)
		if err != nil {
			st.logger.Printf("note %d:%d: %v", id, note, err)
		} else if samples != nil {
			p := pcm.NewPCM(samples)
			st.cache.Put(key, p)
			return p
		}
	}
	c, err := st.config(id)
	if c == nil || err != nil {
		return nil
	}
	printer, err := pcm.NewPrinter(c, note, st.maxFrames)
	if err != nil {
		if !errors.Is(err, pcm.ErrSilent) {
			st.logger.Printf("note %d:%d: %v", id, note, err)
			st.report(err)
		}
		return nil
	}
	if st.disk != nil {
		rate := st.rate
		printer.OnDone(func(p *pcm.PCM) {
			if err := st.disk.Save(rate, digest, key, p.Samples); err != nil {
				st.logger.Printf("note %d:%d: %v", id, note, err)
			}
		})
	}
	st.cache.Put(key, printer.PCM())
	if !incremental {
		printer.Finish()
	}
	return printer.PCM()
}
