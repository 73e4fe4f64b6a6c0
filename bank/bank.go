// Package bank builds program archives from a YAML manifest of aucm sources.
//
//	programs:
//	  - source: 3-lead.ins
//	  - program: 9
//	    sounds: [drums/*.sound]
//
// Sounds of the same program are merged into one multiplex bank, later files
// replacing earlier ones on the same note.
package bank

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/eggtone/synth"
	"github.com/eggtone/synth/aucm"
	"gopkg.in/yaml.v3"
)

type (
	Manifest struct {
		Programs []Entry `yaml:"programs"`
	}

	// Entry names the sources of one program. Without Program, the program
	// id comes from each file name.
	Entry struct {
		Program *int     `yaml:"program,omitempty"`
		Source  string   `yaml:"source,omitempty"`
		Sounds  []string `yaml:"sounds,omitempty"`
	}

	built struct {
		body  []byte
		sound bool
		path  string
	}
)

// Parse reads a manifest, rejecting unknown keys.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("could not parse bank manifest: %w", err)
	}
	for i, e := range m.Programs {
		if e.Source == "" && len(e.Sounds) == 0 {
			return nil, fmt.Errorf("bank entry %d has no source or sounds", i)
		}
		if e.Program != nil && (*e.Program < 0 || *e.Program >= synth.NumPrograms) {
			return nil, fmt.Errorf("bank entry %d: program %d out of range", i, *e.Program)
		}
	}
	return &m, nil
}

// Load reads and parses a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read bank manifest: %w", err)
	}
	return Parse(data)
}

// files lists the source files of the entry, relative paths resolved against
// dir.
func (e Entry) files(dir string) ([]string, error) {
	var ret []string
	if e.Source != "" {
		ret = append(ret, filepath.Join(dir, e.Source))
	}
	for _, pattern := range e.Sounds {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		ret = append(ret, matches...)
	}
	return ret, nil
}

// Build compiles every source of the manifest and returns the program
// archive, programs in ascending order.
func (m *Manifest) Build(dir string, c *aucm.Compiler) ([]byte, error) {
	programs := map[byte]*built{}
	for _, e := range m.Programs {
		files, err := e.files(dir)
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			src, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("could not read source: %w", err)
			}
			f, body, err := c.File(path, src)
			if err != nil {
				return nil, err
			}
			id := f.Program
			if e.Program != nil {
				id = byte(*e.Program)
			}
			prev := programs[id]
			switch {
			case prev == nil:
				programs[id] = &built{body: body, sound: f.Sound, path: path}
			case prev.sound && f.Sound:
				merged, err := aucm.MergeMultiplex(prev.body, body)
				if err != nil {
					return nil, fmt.Errorf("%v: %w", path, err)
				}
				prev.body = merged
			default:
				return nil, fmt.Errorf("%v: program %d already comes from %v", path, id, prev.path)
			}
		}
	}
	ids := make([]int, 0, len(programs))
	for id := range programs {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	var archive []byte
	for _, id := range ids {
		archive = synth.AppendArchive(archive, byte(id), programs[byte(id)].body)
	}
	return archive, nil
}
