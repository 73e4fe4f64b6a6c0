// Package config loads the engine settings: the embedded defaults, overridden
// by synth.yml in the user config directory.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/eggtone/synth"
	"github.com/eggtone/synth/pcm"
	"gopkg.in/yaml.v2"
)

type (
	Config struct {
		Rate           int
		Channels       int
		Incremental    bool
		MaxNoteSeconds float64
		MaxVoices      int
		Cache          CacheConfig
		// YmlError is the error reading the user config, if any.
		YmlError error `yaml:"-"`
	}

	CacheConfig struct {
		SizeLimit   int
		CountLimit  int
		SizeTarget  int
		CountTarget int
		DiskRoot    string
	}
)

//go:embed defaults.yml
var defaultConfigYaml []byte

// Default returns the built-in settings.
func Default() Config {
	var c Config
	if err := yaml.UnmarshalStrict(defaultConfigYaml, &c); err != nil {
		panic(fmt.Errorf("failed to unmarshal default config: %w", err))
	}
	return c
}

// ReadCustomConfigYml overlays the named file of the user config directory on
// target. exists is false if there is no such file.
func ReadCustomConfigYml(filename string, target interface{}) (exists bool, err error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return false, err
	}
	return ReadConfigYml(filepath.Join(configDir, "eggtone", filename), target)
}

// ReadConfigYml overlays the file at path on target.
func ReadConfigYml(path string, target interface{}) (exists bool, err error) {
	bytes, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	return true, yaml.UnmarshalStrict(bytes, target)
}

// Load returns the defaults overridden by the user's synth.yml. A broken user
// file is reported in YmlError and otherwise ignored.
func Load() Config {
	c := Default()
	backup := c
	if exists, err := ReadCustomConfigYml("synth.yml", &c); exists && err != nil {
		backup.YmlError = fmt.Errorf("synth.yml: %w", err)
		return backup
	}
	return c
}

// Options turns the settings into engine options.
func (c Config) Options(logger *log.Logger) synth.Options {
	return synth.Options{
		Rate:     c.Rate,
		Channels: c.Channels,
		Cache: pcm.Limits{
			SizeLimit:   c.Cache.SizeLimit,
			CountLimit:  c.Cache.CountLimit,
			SizeTarget:  c.Cache.SizeTarget,
			CountTarget: c.Cache.CountTarget,
		},
		DiskRoot:       c.Cache.DiskRoot,
		Incremental:    c.Incremental,
		MaxNoteSeconds: c.MaxNoteSeconds,
		MaxVoices:      c.MaxVoices,
		Logger:         logger,
	}
}
