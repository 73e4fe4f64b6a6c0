package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/eggtone/synth"
	"github.com/eggtone/synth/aucm"
	"github.com/eggtone/synth/bank"
	"github.com/eggtone/synth/config"
	"github.com/eggtone/synth/oto"
	"github.com/eggtone/synth/version"
	"github.com/spf13/pflag"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "", log.Ltime)

	program := pflag.Uint8P("program", "p", 0, "Program of the note to play when no song is given.")
	note := pflag.Uint8P("note", "n", 60, "Note to play when no song is given.")
	tempo := pflag.Float64P("tempo", "t", 1, "Tempo multiplier of the song.")
	repeat := pflag.Bool("repeat", false, "Loop the song. Playback then runs until interrupted, rendering until -seconds.")
	seconds := pflag.Float64P("seconds", "s", 600, "Upper bound for the length of rendered output.")
	wavOut := pflag.StringP("wav", "w", "", "Render to this .wav file instead of playing.")
	rawOut := pflag.String("raw", "", "Render to this .raw file of interleaved 16-bit little endian samples instead of playing.")
	rate := pflag.IntP("rate", "r", 0, "Sample rate. Overrides the configuration.")
	channels := pflag.IntP("channels", "c", 0, "Output channels. Overrides the configuration.")
	versionFlag := pflag.BoolP("version", "v", false, "Print version.")
	help := pflag.BoolP("help", "h", false, "Show help.")
	pflag.Usage = printUsage
	pflag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if pflag.NArg() == 0 || *help {
		pflag.Usage()
		os.Exit(0)
	}
	cfg := config.Load()
	if cfg.YmlError != nil {
		logger.Printf("ignoring user configuration: %v", cfg.YmlError)
	}
	if *rate > 0 {
		cfg.Rate = *rate
	}
	if *channels > 0 {
		cfg.Channels = *channels
	}
	s, err := synth.New(cfg.Options(logger))
	if err != nil {
		logger.Fatalf("could not create synth: %v", err)
	}
	songData, err := load(s, pflag.Args())
	if err != nil {
		logger.Fatalf("%v", err)
	}
	h := s.Lock().Acquire()
	if songData != nil {
		if err := s.PlaySong(h, songData, *repeat); err != nil {
			h.Release()
			logger.Fatalf("could not play song: %v", err)
		}
		if err := s.SetSongTempo(h, *tempo); err != nil {
			h.Release()
			logger.Fatalf("%v", err)
		}
	} else {
		s.PlayNote(h, *program, *note)
	}
	if *wavOut == "" && *rawOut == "" {
		h.Release()
		if err := play(s, *repeat && songData != nil); err != nil {
			logger.Fatalf("%v", err)
		}
		return
	}
	buffer := s.Render(h, int(*seconds*float64(cfg.Rate)))
	if msg := s.Error(h); msg != "" {
		logger.Printf("synth reported: %v", msg)
	}
	h.Release()
	if *wavOut != "" {
		if err := output(*wavOut, buffer.Wav); err != nil {
			logger.Fatalf("error outputting .wav file: %v", err)
		}
	}
	if *rawOut != "" {
		if err := output(*rawOut, buffer.Raw); err != nil {
			logger.Fatalf("error outputting .raw file: %v", err)
		}
	}
}

// load loads the programs named by args into s and returns the song to play,
// if any. Sources are compiled on the fly, as if listed in a bank manifest.
func load(s *synth.Synth, args []string) ([]byte, error) {
	var songData []byte
	var sources bank.Manifest
	var archives [][]byte
	for _, arg := range args {
		switch ext := strings.ToLower(filepath.Ext(arg)); ext {
		case aucm.InstrumentExt, aucm.SoundExt:
			sources.Programs = append(sources.Programs, bank.Entry{Source: arg})
		case ".yml", ".yaml":
			m, err := bank.Load(arg)
			if err != nil {
				return nil, err
			}
			archive, err := build(m, filepath.Dir(arg))
			if err != nil {
				return nil, fmt.Errorf("could not build bank %v: %w", arg, err)
			}
			archives = append(archives, archive)
		case ".bank":
			archive, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("could not read file %v: %w", arg, err)
			}
			archives = append(archives, archive)
		case ".mid", ".midi":
			if songData != nil {
				return nil, fmt.Errorf("more than one song given")
			}
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, fmt.Errorf("could not read file %v: %w", arg, err)
			}
			songData = data
		default:
			return nil, fmt.Errorf("%v: unknown file type %q", arg, ext)
		}
	}
	if len(sources.Programs) > 0 {
		archive, err := build(&sources, "")
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}
	h := s.Lock().Acquire()
	defer h.Release()
	for _, archive := range archives {
		if err := s.LoadArchive(h, archive); err != nil {
			return nil, err
		}
	}
	return songData, nil
}

func build(m *bank.Manifest, dir string) ([]byte, error) {
	archive, err := m.Build(dir, &aucm.Compiler{Help: os.Stderr})
	if errors.Is(err, aucm.ErrFullyLogged) {
		os.Exit(1)
	}
	return archive, err
}

// play streams s to the default audio device until it falls idle, or until
// interrupted when forever is set.
func play(s *synth.Synth, forever bool) error {
	lock := s.Lock()
	h := lock.Acquire()
	rate, channels := s.Rate(h), s.Channels(h)
	h.Release()
	audioContext, err := oto.NewContext(rate, channels)
	if err != nil {
		return fmt.Errorf("could not acquire oto AudioContext: %w", err)
	}
	defer audioContext.Close()
	out, err := audioContext.Play(s)
	if err != nil {
		return err
	}
	defer out.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		h := lock.Acquire()
		idle, msg := s.Idle(h), s.Error(h)
		if msg != "" {
			s.ClearError(h)
		}
		h.Release()
		if msg != "" {
			logger.Printf("synth reported: %v", msg)
		}
		if idle && !forever {
			// let the device drain its buffer
			time.Sleep(200 * time.Millisecond)
			return nil
		}
	}
}

func output(path string, encode func() ([]byte, error)) error {
	contents, err := encode()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, contents, 0644); err != nil {
		return fmt.Errorf("could not write file %v: %w", path, err)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "synth-play plays programs and songs, or renders them to .wav/.raw files.\nInputs: .ins/.sound sources, .yml bank manifests, .bank archives and one .mid song.\nUsage: %s [flags] path ...\n", os.Args[0])
	pflag.PrintDefaults()
}
