package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/eggtone/synth"
	"github.com/eggtone/synth/aucm"
	"github.com/eggtone/synth/bank"
	"github.com/eggtone/synth/node"
	"github.com/eggtone/synth/version"
	"github.com/spf13/pflag"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "", 0)

	outPath := pflag.StringP("output", "o", "", "File or directory where to write the compiled program. By default, the .bin file is placed next to the source.")
	bankPath := pflag.StringP("bank", "b", "", "Build a program archive from this .yml bank manifest instead of compiling single files.")
	dump := pflag.BoolP("dump", "d", false, "Decode the compiled program and dump its node tree to standard output.")
	rate := pflag.IntP("rate", "r", synth.DefaultRate, "Sample rate used when decoding for -dump.")
	versionFlag := pflag.BoolP("version", "v", false, "Print version.")
	help := pflag.BoolP("help", "h", false, "Show help.")
	pflag.Usage = printUsage
	pflag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if (pflag.NArg() == 0 && *bankPath == "") || *help {
		pflag.Usage()
		os.Exit(0)
	}
	c := &aucm.Compiler{Help: os.Stderr}
	if *bankPath != "" {
		os.Exit(runBank(c, *bankPath, *outPath))
	}
	retval := 0
	for _, path := range pflag.Args() {
		body, err := compile(c, path, *outPath)
		if errors.Is(err, aucm.ErrFullyLogged) {
			retval = 1
			continue
		}
		if err != nil {
			logger.Printf("%v", err)
			retval = 1
			continue
		}
		if *dump {
			cfg, err := node.Decode(body, *rate)
			if err != nil {
				logger.Printf("%v: compiled program does not decode: %v", path, err)
				retval = 1
				continue
			}
			spew.Fdump(os.Stdout, cfg)
		}
	}
	os.Exit(retval)
}

func compile(c *aucm.Compiler, path, out string) ([]byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %v: %w", path, err)
	}
	_, body, err := c.File(path, src)
	if err != nil {
		return nil, err
	}
	target, err := outputFile(path, out, ".bin")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(target, body, 0644); err != nil {
		return nil, fmt.Errorf("could not write file %v: %w", target, err)
	}
	return body, nil
}

// runBank builds a bank and returns the exit code. Errors the compiler
// already reported are not logged again.
func runBank(c *aucm.Compiler, manifest, out string) int {
	err := buildBank(c, manifest, out)
	switch {
	case errors.Is(err, aucm.ErrFullyLogged):
		return 1
	case err != nil:
		logger.Printf("could not build bank %v: %v", manifest, err)
		return 1
	}
	return 0
}

func buildBank(c *aucm.Compiler, manifest, out string) error {
	m, err := bank.Load(manifest)
	if err != nil {
		return err
	}
	archive, err := m.Build(filepath.Dir(manifest), c)
	if err != nil {
		return err
	}
	target, err := outputFile(manifest, out, ".bank")
	if err != nil {
		return err
	}
	if err := os.WriteFile(target, archive, 0644); err != nil {
		return fmt.Errorf("could not write file %v: %w", target, err)
	}
	logger.Printf("wrote %v (%d bytes)", target, len(archive))
	return nil
}

// outputFile picks the output path for source: out itself, a file in out if
// it is a directory, or the source with its extension replaced.
func outputFile(source, out, ext string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source)) + ext
	if out == "" {
		return filepath.Join(filepath.Dir(source), name), nil
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name), nil
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return "", fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
	}
	return out, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "aucm compiles .ins and .sound sources into synth programs.\nWrite help anywhere in a source to get documentation for that spot.\nUsage: %s [flags] [path ...]\n", os.Args[0])
	pflag.PrintDefaults()
}
