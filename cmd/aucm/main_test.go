package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eggtone/synth/aucm"
)

func TestRunBank(t *testing.T) {
	var logs bytes.Buffer
	logger = log.New(&logs, "", 0)
	dir := t.TempDir()
	manifest := filepath.Join(dir, "bank.yml")
	if err := os.WriteFile(manifest, []byte("programs:\n  - source: 1-a.ins\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "1-a.ins"), []byte("help"), 0644); err != nil {
		t.Fatal(err)
	}
	var help bytes.Buffer
	if code := runBank(&aucm.Compiler{Help: &help}, manifest, ""); code != 1 {
		t.Fatalf("got exit code %v, expected 1", code)
	}
	if help.Len() == 0 {
		t.Fatalf("help was not written")
	}
	if logs.Len() != 0 {
		t.Fatalf("help request was logged again: %q", logs.String())
	}
	if code := runBank(&aucm.Compiler{Help: &help}, filepath.Join(dir, "missing.yml"), ""); code != 1 {
		t.Fatalf("got exit code %v, expected 1", code)
	}
	if !strings.Contains(logs.String(), "could not build bank") {
		t.Fatalf("failure was not logged: %q", logs.String())
	}
}
