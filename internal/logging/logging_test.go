package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFactory_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tripsync.log")
	f, err := New(Options{File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	f.Logger("session").Printf("saved %d", 1)
	f.Debug("session").Printf("hidden")
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[session] ") || !strings.Contains(out, "saved 1") {
		t.Errorf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Error("debug output written without verbose")
	}
}

func TestFactory_SameLogger(t *testing.T) {
	f := Discard()
	if f.Logger("a") != f.Logger("a") {
		t.Error("Expected the same logger for one component")
	}
	if f.Logger("a") == f.Logger("b") {
		t.Error("Expected distinct loggers for distinct components")
	}
	if err := f.Close(); err != nil {
		t.Errorf("Close() on discard factory failed: %v", err)
	}
}
