package localfile

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestTouches(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "trip.json")

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create", fsnotify.Event{Name: target, Op: fsnotify.Create}, true},
		{"write", fsnotify.Event{Name: target, Op: fsnotify.Write}, true},
		{"write and chmod", fsnotify.Event{Name: target, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"chmod only", fsnotify.Event{Name: target, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: target, Op: fsnotify.Remove}, false},
		{"rename away", fsnotify.Event{Name: target, Op: fsnotify.Rename}, false},
		{"other file", fsnotify.Event{Name: filepath.Join(dir, "other.json"), Op: fsnotify.Write}, false},
		{"lock file", fsnotify.Event{Name: target + lockSuffix, Op: fsnotify.Create}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := touches(tt.ev, target); got != tt.want {
				t.Errorf("touches(%v) = %v, want %v", tt.ev, got, tt.want)
			}
		})
	}
}

func TestWatchFile_NotifiesOnTargetOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trip.json")
	logger := log.New(io.Discard, "", 0)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, logger, func() { calls.Add(1) })
	}()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(3 * settleDelay)
	if n := calls.Load(); n != 0 {
		t.Fatalf("Expected no notification for another file, got %d", n)
	}

	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() == 0 {
		t.Fatal("timed out waiting for notification")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watchFile returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchFile did not return after cancel")
	}
}

func TestWatchFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "trip.json")
	err := watchFile(context.Background(), path, log.New(io.Discard, "", 0), func() {})
	if err == nil {
		t.Fatal("Expected error watching a missing directory")
	}
}
