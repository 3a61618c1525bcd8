// Package logging builds the per-component loggers. Every component gets a
// *log.Logger prefixed with its name, all sharing one output: stderr, or a size-rotated
// file when a log file is configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared log output.
type Options struct {
	// File is the log file path. Empty logs to stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Verbose enables debug loggers. Otherwise Debug returns a discarding logger.
	Verbose bool
}

// Factory hands out component loggers over one output.
type Factory struct {
	out     io.Writer
	closer  io.Closer
	verbose bool

	mu      sync.Mutex
	loggers map[string]*log.Logger
}

// New creates a Factory for opts.
func New(opts Options) (*Factory, error) {
	f := &Factory{
		out:     os.Stderr,
		verbose: opts.Verbose,
		loggers: make(map[string]*log.Logger),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		f.out = lj
		f.closer = lj
	}
	return f, nil
}

// Discard returns a Factory whose loggers write nowhere.
func Discard() *Factory {
	return &Factory{out: io.Discard, loggers: make(map[string]*log.Logger)}
}

// Logger returns the logger for component, e.g. "[session] ".
func (f *Factory) Logger(component string) *log.Logger {
	f.mu.Lock()
	defer f.mu.Unlock()

	if l, ok := f.loggers[component]; ok {
		return l
	}
	l := log.New(f.out, "["+component+"] ", log.LstdFlags)
	f.loggers[component] = l
	return l
}

// Debug returns the component logger when verbose, otherwise a discarding one.
func (f *Factory) Debug(component string) *log.Logger {
	if !f.verbose {
		return log.New(io.Discard, "", 0)
	}
	return f.Logger(component)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
