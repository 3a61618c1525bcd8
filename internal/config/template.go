package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Template formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// example returns the configuration written by WriteExample.
func example() *Config {
	c := Default()
	c.Trip.Title = "Summer trip"
	c.Trip.StartDate = "2026-07-21"
	c.Trip.EndDate = "2026-07-28"
	c.Backend.GitHub.Owner = "your-user"
	c.Backend.GitHub.Repo = "your-trip-repo"
	c.Backend.Registry.URL = "http://localhost:8090/v1/docs/trip"
	c.Backend.File.Path = "trip.json"
	c.Registry.CORSOrigins = []string{"http://localhost:8080"}
	return c
}

// exampleDoc mirrors Config with durations as strings, since neither encoder writes
// time.Duration in a form viper parses back.
type exampleDoc struct {
	Trip       TripConfig      `toml:"trip" yaml:"trip"`
	Sync       exampleSync     `toml:"sync" yaml:"sync"`
	Backend    BackendConfig   `toml:"backend" yaml:"backend"`
	Credential string          `toml:"credential" yaml:"credential"`
	State      StateConfig     `toml:"state" yaml:"state"`
	Log        LogConfig       `toml:"log" yaml:"log"`
	Dashboard  DashboardConfig `toml:"dashboard" yaml:"dashboard"`
	Registry   RegistryConfig  `toml:"registry" yaml:"registry"`
}

type exampleSync struct {
	PollInterval     string `toml:"poll_interval" yaml:"poll_interval"`
	SaveDebounce     string `toml:"save_debounce" yaml:"save_debounce"`
	InitialPollDelay string `toml:"initial_poll_delay" yaml:"initial_poll_delay"`
	HTTPTimeout      string `toml:"http_timeout" yaml:"http_timeout"`
}

func toExample(c *Config) exampleDoc {
	return exampleDoc{
		Trip: c.Trip,
		Sync: exampleSync{
			PollInterval:     c.Sync.PollInterval.String(),
			SaveDebounce:     c.Sync.SaveDebounce.String(),
			InitialPollDelay: c.Sync.InitialPollDelay.String(),
			HTTPTimeout:      c.Sync.HTTPTimeout.String(),
		},
		Backend:    c.Backend,
		Credential: c.Credential,
		State:      c.State,
		Log:        c.Log,
		Dashboard:  c.Dashboard,
		Registry:   c.Registry,
	}
}

// Encode writes c in the given format.
func Encode(w io.Writer, c *Config, format string) error {
	doc := toExample(c)
	switch strings.ToLower(format) {
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return fmt.Errorf("unknown config format %q (want toml or yaml)", format)
	}
	return nil
}

// WriteExample writes an example config file to path. It refuses to overwrite an
// existing file unless force is set.
func WriteExample(path, format string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, example(), format); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
