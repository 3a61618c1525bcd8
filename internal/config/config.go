// Package config loads tripsync configuration from a config file, TRIPSYNC_*
// environment variables and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/tripsync/internal/trip"
)

// EnvPrefix is the prefix of environment overrides, e.g. TRIPSYNC_BACKEND_KIND.
const EnvPrefix = "TRIPSYNC"

// Backend kinds.
const (
	BackendGitHub   = "github"
	BackendRegistry = "registry"
	BackendRedis    = "redis"
	BackendFile     = "file"
	BackendGCS      = "gcs"
)

// Config is the complete client and server configuration.
type Config struct {
	Trip       TripConfig      `mapstructure:"trip" toml:"trip" yaml:"trip"`
	Sync       SyncConfig      `mapstructure:"sync" toml:"sync" yaml:"sync"`
	Backend    BackendConfig   `mapstructure:"backend" toml:"backend" yaml:"backend"`
	Credential string          `mapstructure:"credential" toml:"credential" yaml:"credential"`
	State      StateConfig     `mapstructure:"state" toml:"state" yaml:"state"`
	Log        LogConfig       `mapstructure:"log" toml:"log" yaml:"log"`
	Dashboard  DashboardConfig `mapstructure:"dashboard" toml:"dashboard" yaml:"dashboard"`
	Registry   RegistryConfig  `mapstructure:"registry" toml:"registry" yaml:"registry"`
}

// TripConfig holds the fixed document fields.
type TripConfig struct {
	Title           string `mapstructure:"title" toml:"title" yaml:"title"`
	StartDate       string `mapstructure:"start_date" toml:"start_date" yaml:"start_date"`
	EndDate         string `mapstructure:"end_date" toml:"end_date" yaml:"end_date"`
	DefaultCurrency string `mapstructure:"default_currency" toml:"default_currency" yaml:"default_currency"`
}

// SyncConfig holds session timing.
type SyncConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval" toml:"poll_interval" yaml:"poll_interval"`
	SaveDebounce     time.Duration `mapstructure:"save_debounce" toml:"save_debounce" yaml:"save_debounce"`
	InitialPollDelay time.Duration `mapstructure:"initial_poll_delay" toml:"initial_poll_delay" yaml:"initial_poll_delay"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout" toml:"http_timeout" yaml:"http_timeout"`
}

// BackendConfig selects and configures the remote store.
type BackendConfig struct {
	Kind     string         `mapstructure:"kind" toml:"kind" yaml:"kind"`
	GitHub   GitHubConfig   `mapstructure:"github" toml:"github" yaml:"github"`
	Registry RegistryClient `mapstructure:"registry" toml:"registry" yaml:"registry"`
	Redis    RedisConfig    `mapstructure:"redis" toml:"redis" yaml:"redis"`
	File     FileConfig     `mapstructure:"file" toml:"file" yaml:"file"`
	GCS      GCSConfig      `mapstructure:"gcs" toml:"gcs" yaml:"gcs"`
}

type GitHubConfig struct {
	Owner  string `mapstructure:"owner" toml:"owner" yaml:"owner"`
	Repo   string `mapstructure:"repo" toml:"repo" yaml:"repo"`
	Branch string `mapstructure:"branch" toml:"branch" yaml:"branch"`
	Path   string `mapstructure:"path" toml:"path" yaml:"path"`
	APIURL string `mapstructure:"api_url" toml:"api_url" yaml:"api_url"`
}

type RegistryClient struct {
	URL string `mapstructure:"url" toml:"url" yaml:"url"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" toml:"addr" yaml:"addr"`
	Password string `mapstructure:"password" toml:"password" yaml:"password"`
	DB       int    `mapstructure:"db" toml:"db" yaml:"db"`
	Key      string `mapstructure:"key" toml:"key" yaml:"key"`
}

type FileConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" toml:"bucket" yaml:"bucket"`
	Object          string `mapstructure:"object" toml:"object" yaml:"object"`
	CredentialsFile string `mapstructure:"credentials_file" toml:"credentials_file" yaml:"credentials_file"`
	EmulatorHost    string `mapstructure:"emulator_host" toml:"emulator_host" yaml:"emulator_host"`
}

// StateConfig locates the local state database.
type StateConfig struct {
	Path string `mapstructure:"path" toml:"path" yaml:"path"`
}

// LogConfig controls log output. An empty File logs to stderr.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days" yaml:"max_age_days"`
	Verbose    bool   `mapstructure:"verbose" toml:"verbose" yaml:"verbose"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port" toml:"port" yaml:"port"`
}

// RegistryConfig configures the registry reference server.
type RegistryConfig struct {
	Listen      string   `mapstructure:"listen" toml:"listen" yaml:"listen"`
	DB          string   `mapstructure:"db" toml:"db" yaml:"db"`
	SigningKey  string   `mapstructure:"signing_key" toml:"signing_key" yaml:"signing_key"`
	CORSOrigins []string `mapstructure:"cors_origins" toml:"cors_origins" yaml:"cors_origins"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Trip: TripConfig{DefaultCurrency: trip.DefaultCurrency},
		Sync: SyncConfig{
			PollInterval:     10 * time.Second,
			SaveDebounce:     350 * time.Millisecond,
			InitialPollDelay: 2 * time.Second,
			HTTPTimeout:      30 * time.Second,
		},
		Backend: BackendConfig{
			Kind: BackendGitHub,
			GitHub: GitHubConfig{
				Branch: "main",
				Path:   "data/trip.json",
				APIURL: "https://api.github.com",
			},
			Redis: RedisConfig{Addr: "localhost:6379", Key: "tripsync:trip"},
		},
		State: StateConfig{Path: filepath.Join(DefaultDir(), "state.db")},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{Port: 8080},
		Registry: RegistryConfig{
			Listen: ":8090",
			DB:     filepath.Join(DefaultDir(), "registry.db"),
		},
	}
}

// DefaultDir is the per-user tripsync directory.
func DefaultDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tripsync")
	}
	return ".tripsync"
}

// NewViper returns a viper instance with defaults, environment binding and, when
// path is non-empty, that config file. With an empty path tripsync.{toml,yaml} is
// searched in the working directory and DefaultDir.
func NewViper(path string) *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tripsync")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}
	return v
}

// Load reads configuration through v. A missing config file is not an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment variables resolve during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("trip.title", d.Trip.Title)
	v.SetDefault("trip.start_date", d.Trip.StartDate)
	v.SetDefault("trip.end_date", d.Trip.EndDate)
	v.SetDefault("trip.default_currency", d.Trip.DefaultCurrency)

	v.SetDefault("sync.poll_interval", d.Sync.PollInterval)
	v.SetDefault("sync.save_debounce", d.Sync.SaveDebounce)
	v.SetDefault("sync.initial_poll_delay", d.Sync.InitialPollDelay)
	v.SetDefault("sync.http_timeout", d.Sync.HTTPTimeout)

	v.SetDefault("backend.kind", d.Backend.Kind)
	v.SetDefault("backend.github.owner", d.Backend.GitHub.Owner)
	v.SetDefault("backend.github.repo", d.Backend.GitHub.Repo)
	v.SetDefault("backend.github.branch", d.Backend.GitHub.Branch)
	v.SetDefault("backend.github.path", d.Backend.GitHub.Path)
	v.SetDefault("backend.github.api_url", d.Backend.GitHub.APIURL)
	v.SetDefault("backend.registry.url", d.Backend.Registry.URL)
	v.SetDefault("backend.redis.addr", d.Backend.Redis.Addr)
	v.SetDefault("backend.redis.password", d.Backend.Redis.Password)
	v.SetDefault("backend.redis.db", d.Backend.Redis.DB)
	v.SetDefault("backend.redis.key", d.Backend.Redis.Key)
	v.SetDefault("backend.file.path", d.Backend.File.Path)
	v.SetDefault("backend.gcs.bucket", d.Backend.GCS.Bucket)
	v.SetDefault("backend.gcs.object", d.Backend.GCS.Object)
	v.SetDefault("backend.gcs.credentials_file", d.Backend.GCS.CredentialsFile)
	v.SetDefault("backend.gcs.emulator_host", d.Backend.GCS.EmulatorHost)

	v.SetDefault("credential", d.Credential)
	v.SetDefault("state.path", d.State.Path)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.verbose", d.Log.Verbose)

	v.SetDefault("dashboard.port", d.Dashboard.Port)

	v.SetDefault("registry.listen", d.Registry.Listen)
	v.SetDefault("registry.db", d.Registry.DB)
	v.SetDefault("registry.signing_key", d.Registry.SigningKey)
	v.SetDefault("registry.cors_origins", d.Registry.CORSOrigins)
}

// Fixed returns the fixed document fields.
func (c *Config) Fixed() trip.Fixed {
	return trip.Fixed{
		Title:     c.Trip.Title,
		StartDate: c.Trip.StartDate,
		EndDate:   c.Trip.EndDate,
		Currency:  c.Trip.DefaultCurrency,
	}
}

// Validate checks the client configuration.
func (c *Config) Validate() error {
	if err := c.Fixed().Validate(); err != nil {
		return fmt.Errorf("invalid trip config: %w", err)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if c.Sync.SaveDebounce < 0 {
		return fmt.Errorf("sync.save_debounce must not be negative")
	}

	switch c.Backend.Kind {
	case BackendGitHub:
		if c.Backend.GitHub.Owner == "" || c.Backend.GitHub.Repo == "" {
			return fmt.Errorf("backend.github.owner and backend.github.repo are required")
		}
	case BackendRegistry:
		if c.Backend.Registry.URL == "" {
			return fmt.Errorf("backend.registry.url is required")
		}
	case BackendRedis:
		if c.Backend.Redis.Addr == "" || c.Backend.Redis.Key == "" {
			return fmt.Errorf("backend.redis.addr and backend.redis.key are required")
		}
	case BackendFile:
		if c.Backend.File.Path == "" {
			return fmt.Errorf("backend.file.path is required")
		}
	case BackendGCS:
		if c.Backend.GCS.Bucket == "" || c.Backend.GCS.Object == "" {
			return fmt.Errorf("backend.gcs.bucket and backend.gcs.object are required")
		}
	default:
		return fmt.Errorf("unknown backend.kind %q", c.Backend.Kind)
	}
	return nil
}

// CredentialScope names the backend target a cached credential belongs to.
func (c *Config) CredentialScope() string {
	b := c.Backend
	switch b.Kind {
	case BackendGitHub:
		return fmt.Sprintf("github:%s/%s", b.GitHub.Owner, b.GitHub.Repo)
	case BackendRegistry:
		return "registry:" + b.Registry.URL
	case BackendRedis:
		return fmt.Sprintf("redis:%s/%s", b.Redis.Addr, b.Redis.Key)
	case BackendFile:
		return "file:" + b.File.Path
	case BackendGCS:
		return fmt.Sprintf("gcs:%s/%s", b.GCS.Bucket, b.GCS.Object)
	}
	return b.Kind
}
