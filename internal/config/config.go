package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the optional per-project settings file.
const FileName = ".sitepatch.yaml"

var ErrInvalidYAML = errors.New("invalid config YAML")

// Config holds the settings that may come from the settings file or the
// environment. Command-line flags override both.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `yaml:"addr"`
	// IdleTimeout ends a followed input after this long without new data.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	ChunkSize   int           `yaml:"chunk_size"`
	// Nvim pushes changed files into Neovim buffers.
	Nvim bool `yaml:"nvim"`
	// Buffer leaves Neovim buffers unsaved and skips writing to disk.
	Buffer bool `yaml:"buffer"`
	NoTUI  bool `yaml:"no_tui"`
	Debug  bool `yaml:"debug"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:        "127.0.0.1:8787",
		IdleTimeout: 3 * time.Second,
		ChunkSize:   4096,
	}
}

// Load resolves settings for the project in dir: defaults, then the settings
// file at path (dir/.sitepatch.yaml when path is empty), then SITEPATCH_*
// environment variables.
func Load(dir, path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(dir, FileName)
	}
	if err := LoadFrom(path, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return Config{}, err
		}
	}

	ApplyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadFrom overlays the YAML settings file at path onto cfg.
func LoadFrom(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%s: %w: %v", path, ErrInvalidYAML, err)
	}
	return nil
}

// ApplyEnv overlays SITEPATCH_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	cfg.Addr = envStr("SITEPATCH_ADDR", cfg.Addr)
	cfg.IdleTimeout = envDuration("SITEPATCH_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.ChunkSize = envInt("SITEPATCH_CHUNK_SIZE", cfg.ChunkSize)
	cfg.Nvim = envBool("SITEPATCH_NVIM", cfg.Nvim)
	cfg.Buffer = envBool("SITEPATCH_BUFFER", cfg.Buffer)
	cfg.NoTUI = envBool("SITEPATCH_NO_TUI", cfg.NoTUI)
	cfg.Debug = envBool("SITEPATCH_DEBUG", cfg.Debug)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
