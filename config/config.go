package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "COMFYPANEL"

// Config holds the settings shared by the CLI and the gallery server.
type Config struct {
	BackendURL   string        `mapstructure:"backend_url"`
	GalleryURL   string        `mapstructure:"gallery_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxWait      time.Duration `mapstructure:"max_wait"`
	LogLevel     string        `mapstructure:"log_level"`

	Stream  StreamConfig  `mapstructure:"stream"`
	Gallery GalleryConfig `mapstructure:"gallery"`
}

// StreamConfig controls event stream reconnects.
type StreamConfig struct {
	MaxRetry  int           `mapstructure:"max_retry"`
	BaseDelay time.Duration `mapstructure:"base_delay"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
}

// GalleryConfig configures the self-hosted gallery store.
type GalleryConfig struct {
	Listen    string `mapstructure:"listen"`
	DSN       string `mapstructure:"dsn"`
	BasePath  string `mapstructure:"base_path"`
	ListLimit int    `mapstructure:"list_limit"`
}

// New returns a viper instance with defaults and COMFYPANEL_* environment overrides.
// Nested keys use underscores, e.g. COMFYPANEL_GALLERY_DSN.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend_url", "http://localhost:8000/api/comfy")
	v.SetDefault("gallery_url", "http://localhost:8000/api")
	v.SetDefault("timeout", 120*time.Second)
	v.SetDefault("poll_interval", time.Second)
	v.SetDefault("max_wait", 0)
	v.SetDefault("log_level", "info")

	v.SetDefault("stream.max_retry", -1)
	v.SetDefault("stream.base_delay", time.Second)
	v.SetDefault("stream.max_delay", 30*time.Second)

	v.SetDefault("gallery.listen", ":8000")
	v.SetDefault("gallery.dsn", "sqlite://gallery.db")
	v.SetDefault("gallery.base_path", "/api")
	v.SetDefault("gallery.list_limit", 50)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path into v when it is set, otherwise looks for an optional comfypanel.{yaml,toml,json}
// in the working directory and the user config directory, then decodes and validates the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("comfypanel")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "comfypanel"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if f := v.ConfigFileUsed(); f != "" {
		slog.Debug("loaded config file", "path", f)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	for key, raw := range map[string]string{"backend_url": c.BackendURL, "gallery_url": c.GalleryURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s must be an absolute URL, got %q", key, raw)
		}
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxWait < 0 {
		return fmt.Errorf("config: max_wait must not be negative, got %s", c.MaxWait)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", level)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at level.
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
