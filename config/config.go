package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Config is the complete server configuration
type Config struct {
	Server ServerConfig `toml:"server"`
	Ngrok  NgrokConfig  `toml:"ngrok"`
	Log    LogConfig    `toml:"log"`
}

// ServerConfig controls the HTTP and WebSocket listener
type ServerConfig struct {
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	StaticDirs      []string `toml:"static_dirs"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	PublicURL       string   `toml:"public_url"`
	SendBuffer      int      `toml:"send_buffer"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
}

// NgrokConfig controls the optional public tunnel
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// LogConfig controls logger output
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            3000,
			StaticDirs:      []string{"public", "bower_components"},
			SendBuffer:      256,
			ShutdownTimeout: "10s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	cfg.Server.StaticDirs = normalizeList(cfg.Server.StaticDirs)
	cfg.Server.AllowedOrigins = normalizeList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration can be served
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.SendBuffer < 1 {
		return fmt.Errorf("%w: send_buffer must be positive", ErrInvalidConfig)
	}
	if _, err := c.ShutdownTimeout(); err != nil {
		return fmt.Errorf("%w: shutdown_timeout: %v", ErrInvalidConfig, err)
	}
	if c.Ngrok.Enabled && c.Ngrok.AuthToken == "" {
		return fmt.Errorf("%w: ngrok enabled without auth_token", ErrInvalidConfig)
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}

// Addr is the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ShutdownTimeout parses the graceful shutdown window
func (c Config) ShutdownTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Server.ShutdownTimeout))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
