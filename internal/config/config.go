package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/tnunamak/gravmeter/internal/api"
)

// Config holds the complete application configuration
type Config struct {
	APIKey            string        `mapstructure:"api_key" yaml:"api_key"`
	RefreshInterval   int           `mapstructure:"refresh_interval" yaml:"refresh_interval"` // minutes
	ShowNotifications bool          `mapstructure:"show_notifications" yaml:"show_notifications"`
	Mode              string        `mapstructure:"mode" yaml:"mode"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ProbeTimeout      time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	Remote            RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	HTTP              HTTPConfig    `mapstructure:"http" yaml:"http"`
	Logging           LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// RemoteConfig points the session-cookie client at the web API
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// HTTPConfig configures the local status endpoint; empty Listen disables it
type HTTPConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Interval is RefreshInterval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Minute
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "********"
	}
	return c
}

// DefaultPath is $XDG_CONFIG_HOME/gravmeter/config.yaml, falling back to
// the platform config directory.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, "gravmeter", "config.yaml"), nil
}

// Loader reads one config file and can watch it for changes.
type Loader struct {
	v    *viper.Viper
	path string
}

func NewLoader(configPath string) *Loader {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GRAVMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, path: configPath}
}

func (l *Loader) Path() string { return l.path }

// Load loads configuration from file and environment variables
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); err == nil {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	// Config file not found, use defaults and environment variables

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Watch calls onChange with the reloaded configuration whenever the file
// is written. Invalid edits are logged and ignored. It is a no-op when the
// file does not exist.
func (l *Loader) Watch(logger zerolog.Logger, onChange func(*Config)) {
	if _, err := os.Stat(l.path); err != nil {
		logger.Debug().Str("config", l.path).Msg("config file absent, not watching")
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("config", e.Name).Msg("ignoring config change")
			return
		}
		logger.Info().Str("config", e.Name).Msg("config reloaded")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Load is a shorthand for NewLoader(configPath).Load().
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		RefreshInterval:   5,
		ShowNotifications: true,
		Mode:              "auto",
		RequestTimeout:    5 * time.Second,
		ProbeTimeout:      3 * time.Second,
		Remote:            RemoteConfig{BaseURL: api.DefaultRemoteBase},
		Logging:           LoggingConfig{Level: "info", Format: "text"},
	}
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("api_key", "")
	v.SetDefault("refresh_interval", d.RefreshInterval)
	v.SetDefault("show_notifications", d.ShowNotifications)
	v.SetDefault("mode", d.Mode)
	v.SetDefault("request_timeout", d.RequestTimeout.String())
	v.SetDefault("probe_timeout", d.ProbeTimeout.String())
	v.SetDefault("remote.base_url", d.Remote.BaseURL)
	v.SetDefault("http.listen", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func validate(cfg *Config) error {
	if cfg.RefreshInterval < 1 {
		return fmt.Errorf("refresh_interval must be at least 1 minute, got %d", cfg.RefreshInterval)
	}
	switch cfg.Mode {
	case "auto", "local", "remote":
	default:
		return fmt.Errorf("invalid mode %q", cfg.Mode)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be positive")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q", cfg.Logging.Format)
	}
	return nil
}
