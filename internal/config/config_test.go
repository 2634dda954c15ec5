package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoad_defaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != Defaults() {
		t.Errorf("cfg = %+v, want defaults", *cfg)
	}
	if cfg.Interval() != 5*time.Minute {
		t.Errorf("Interval = %v", cfg.Interval())
	}
}

func TestLoad_fileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte(`
refresh_interval: 2
show_notifications: false
request_timeout: 8s
logging:
  level: debug
`), 0600)
	t.Setenv("GRAVMETER_MODE", "remote")
	t.Setenv("GRAVMETER_HTTP_LISTEN", "127.0.0.1:9091")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshInterval != 2 || cfg.ShowNotifications || cfg.RequestTimeout != 8*time.Second {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.Mode != "remote" || cfg.HTTP.Listen != "127.0.0.1:9091" {
		t.Errorf("env values not applied: mode=%q listen=%q", cfg.Mode, cfg.HTTP.Listen)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"interval", "refresh_interval: 0\n", "refresh_interval"},
		{"mode", "mode: cloud\n", "invalid mode"},
		{"level", "logging:\n  level: loud\n", "logging level"},
		{"format", "logging:\n  format: xml\n", "logging format"},
		{"timeout", "request_timeout: -1s\n", "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			os.WriteFile(path, []byte(tt.yaml), 0600)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestWriteDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gravmeter", "config.yaml")
	if err := WriteDefaults(path, false); err != nil {
		t.Fatalf("WriteDefaults: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != Defaults() {
		t.Errorf("written defaults reload as %+v", *cfg)
	}
	if err := WriteDefaults(path, false); !errors.Is(err, ErrExists) {
		t.Errorf("second write err = %v, want ErrExists", err)
	}
	if err := WriteDefaults(path, true); err != nil {
		t.Errorf("forced write: %v", err)
	}
}

func TestSetAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("# poll often\nrefresh_interval: 1\napi_key: old\n"), 0600)

	if err := SetAPIKey(path, "new-key"); err != nil {
		t.Fatalf("SetAPIKey: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "# poll often") {
		t.Errorf("comment dropped:\n%s", data)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "new-key" || cfg.RefreshInterval != 1 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Redacted().APIKey == "new-key" {
		t.Error("Redacted leaks the key")
	}

	fresh := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SetAPIKey(fresh, "k"); err != nil {
		t.Fatalf("SetAPIKey on new file: %v", err)
	}
	if cfg, err := Load(fresh); err != nil || cfg.APIKey != "k" {
		t.Errorf("new file cfg = %+v, %v", cfg, err)
	}
}

func TestWatch_reloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("refresh_interval: 5\n"), 0600)

	l := NewLoader(path)
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	changed := make(chan *Config, 4)
	l.Watch(zerolog.Nop(), func(c *Config) { changed <- c })

	os.WriteFile(path, []byte("refresh_interval: 9\n"), 0600)
	// A truncating write can surface an intermediate empty file first.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.RefreshInterval == 9 {
				return
			}
		case <-deadline:
			t.Fatal("no reload after write")
		}
	}
}
