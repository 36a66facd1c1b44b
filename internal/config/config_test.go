package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("no path", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !reflect.DeepEqual(cfg, Default()) {
			t.Errorf("Load() = %+v, want defaults", cfg)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.DataDir != "./data" {
			t.Errorf("DataDir = %q, want default", cfg.DataDir)
		}
	})

	t.Run("full file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jsondocs.yaml")
		content := `data_dir: /var/lib/jsondocs
log_level: debug
default:
  name: ""
  tags: []
cache:
  ttl: 10m
  capacity: 500
history:
  enabled: true
  name: bot
  email: bot@example.com
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		want := &Config{
			DataDir:  "/var/lib/jsondocs",
			LogLevel: "debug",
			Default:  map[string]any{"name": "", "tags": []any{}},
			Cache:    Cache{TTL: 10 * time.Minute, Capacity: 500},
			History:  History{Enabled: true, Name: "bot", Email: "bot@example.com"},
		}
		if !reflect.DeepEqual(cfg, want) {
			t.Errorf("Load() = %+v, want %+v", cfg, want)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jsondocs.yaml")
		if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.LogLevel != "warn" || cfg.DataDir != "./data" || cfg.History.Name != "jsondocs" {
			t.Errorf("Load() = %+v", cfg)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name    string
			content string
			wantErr string
		}{
			{"syntax", "data_dir: [", "failed to parse"},
			{"log level", "log_level: loud\n", "unknown log_level"},
			{"negative ttl", "cache:\n  ttl: -1s\n", "cache.ttl"},
			{"negative capacity", "cache:\n  capacity: -3\n", "cache.capacity"},
			{"empty data dir", "data_dir: \"\"\n", "data_dir is required"},
			{"history identity", "history:\n  enabled: true\n  name: \"\"\n", "history.name"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				path := filepath.Join(t.TempDir(), "jsondocs.yaml")
				if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
				_, err := Load(path)
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
				}
			})
		}
	})
}
