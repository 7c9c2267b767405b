package core

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalConfig = `detector:
  endpoint: "http://localhost:8001/predict"
`

func TestLoadConfig_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `port: 8080
logLevel: debug
jpegQuality: 75
database:
  type: sqlite
  connectionString: "file:reports.db"
detector:
  endpoint: "http://localhost:8001/predict"
  classNames: ["pothole", "crack"]
  confidenceThreshold: 0.4
counter:
  backend: redis
  scope: connection
  redis:
    address: "localhost:6379"
geocoder:
  provider: none
commands:
  - name: NormalizeCommand
  - name: ScaleCommand
    width: 1020
    height: 500
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if config.Port != 8080 {
		t.Errorf("Expected port to be 8080, got %d", config.Port)
	}
	if config.JPEGQuality != 75 {
		t.Errorf("Expected jpegQuality 75, got %d", config.JPEGQuality)
	}
	if config.Database.ConnectionString != "file:reports.db" {
		t.Errorf("unexpected connection string %q", config.Database.ConnectionString)
	}
	if len(config.Detector.ClassNames) != 2 || config.Detector.ConfidenceThreshold != 0.4 {
		t.Errorf("unexpected detector config %+v", config.Detector)
	}
	if config.Counter.Scope != CounterScopeConnection || config.Counter.Redis.Address != "localhost:6379" {
		t.Errorf("unexpected counter config %+v", config.Counter)
	}
	if len(config.Commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(config.Commands))
	}
	if config.Commands[1].Name != "ScaleCommand" || config.Commands[1].Params["width"] != 1020 {
		t.Errorf("unexpected scale command %+v", config.Commands[1])
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	config, err := ParseConfig([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"port", config.Port, 5000},
		{"logLevel", config.LogLevel, "info"},
		{"jpegQuality", config.JPEGQuality, 90},
		{"database.type", config.Database.Type, "sqlite"},
		{"database.connectionString", config.Database.ConnectionString, ":memory:"},
		{"detector.classNames", config.Detector.ClassNames[0], "pothole"},
		{"detector.targetClass", config.Detector.TargetClass, 0},
		{"counter.backend", config.Counter.Backend, "memory"},
		{"counter.scope", config.Counter.Scope, CounterScopeGlobal},
		{"geocoder.provider", config.Geocoder.Provider, "nominatim"},
		{"geocoder.timeoutSeconds", config.Geocoder.TimeoutSeconds, 10},
		{"sightingLog.path", config.SightingLog.Path, "pothole_locations.txt"},
		{"storage.backend", config.Storage.Backend, "filesystem"},
		{"storage.directory", config.Storage.Directory, "processed"},
		{"ledger.backend", config.Ledger.Backend, "none"},
		{"events.backend", config.Events.Backend, "none"},
		{"video.frameStride", config.Video.FrameStride, 1},
		{"commands", len(config.Commands), 1},
		{"commands[0]", config.Commands[0].Name, "NormalizeCommand"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"missing detector", "port: 8080\n", "detector.endpoint"},
		{"bad yaml", "port: [\n", "failed to parse"},
		{"bad database", minimalConfig + "database:\n  type: oracle\n", "database.type"},
		{"bad counter scope", minimalConfig + "counter:\n  scope: tenant\n", "counter.scope"},
		{"redis without address", minimalConfig + "counter:\n  backend: redis\n", "counter.redis.address"},
		{"google without key", minimalConfig + "geocoder:\n  provider: google\n", "geocoder.apiKey"},
		{"bad storage", minimalConfig + "storage:\n  backend: ftp\n", "storage.backend"},
		{"bad ledger", minimalConfig + "ledger:\n  backend: bitcoin\n", "ledger.backend"},
		{"bad events", minimalConfig + "events:\n  backend: kafka\n", "events.backend"},
		{"bad log level", minimalConfig + "logLevel: loud\n", "logLevel"},
		{"bad jpeg quality", minimalConfig + "jpegQuality: 101\n", "jpegQuality"},
		{"negative stride", minimalConfig + "video:\n  frameStride: -2\n", "frameStride"},
		{"empty command name", minimalConfig + "commands:\n  - width: 10\n", "empty name"},
		{"duplicate command", minimalConfig + "commands:\n  - name: ScaleCommand\n  - name: ScaleCommand\n", "duplicate command name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("expected error to contain %q, got %v", tt.errPart, err)
			}
		})
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	config, err := LoadConfig("/path/that/does/not/exist/config.yaml")
	if err == nil {
		t.Fatal("Expected error for non-existent file, got nil")
	}
	if config != nil {
		t.Error("Expected config to be nil when file doesn't exist")
	}
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("warn")
	if err != nil || level != slog.LevelWarn {
		t.Errorf("expected warn level, got %v (%v)", level, err)
	}
}
