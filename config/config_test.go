package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/najoast/gproc/logging"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

// TestConfig tests basic configuration functionality
func TestConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config validation failed: %v", err)
	}

	opts := config.RuntimeOptions()
	if opts.Workers != config.Runtime.Workers {
		t.Errorf("Expected %d workers, got %d", config.Runtime.Workers, opts.Workers)
	}
	if opts.Host != config.Runtime.Host {
		t.Errorf("Expected host '%s', got '%s'", config.Runtime.Host, opts.Host)
	}

	version, err := config.AppVersion()
	if err != nil {
		t.Fatalf("Failed to parse app version: %v", err)
	}
	if version.Major() != 1 {
		t.Errorf("Expected major version 1, got %d", version.Major())
	}

	if config.HTTP.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected '0.0.0.0:8080', got '%s'", config.HTTP.Addr())
	}
	if !config.IsDevelopment() || config.IsProduction() {
		t.Errorf("Expected development environment, got %s", config.App.Environment)
	}
}

// TestConfigValidation tests configuration validation
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   error
	}{
		{"valid config", func(c *Config) {}, nil},
		{"prerelease version", func(c *Config) { c.App.Version = "2.1.0-rc.1" }, nil},
		{"empty environment", func(c *Config) { c.App.Environment = "" }, nil},
		{"invalid app name", func(c *Config) { c.App.Name = "" }, ErrInvalidAppName},
		{"invalid version", func(c *Config) { c.App.Version = "one" }, ErrInvalidVersion},
		{"invalid environment", func(c *Config) { c.App.Environment = "moon" }, ErrInvalidEnvironment},
		{"invalid log level", func(c *Config) { c.Log.Level = "loud" }, ErrInvalidLogLevel},
		{"empty log level", func(c *Config) { c.Log.Level = "" }, ErrInvalidLogLevel},
		{"no workers", func(c *Config) { c.Runtime.Workers = 0 }, ErrInvalidWorkers},
		{"invalid runtime port", func(c *Config) { c.Runtime.Port = 70000 }, ErrInvalidPort},
		{"invalid http port", func(c *Config) { c.HTTP.Enabled = true; c.HTTP.Port = -1 }, ErrInvalidPort},
		{"disabled http ignores port", func(c *Config) { c.HTTP.Port = -1 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)

			err := config.Validate()
			if tt.want == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  logging.Level
	}{
		{LogLevelTrace, logging.LevelTrace},
		{LogLevelDebug, logging.LevelDebug},
		{LogLevelInfo, logging.LevelInfo},
		{LogLevelWarn, logging.LevelWarn},
		{LogLevelError, logging.LevelError},
		{LogLevelFatal, logging.LevelFatal},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			if !tt.level.IsValid() {
				t.Errorf("Expected %s to be valid", tt.level)
			}
			if got := tt.level.Level(); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

// TestLoader tests configuration loading
func TestLoader(t *testing.T) {
	loader := NewLoader()

	yamlContent := `
app:
  name: test-app
  version: "1.2.0"
  environment: testing

log:
  level: debug

runtime:
  workers: 3
  host: 10.0.0.1
  port: 5050
  shutdown_timeout: 3s
`

	yamlFile := writeFile(t, t.TempDir(), "test-config.yaml", yamlContent)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load YAML config: %v", err)
	}

	if config.App.Name != "test-app" {
		t.Errorf("Expected app name 'test-app', got '%s'", config.App.Name)
	}
	if config.App.Environment != EnvTesting {
		t.Errorf("Expected env testing, got %v", config.App.Environment)
	}
	if config.Log.Level != LogLevelDebug {
		t.Errorf("Expected log level debug, got %v", config.Log.Level)
	}
	if config.Runtime.Workers != 3 {
		t.Errorf("Expected 3 workers, got %d", config.Runtime.Workers)
	}
	if config.Runtime.Port != 5050 {
		t.Errorf("Expected port 5050, got %d", config.Runtime.Port)
	}
	if config.Runtime.ShutdownTimeout != 3*time.Second {
		t.Errorf("Expected shutdown timeout 3s, got %v", config.Runtime.ShutdownTimeout)
	}

	// keys missing from the file keep their defaults
	if config.HTTP.Port != 8080 {
		t.Errorf("Expected default http port 8080, got %d", config.HTTP.Port)
	}
	if config.Log.Output != "stderr" {
		t.Errorf("Expected default log output 'stderr', got '%s'", config.Log.Output)
	}
}

// TestLoaderJSON tests JSON configuration loading
func TestLoaderJSON(t *testing.T) {
	loader := NewLoader()

	jsonContent := `{
	"app": {
		"name": "json-test-app",
		"version": "2.0.0",
		"environment": "production"
	},
	"log": {
		"level": "warn"
	},
	"http": {
		"enabled": true,
		"port": 9090
	}
}`

	jsonFile := writeFile(t, t.TempDir(), "test-config.json", jsonContent)

	config, err := loader.LoadFromFile(jsonFile)
	if err != nil {
		t.Fatalf("Failed to load JSON config: %v", err)
	}

	if config.App.Name != "json-test-app" {
		t.Errorf("Expected app name 'json-test-app', got '%s'", config.App.Name)
	}
	if !config.IsProduction() {
		t.Errorf("Expected env production, got %v", config.App.Environment)
	}
	if !config.HTTP.Enabled || config.HTTP.Port != 9090 {
		t.Errorf("Expected http enabled on 9090, got %v on %d", config.HTTP.Enabled, config.HTTP.Port)
	}
}

func TestLoaderErrors(t *testing.T) {
	loader := NewLoader()
	dir := t.TempDir()

	t.Run("UnsupportedFormat", func(t *testing.T) {
		path := writeFile(t, dir, "config.toml", "name = 'x'")
		if _, err := loader.LoadFromFile(path); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Expected %v, got %v", ErrUnsupportedFormat, err)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if _, err := loader.LoadFromFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("Expected %v, got %v", os.ErrNotExist, err)
		}
	})

	t.Run("Malformed", func(t *testing.T) {
		path := writeFile(t, dir, "bad.yaml", "app: [unclosed")
		if _, err := loader.LoadFromFile(path); err == nil {
			t.Error("Expected error for malformed YAML")
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		path := writeFile(t, dir, "invalid.yaml", "app:\n  version: not-a-version\n")
		if _, err := loader.LoadFromFile(path); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("Expected %v, got %v", ErrInvalidVersion, err)
		}
	})

	t.Run("Reader", func(t *testing.T) {
		config, err := loader.LoadFromReader(strings.NewReader(`{"runtime": {"workers": 2}}`), FormatJSON)
		if err != nil {
			t.Fatalf("Failed to load from reader: %v", err)
		}
		if config.Runtime.Workers != 2 {
			t.Errorf("Expected 2 workers, got %d", config.Runtime.Workers)
		}

		if _, err := loader.LoadFromReader(strings.NewReader(""), "ini"); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Expected %v, got %v", ErrUnsupportedFormat, err)
		}
	})
}

// TestEnvironmentOverrides tests environment variable overrides
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("GPROC_APP_NAME", "env-test-app")
	t.Setenv("GPROC_RUNTIME_WORKERS", "5")
	t.Setenv("GPROC_HTTP_PORT", "7777")
	t.Setenv("GPROC_LOG_LEVEL", "ERROR")

	loader := NewLoader()

	yamlContent := `
app:
  name: base-app
runtime:
  workers: 2
http:
  port: 8080
`
	yamlFile := writeFile(t, t.TempDir(), "env-test-config.yaml", yamlContent)

	config, err := loader.LoadFromFile(yamlFile)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.App.Name != "env-test-app" {
		t.Errorf("Expected app name 'env-test-app', got '%s'", config.App.Name)
	}
	if config.Runtime.Workers != 5 {
		t.Errorf("Expected 5 workers, got %d", config.Runtime.Workers)
	}
	if config.HTTP.Port != 7777 {
		t.Errorf("Expected port 7777, got %d", config.HTTP.Port)
	}
	if config.Log.Level != LogLevelError {
		t.Errorf("Expected log level error, got %v", config.Log.Level)
	}

	t.Run("Invalid", func(t *testing.T) {
		t.Setenv("GPROC_RUNTIME_WORKERS", "many")
		if _, err := loader.LoadFromFile(yamlFile); !errors.Is(err, ErrEnvironmentVarError) {
			t.Errorf("Expected %v, got %v", ErrEnvironmentVarError, err)
		}
	})

	t.Run("Prefix", func(t *testing.T) {
		t.Setenv("APP_RUNTIME_WORKERS", "9")
		config, err := NewLoader().SetEnvPrefix("APP").LoadFromFile(yamlFile)
		if err != nil {
			t.Fatalf("Failed to load config: %v", err)
		}
		if config.Runtime.Workers != 9 {
			t.Errorf("Expected 9 workers, got %d", config.Runtime.Workers)
		}
	})
}

// TestAutoLoad tests automatic configuration discovery
func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "gproc.yaml", "app:\n  name: auto-load-app\n")

	config, err := NewLoader().SetSearchPaths([]string{filepath.Join(dir, "missing"), dir}).AutoLoad()
	if err != nil {
		t.Fatalf("Failed to auto-load config: %v", err)
	}
	if config.App.Name != "auto-load-app" {
		t.Errorf("Expected app name 'auto-load-app', got '%s'", config.App.Name)
	}

	t.Run("NoFile", func(t *testing.T) {
		config, err := NewLoader().SetSearchPaths([]string{t.TempDir()}).Load("")
		if err != nil {
			t.Fatalf("Failed to auto-load defaults: %v", err)
		}
		if config.App.Name != DefaultConfig().App.Name {
			t.Errorf("Expected default app name, got '%s'", config.App.Name)
		}
	})

	t.Run("DefaultsNotShared", func(t *testing.T) {
		defaults := DefaultConfig()
		loader := NewLoader().SetSearchPaths([]string{dir}).SetDefaultConfig(defaults)
		if _, err := loader.AutoLoad(); err != nil {
			t.Fatalf("Failed to auto-load config: %v", err)
		}
		if defaults.App.Name != "gproc-app" {
			t.Errorf("Expected defaults untouched, got app name '%s'", defaults.App.Name)
		}
	})
}

// TestWatcher tests configuration file watching
func TestWatcher(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "watch-test-config.yaml", "log:\n  level: info\n")

	watcher, err := NewWatcher(configFile, NewLoader())
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	watcher.SetDebounce(20 * time.Millisecond)
	defer watcher.Stop()

	if watcher.GetConfig().Log.Level != LogLevelInfo {
		t.Errorf("Expected initial level info, got %s", watcher.GetConfig().Log.Level)
	}

	changes := make(chan LogLevel, 4)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		if oldConfig.Log.Level != newConfig.Log.Level {
			changes <- newConfig.Log.Level
		}
	})
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		panic("misbehaving callback")
	})

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	writeFile(t, filepath.Dir(configFile), filepath.Base(configFile), "log:\n  level: debug\n")

	select {
	case level := <-changes:
		if level != LogLevelDebug {
			t.Errorf("Expected level debug, got %s", level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Configuration change was not detected within timeout")
	}

	if watcher.GetConfig().Log.Level != LogLevelDebug {
		t.Errorf("Expected updated level debug, got %s", watcher.GetConfig().Log.Level)
	}

	t.Run("Replaced", func(t *testing.T) {
		// save by rename, as many editors do
		tmp := writeFile(t, filepath.Dir(configFile), "next.yaml", "log:\n  level: warn\n")
		if err := os.Rename(tmp, configFile); err != nil {
			t.Fatalf("Failed to replace config file: %v", err)
		}

		select {
		case level := <-changes:
			if level != LogLevelWarn {
				t.Errorf("Expected level warn, got %s", level)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("Replaced configuration was not detected within timeout")
		}
	})

	t.Run("InvalidKeepsCurrent", func(t *testing.T) {
		writeFile(t, filepath.Dir(configFile), filepath.Base(configFile), "app:\n  version: bad\n")
		if err := watcher.Reload(); err == nil {
			t.Error("Expected reload of an invalid file to fail")
		}
		if watcher.GetConfig().App.Version != "1.0.0" {
			t.Errorf("Expected current config kept, got version %s", watcher.GetConfig().App.Version)
		}
	})

	if err := watcher.Stop(); err != nil {
		t.Errorf("Failed to stop watcher: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Expected second Stop to be a no-op, got %v", err)
	}
}

// TestFileProvider tests the file-based configuration provider
func TestFileProvider(t *testing.T) {
	configFile := writeFile(t, t.TempDir(), "provider-test-config.yaml", "http:\n  port: 8888\n")

	provider, err := NewFileProvider(configFile, nil)
	if err != nil {
		t.Fatalf("Failed to create file provider: %v", err)
	}
	defer provider.Close()

	config, err := provider.Load()
	if err != nil {
		t.Fatalf("Failed to load config from provider: %v", err)
	}
	if config.HTTP.Port != 8888 {
		t.Errorf("Expected port 8888, got %d", config.HTTP.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan int, 1)
	err = provider.Watch(ctx, func(oldConfig, newConfig *Config) {
		changed <- newConfig.HTTP.Port
	})
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	writeFile(t, filepath.Dir(configFile), filepath.Base(configFile), "http:\n  port: 7777\n")

	select {
	case port := <-changed:
		if port != 7777 {
			t.Errorf("Expected port 7777, got %d", port)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Configuration change was not detected within timeout")
	}

	t.Run("NoFile", func(t *testing.T) {
		provider, err := NewFileProvider("", NewLoader().SetSearchPaths(nil))
		if err != nil {
			t.Fatalf("Failed to create file provider: %v", err)
		}
		if _, err := provider.Load(); err != nil {
			t.Errorf("Expected defaults, got %v", err)
		}
		if err := provider.Watch(ctx, func(*Config, *Config) {}); !errors.Is(err, ErrConfigWatchError) {
			t.Errorf("Expected %v, got %v", ErrConfigWatchError, err)
		}
	})
}
