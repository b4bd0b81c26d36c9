// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// FormatOf determines the format from a file extension
func FormatOf(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// Loader handles configuration loading from files and the environment.
// File values are applied on top of the defaults, and environment
// variables on top of both.
type Loader struct {
	searchPaths []string
	envPrefix   string

	// Defaults the file is merged into
	defaults *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	paths := []string{".", "./config", "./configs", "/etc/gproc"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".gproc"))
	}
	return &Loader{
		searchPaths: paths,
		envPrefix:   "GPROC",
		defaults:    DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the configuration that files are merged into
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaults = config
	return l
}

// Load loads configuration from filename, or discovers a file in the
// search paths when filename is empty.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.AutoLoad()
	}
	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// AutoLoad discovers a configuration file in the search paths. Without
// one, the defaults and the environment are used.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		return l.finish(l.defaultConfig())
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

// finish applies environment overrides and validates
func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"gproc.yaml", "gproc.yml",
		"config.yaml", "config.yml",
		"gproc.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if info, err := os.Stat(fullPath); err == nil && !info.IsDir() {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

// defaultConfig returns a private copy of the defaults
func (l *Loader) defaultConfig() *Config {
	if l.defaults == nil {
		return DefaultConfig()
	}
	config := *l.defaults
	config.Custom = make(map[string]interface{}, len(l.defaults.Custom))
	for k, v := range l.defaults.Custom {
		config.Custom[k] = v
	}
	return &config
}

// parseConfig decodes data over a copy of the defaults, so keys missing
// from the document keep their default values.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaultConfig()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return config, nil
}

// loadFromEnv applies PREFIX_SECTION_KEY overrides
func (l *Loader) loadFromEnv(config *Config) error {
	env := func(key string) (string, bool) {
		val := os.Getenv(l.envPrefix + "_" + key)
		return val, val != ""
	}

	if val, ok := env("APP_NAME"); ok {
		config.App.Name = val
	}
	if val, ok := env("APP_VERSION"); ok {
		config.App.Version = val
	}
	if val, ok := env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}

	if val, ok := env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(strings.ToLower(val))
	}
	if val, ok := env("LOG_OUTPUT"); ok {
		config.Log.Output = val
	}

	if val, ok := env("RUNTIME_WORKERS"); ok {
		workers, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("%w: %s_RUNTIME_WORKERS=%s", ErrEnvironmentVarError, l.envPrefix, val)
		}
		config.Runtime.Workers = workers
	}
	if val, ok := env("RUNTIME_HOST"); ok {
		config.Runtime.Host = val
	}
	if val, ok := env("RUNTIME_PORT"); ok {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_RUNTIME_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Runtime.Port = port
	}
	if val, ok := env("RUNTIME_SHUTDOWN_TIMEOUT"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("%w: %s_RUNTIME_SHUTDOWN_TIMEOUT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.Runtime.ShutdownTimeout = d
	}

	if val, ok := env("HTTP_ENABLED"); ok {
		config.HTTP.Enabled = strings.ToLower(val) == "true"
	}
	if val, ok := env("HTTP_ADDRESS"); ok {
		config.HTTP.Address = val
	}
	if val, ok := env("HTTP_PORT"); ok {
		port, err := parsePort(val)
		if err != nil {
			return fmt.Errorf("%w: %s_HTTP_PORT: %v", ErrEnvironmentVarError, l.envPrefix, err)
		}
		config.HTTP.Port = port
	}

	return nil
}

// Helper function to parse port number
func parsePort(val string) (int, error) {
	port, err := strconv.Atoi(val)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number: %d", port)
	}
	return port, nil
}
