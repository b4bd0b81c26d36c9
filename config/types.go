// Package config provides configuration management for gproc applications
package config

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/najoast/gproc/core"
	"github.com/najoast/gproc/logging"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	_, err := logging.ParseLevel(string(l))
	return err == nil && l != ""
}

// Level converts to the logger's level. Unknown names map to info.
func (l LogLevel) Level() logging.Level {
	level, _ := logging.ParseLevel(string(l))
	return level
}

// Config represents the complete gproc configuration
type Config struct {
	App     AppConfig     `yaml:"app" json:"app"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`

	// Custom configurations (for user-defined processes)
	Custom map[string]interface{} `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name string `yaml:"name" json:"name"`

	// Semantic version, e.g. 1.2.0
	Version string `yaml:"version" json:"version"`

	Environment Environment `yaml:"environment" json:"environment"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level LogLevel `yaml:"level" json:"level"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// Prefix written before every entry
	Prefix string `yaml:"prefix" json:"prefix"`
}

// RuntimeConfig contains the process runtime settings
type RuntimeConfig struct {
	// Size of the worker pool
	Workers int `yaml:"workers" json:"workers"`

	// Address stamped on every spawned PID
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// How long shutdown waits for processes to finalize
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// HTTPConfig contains the settings of the HTTP gateway into processes
type HTTPConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	Address string `yaml:"address" json:"address"`
	Port    int    `yaml:"port" json:"port"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// Addr returns the listen address in host:port form
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	defaults := core.DefaultOptions()
	return &Config{
		App: AppConfig{
			Name:        "gproc-app",
			Version:     "1.0.0",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Output: "stderr",
			Prefix: "gproc ",
		},
		Runtime: RuntimeConfig{
			Workers:         defaults.Workers,
			Host:            defaults.Host,
			Port:            int(defaults.Port),
			ShutdownTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled:      false,
			Address:      "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Custom: make(map[string]interface{}),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if _, err := semver.NewVersion(c.App.Version); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidVersion, c.App.Version, err)
	}
	if c.App.Environment != "" && !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}

	if !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}

	if c.Runtime.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Runtime.Port < 0 || c.Runtime.Port > 65535 {
		return ErrInvalidPort
	}

	// port 0 asks the system for a free port
	if c.HTTP.Enabled && (c.HTTP.Port < 0 || c.HTTP.Port > 65535) {
		return ErrInvalidPort
	}

	return nil
}

// RuntimeOptions returns the options for core.New
func (c *Config) RuntimeOptions() core.Options {
	return core.Options{
		Workers: c.Runtime.Workers,
		Host:    c.Runtime.Host,
		Port:    uint16(c.Runtime.Port),
	}
}

// AppVersion returns the parsed application version
func (c *Config) AppVersion() (*semver.Version, error) {
	return semver.NewVersion(c.App.Version)
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
