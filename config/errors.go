// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName     = errors.New("invalid application name")
	ErrInvalidVersion     = errors.New("invalid application version")
	ErrInvalidEnvironment = errors.New("invalid environment")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidPort        = errors.New("invalid port number")
	ErrInvalidWorkers     = errors.New("invalid worker count")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrUnsupportedFormat   = errors.New("unsupported configuration format")
	ErrEnvironmentVarError = errors.New("environment variable error")
	ErrConfigWatchError    = errors.New("configuration watch error")
)
