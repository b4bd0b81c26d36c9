// Package bootstrap provides application implementation
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/najoast/gproc/config"
	"github.com/najoast/gproc/core"
	"github.com/najoast/gproc/logging"
)

// Service names registered by every application
const (
	RuntimeServiceName       = "runtime"
	HTTPGatewayServiceName   = "http-gateway"
	ConfigWatcherServiceName = "config-watcher"
)

// Setup spawns the application's processes once the runtime is up
type Setup func(rt *core.Runtime) error

// DefaultApplication wires configuration, logging, the runtime, the HTTP
// gateway and the configuration watcher together.
type DefaultApplication struct {
	config   *config.Config
	provider *config.FileProvider

	logger *logging.StdLogger
	logOut io.Closer

	lifecycle *DefaultLifecycleManager

	runtimeService *RuntimeService
	gateway        *HTTPGatewayService

	mutex        sync.RWMutex
	running      bool
	shutdownChan chan os.Signal
}

// newApplication registers the core services
func newApplication(cfg *config.Config, provider *config.FileProvider, logger *logging.StdLogger, logOut io.Closer, setups []Setup) *DefaultApplication {
	app := &DefaultApplication{
		config:       cfg,
		provider:     provider,
		logger:       logger,
		logOut:       logOut,
		lifecycle:    NewLifecycleManager(logger),
		shutdownChan: make(chan os.Signal, 1),
	}

	app.runtimeService = &RuntimeService{app: app, setups: setups}
	app.gateway = &HTTPGatewayService{app: app}

	app.lifecycle.Register(RuntimeServiceName, app.runtimeService)
	app.lifecycle.Register(HTTPGatewayServiceName, app.gateway, RuntimeServiceName)
	app.lifecycle.Register(ConfigWatcherServiceName, &ConfigWatcherService{app: app})

	return app
}

// Config returns the current configuration
func (app *DefaultApplication) Config() *config.Config {
	app.mutex.RLock()
	defer app.mutex.RUnlock()
	return app.config
}

// Logger returns the application logger
func (app *DefaultApplication) Logger() *logging.StdLogger {
	return app.logger
}

// Runtime returns the process runtime, or nil before Start
func (app *DefaultApplication) Runtime() *core.Runtime {
	return app.runtimeService.Runtime()
}

// HTTPAddr returns the address the gateway listens on, or "" when the
// gateway is disabled or stopped
func (app *DefaultApplication) HTTPAddr() string {
	return app.gateway.Addr()
}

// LifecycleManager returns the lifecycle manager
func (app *DefaultApplication) LifecycleManager() *DefaultLifecycleManager {
	return app.lifecycle
}

// Start starts all services
func (app *DefaultApplication) Start(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mutex.Unlock()

	if err := app.lifecycle.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}

	cfg := app.Config()
	app.logger.Infof("%s %s started (%s)", cfg.App.Name, cfg.App.Version, cfg.App.Environment)
	return nil
}

// Run starts the application and blocks until a shutdown signal arrives
// or ctx is done, then shuts down gracefully
func (app *DefaultApplication) Run(ctx context.Context) error {
	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	if err := app.Start(ctx); err != nil {
		return err
	}

	select {
	case sig := <-app.shutdownChan:
		app.logger.Infof("received %s, starting graceful shutdown", sig)
	case <-ctx.Done():
		app.logger.Infof("context cancelled, starting graceful shutdown")
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops all services and closes the log output
func (app *DefaultApplication) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	err := app.lifecycle.Stop(ctx)
	if err != nil {
		err = fmt.Errorf("failed to stop services: %w", err)
	}

	app.logger.Infof("%s stopped", app.Config().App.Name)
	if app.logOut != nil {
		app.logOut.Close()
	}
	return err
}

// applyConfig takes a reloaded configuration. Only the log level applies
// to a running application; runtime and gateway settings need a restart.
func (app *DefaultApplication) applyConfig(oldConfig, newConfig *config.Config) {
	app.mutex.Lock()
	app.config = newConfig
	app.mutex.Unlock()

	if oldConfig.Log.Level != newConfig.Log.Level {
		app.logger.SetLevel(newConfig.Log.Level.Level())
		app.logger.Infof("log level changed from %s to %s", oldConfig.Log.Level, newConfig.Log.Level)
	}
	if oldConfig.Runtime != newConfig.Runtime || oldConfig.HTTP != newConfig.HTTP {
		app.logger.Warnf("runtime or http settings changed; restart to apply them")
	}
}

// RuntimeService owns the process runtime
type RuntimeService struct {
	app    *DefaultApplication
	setups []Setup

	mutex   sync.RWMutex
	runtime *core.Runtime
}

func (s *RuntimeService) Name() string {
	return RuntimeServiceName
}

// Runtime returns the running runtime, or nil
func (s *RuntimeService) Runtime() *core.Runtime {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.runtime
}

func (s *RuntimeService) Start(ctx context.Context) error {
	cfg := s.app.Config()
	rt := core.New(
		core.WithOptions(cfg.RuntimeOptions()),
		core.WithLogger(s.app.logger),
	)

	for _, setup := range s.setups {
		if err := setup(rt); err != nil {
			rt.Shutdown(ctx)
			return fmt.Errorf("setup failed: %w", err)
		}
	}

	s.mutex.Lock()
	s.runtime = rt
	s.mutex.Unlock()
	return nil
}

func (s *RuntimeService) Stop(ctx context.Context) error {
	s.mutex.Lock()
	rt := s.runtime
	s.runtime = nil
	s.mutex.Unlock()

	if rt == nil {
		return nil
	}

	if timeout := s.app.Config().Runtime.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return rt.Shutdown(ctx)
}

func (s *RuntimeService) Health(ctx context.Context) (HealthStatus, error) {
	rt := s.Runtime()
	if rt == nil {
		return HealthStatus{State: HealthStopped, Message: "Runtime not running"}, nil
	}

	stats := rt.Stats()
	return HealthStatus{
		State:   HealthHealthy,
		Message: "Runtime running",
		Data: map[string]interface{}{
			"id":           stats.ID,
			"workers":      stats.Workers,
			"processes":    stats.Processes,
			"runnable":     stats.Runnable,
			"dead_letters": stats.DeadLetters,
		},
	}, nil
}

// HTTPGatewayService serves HTTP requests to processes through the
// runtime's handler
type HTTPGatewayService struct {
	app *DefaultApplication

	mutex    sync.RWMutex
	server   *http.Server
	listener net.Listener
}

func (s *HTTPGatewayService) Name() string {
	return HTTPGatewayServiceName
}

// Addr returns the listen address, or ""
func (s *HTTPGatewayService) Addr() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *HTTPGatewayService) Start(ctx context.Context) error {
	cfg := s.app.Config().HTTP
	if !cfg.Enabled {
		return nil
	}

	rt := s.app.Runtime()
	if rt == nil {
		return fmt.Errorf("runtime is not running")
	}

	listener, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Addr(), err)
	}

	server := &http.Server{
		Handler:      rt,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.mutex.Lock()
	s.server = server
	s.listener = listener
	s.mutex.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.app.logger.Errorf("http gateway stopped: %v", err)
		}
	}()

	s.app.logger.Infof("http gateway listening on %s", listener.Addr())
	return nil
}

func (s *HTTPGatewayService) Stop(ctx context.Context) error {
	s.mutex.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mutex.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func (s *HTTPGatewayService) Health(ctx context.Context) (HealthStatus, error) {
	addr := s.Addr()
	if addr == "" {
		return HealthStatus{State: HealthUnknown, Message: "HTTP gateway not enabled"}, nil
	}
	return HealthStatus{
		State:   HealthHealthy,
		Message: "HTTP gateway listening",
		Data:    map[string]interface{}{"address": addr},
	}, nil
}

// ConfigWatcherService reloads the configuration file when it changes
type ConfigWatcherService struct {
	app *DefaultApplication

	mutex  sync.Mutex
	cancel context.CancelFunc
}

func (s *ConfigWatcherService) Name() string {
	return ConfigWatcherServiceName
}

func (s *ConfigWatcherService) Start(ctx context.Context) error {
	if s.app.provider == nil {
		return nil
	}

	// ctx only bounds starting; the watch runs until Stop
	watchCtx, cancel := context.WithCancel(context.Background())
	if err := s.app.provider.Watch(watchCtx, s.app.applyConfig); err != nil {
		cancel()
		return err
	}

	s.mutex.Lock()
	s.cancel = cancel
	s.mutex.Unlock()
	return nil
}

func (s *ConfigWatcherService) Stop(ctx context.Context) error {
	s.mutex.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mutex.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	return s.app.provider.Close()
}

func (s *ConfigWatcherService) Health(ctx context.Context) (HealthStatus, error) {
	s.mutex.Lock()
	watching := s.cancel != nil
	s.mutex.Unlock()

	if !watching {
		return HealthStatus{State: HealthUnknown, Message: "No configuration file watched"}, nil
	}
	return HealthStatus{State: HealthHealthy, Message: "Watching configuration file"}, nil
}

// ApplicationBuilder helps build and configure applications
type ApplicationBuilder struct {
	config     *config.Config
	configFile string
	loader     *config.Loader
	logOutput  io.Writer
	setups     []Setup
	services   []registration
}

type registration struct {
	name    string
	service Service
	deps    []string
}

// NewApplicationBuilder creates a new application builder
func NewApplicationBuilder() *ApplicationBuilder {
	return &ApplicationBuilder{}
}

// WithConfig uses cfg as is, without loading or watching a file
func (b *ApplicationBuilder) WithConfig(cfg *config.Config) *ApplicationBuilder {
	b.config = cfg
	return b
}

// WithConfigFile loads configuration from filename and watches it
func (b *ApplicationBuilder) WithConfigFile(filename string) *ApplicationBuilder {
	b.configFile = filename
	return b
}

// WithLoader sets the loader used for the configuration file
func (b *ApplicationBuilder) WithLoader(loader *config.Loader) *ApplicationBuilder {
	b.loader = loader
	return b
}

// WithLogOutput overrides the log output of the configuration
func (b *ApplicationBuilder) WithLogOutput(w io.Writer) *ApplicationBuilder {
	b.logOutput = w
	return b
}

// WithSetup adds a function run against the runtime when it starts
func (b *ApplicationBuilder) WithSetup(setup Setup) *ApplicationBuilder {
	b.setups = append(b.setups, setup)
	return b
}

// WithService registers an additional service
func (b *ApplicationBuilder) WithService(name string, service Service, deps ...string) *ApplicationBuilder {
	b.services = append(b.services, registration{name: name, service: service, deps: deps})
	return b
}

// Build builds the configured application
func (b *ApplicationBuilder) Build() (*DefaultApplication, error) {
	cfg := b.config
	var provider *config.FileProvider

	if cfg == nil {
		var err error
		provider, err = config.NewFileProvider(b.configFile, b.loader)
		if err != nil {
			return nil, fmt.Errorf("failed to create config provider: %w", err)
		}
		if cfg, err = provider.Load(); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if b.configFile == "" {
			provider = nil
		}
	} else if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	out, closer := b.logOutput, io.Closer(nil)
	if out == nil {
		var err error
		if out, closer, err = openLogOutput(cfg.Log.Output); err != nil {
			if provider != nil {
				provider.Close()
			}
			return nil, err
		}
	}
	logger := logging.New(out, cfg.Log.Prefix, cfg.Log.Level.Level())
	if provider != nil {
		provider.SetLogger(logger)
	}

	app := newApplication(cfg, provider, logger, closer, b.setups)
	for _, r := range b.services {
		if err := app.lifecycle.Register(r.name, r.service, r.deps...); err != nil {
			return nil, fmt.Errorf("failed to register service %s: %w", r.name, err)
		}
	}

	return app, nil
}

// openLogOutput resolves stdout, stderr or a file path
func openLogOutput(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil, nil
	case "stdout":
		return os.Stdout, nil, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return f, f, nil
	}
}
