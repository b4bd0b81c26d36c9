// Package config provides configuration watching and hot-reload functionality
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/fsnotify/fsnotify"

	"github.com/najoast/gproc/logging"
)

const (
	defaultDebounce = 500 * time.Millisecond

	// re-adding the directory watch after the directory was replaced
	rewatchAttempts = 10
	rewatchDelay    = 50 * time.Millisecond
	rewatchMaxDelay = 2 * time.Second

	// re-reading a file caught halfway through a write
	reloadAttempts = 3
	reloadDelay    = 20 * time.Millisecond
	reloadMaxDelay = 200 * time.Millisecond
)

// Watcher watches a configuration file for changes and reloads it. The
// parent directory is watched so that saves which replace the file are
// seen as well.
type Watcher struct {
	configFile string
	dir        string
	loader     *Loader
	logger     logging.Logger
	debounce   time.Duration

	config   *Config
	configMu sync.RWMutex

	fsWatcher *fsnotify.Watcher

	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	// reloadMu keeps reloads and their notifications in file order
	reloadMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// NewWatcher loads configFile and prepares to watch it
func NewWatcher(configFile string, loader *Loader) (*Watcher, error) {
	if _, err := FormatOf(configFile); err != nil {
		return nil, err
	}

	config, err := loader.LoadFromFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create file system watcher: %v", ErrConfigWatchError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		configFile: filepath.Clean(configFile),
		dir:        filepath.Dir(filepath.Clean(configFile)),
		loader:     loader,
		logger:     logging.Discard,
		debounce:   defaultDebounce,
		config:     config,
		fsWatcher:  fsWatcher,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SetLogger sets the logger reload events are reported to
func (w *Watcher) SetLogger(logger logging.Logger) *Watcher {
	if logger != nil {
		w.logger = logger
	}
	return w
}

// SetDebounce sets how long writes must be quiet before a reload
func (w *Watcher) SetDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Start starts watching the configuration file
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.dir); err != nil {
		return fmt.Errorf("%w: failed to watch %s: %v", ErrConfigWatchError, w.dir, err)
	}

	w.wg.Add(1)
	go w.watchLoop()

	return nil
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.cancel()
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback for configuration changes
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload manually reloads the configuration
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

// watchLoop watches for file system events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// collapses the several events one save produces
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	reload := func() {
		if w.ctx.Err() != nil {
			return
		}
		if err := w.reloadConfig(); err != nil {
			w.logger.Warnf("failed to reload config: %v", err)
		}
	}

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			switch filepath.Clean(event.Name) {
			case w.configFile:
				switch {
				case event.Has(fsnotify.Write) || event.Has(fsnotify.Create):
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(w.debounce, reload)
				case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
					// the current config stays until a new file appears
					w.logger.Infof("config file %s was removed or renamed", w.configFile)
				}

			case w.dir:
				if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					w.logger.Infof("config directory %s was removed or renamed", w.dir)
					w.wg.Add(1)
					go w.rewatch(reload)
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("config watcher error: %v", err)
		}
	}
}

// rewatch re-adds the directory watch once the directory is back and
// reloads the file from it.
func (w *Watcher) rewatch(reload func()) {
	defer w.wg.Done()

	retrier := retry.NewRetrier(rewatchAttempts, rewatchDelay, rewatchMaxDelay)
	err := retrier.RunContext(w.ctx, func(context.Context) error {
		return w.fsWatcher.Add(w.dir)
	})
	if err != nil {
		if w.ctx.Err() == nil {
			w.logger.Errorf("stopped watching %s: %v", w.dir, err)
		}
		return
	}
	reload()
}

// reloadConfig reloads the configuration from file
func (w *Watcher) reloadConfig() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	var newConfig *Config
	retrier := retry.NewRetrier(reloadAttempts, reloadDelay, reloadMaxDelay)
	err := retrier.RunContext(w.ctx, func(context.Context) error {
		config, err := w.loader.LoadFromFile(w.configFile)
		if err != nil {
			return err
		}
		newConfig = config
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.notifyCallbacks(oldConfig, newConfig)

	w.logger.Infof("configuration reloaded from %s", w.configFile)
	return nil
}

// notifyCallbacks calls every registered callback in registration order
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Errorf("config change callback panicked: %v", r)
				}
			}()
			callback(oldConfig, newConfig)
		}()
	}
}

// Provider represents a source of configuration
type Provider interface {
	// Load returns the current configuration
	Load() (*Config, error)

	// Watch calls callback on every change until ctx is done
	Watch(ctx context.Context, callback ConfigChangeCallback) error

	// Close releases the provider
	Close() error
}

// FileProvider provides configuration from a file, watched for changes,
// or from discovery and the environment when no file is given.
type FileProvider struct {
	loader  *Loader
	watcher *Watcher
	started bool
	mu      sync.Mutex
}

// NewFileProvider creates a new file-based configuration provider. A nil
// loader means NewLoader().
func NewFileProvider(configFile string, loader *Loader) (*FileProvider, error) {
	if loader == nil {
		loader = NewLoader()
	}
	provider := &FileProvider{loader: loader}

	if configFile != "" {
		watcher, err := NewWatcher(configFile, loader)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		provider.watcher = watcher
	}

	return provider, nil
}

// SetLogger sets the logger of the underlying watcher
func (fp *FileProvider) SetLogger(logger logging.Logger) *FileProvider {
	if fp.watcher != nil {
		fp.watcher.SetLogger(logger)
	}
	return fp
}

// Load loads configuration
func (fp *FileProvider) Load() (*Config, error) {
	if fp.watcher != nil {
		return fp.watcher.GetConfig(), nil
	}
	return fp.loader.AutoLoad()
}

// Watch registers callback and starts watching. The watch ends when ctx is
// done. Without a file there is nothing to watch and it returns an error.
func (fp *FileProvider) Watch(ctx context.Context, callback ConfigChangeCallback) error {
	if fp.watcher == nil {
		return fmt.Errorf("%w: no configuration file to watch", ErrConfigWatchError)
	}

	fp.watcher.OnConfigChange(callback)

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.started {
		return nil
	}
	if err := fp.watcher.Start(); err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	fp.started = true

	go func() {
		<-ctx.Done()
		fp.watcher.Stop()
	}()

	return nil
}

// Close closes the provider
func (fp *FileProvider) Close() error {
	if fp.watcher != nil {
		return fp.watcher.Stop()
	}
	return nil
}
