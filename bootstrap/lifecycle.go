// Package bootstrap provides service lifecycle management
package bootstrap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/najoast/gproc/logging"
)

// DefaultLifecycleManager implements the LifecycleManager interface.
// Services with no dependency between them are stopped concurrently.
type DefaultLifecycleManager struct {
	services     map[string]Service
	dependencies map[string][]string

	// levels groups the started services by dependency depth; level 0
	// depends on nothing
	levels [][]string

	logger logging.Logger

	mutex    sync.RWMutex
	started  bool
	stopping bool

	eventChan chan LifecycleEvent
	listeners []func(LifecycleEvent)

	// timeout for each service operation
	timeout time.Duration
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(logger logging.Logger) *DefaultLifecycleManager {
	if logger == nil {
		logger = logging.Discard
	}
	return &DefaultLifecycleManager{
		services:     make(map[string]Service),
		dependencies: make(map[string][]string),
		logger:       logger,
		eventChan:    make(chan LifecycleEvent, 100),
		timeout:      30 * time.Second,
	}
}

// Register registers a service with the lifecycle manager
func (lm *DefaultLifecycleManager) Register(name string, service Service, deps ...string) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}
	if _, exists := lm.services[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.services[name] = service
	lm.dependencies[name] = deps

	lm.broadcastEvent(LifecycleEvent{
		Type:      "service.registered",
		Service:   name,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"dependencies": deps},
	})

	return nil
}

// Start starts all services in dependency order. If one fails, the
// services already started are stopped again.
func (lm *DefaultLifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("lifecycle manager already started")
	}

	levels, err := lm.calculateLevels()
	if err != nil {
		return &ApplicationError{Operation: "start", Err: err}
	}

	lm.broadcastEvent(LifecycleEvent{
		Type:      "lifecycle.starting",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"levels": levels},
	})

	lm.levels = make([][]string, 0, len(levels))
	for _, level := range levels {
		var started []string
		for _, name := range level {
			if err := lm.startService(ctx, name); err != nil {
				lm.levels = append(lm.levels, started)
				lm.stopStarted(context.Background())
				return &ApplicationError{Operation: "start", Service: name, Err: err}
			}
			started = append(started, name)
		}
		lm.levels = append(lm.levels, started)
	}

	lm.started = true

	lm.broadcastEvent(LifecycleEvent{
		Type:      "lifecycle.started",
		Timestamp: time.Now(),
	})

	return nil
}

func (lm *DefaultLifecycleManager) startService(ctx context.Context, name string) error {
	lm.broadcastEvent(LifecycleEvent{Type: "service.starting", Service: name, Timestamp: time.Now()})

	startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
	err := lm.services[name].Start(startCtx)
	cancel()

	if err != nil {
		lm.logger.Errorf("failed to start service %s: %v", name, err)
		lm.broadcastEvent(LifecycleEvent{Type: "service.start_failed", Service: name, Timestamp: time.Now(), Error: err})
		return err
	}

	lm.logger.Debugf("service %s started", name)
	lm.broadcastEvent(LifecycleEvent{Type: "service.started", Service: name, Timestamp: time.Now()})
	return nil
}

// Stop stops all services in reverse dependency order
func (lm *DefaultLifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	if lm.stopping {
		return fmt.Errorf("lifecycle manager already stopping")
	}
	lm.stopping = true

	lm.broadcastEvent(LifecycleEvent{
		Type:      "lifecycle.stopping",
		Timestamp: time.Now(),
	})

	err := lm.stopStarted(ctx)

	lm.started = false
	lm.stopping = false

	lm.broadcastEvent(LifecycleEvent{
		Type:      "lifecycle.stopped",
		Timestamp: time.Now(),
		Error:     err,
	})

	return err
}

// stopStarted stops the started services level by level from the top.
// Every service is stopped even if another one fails; the first error is
// returned.
func (lm *DefaultLifecycleManager) stopStarted(ctx context.Context) error {
	var firstErr error
	for i := len(lm.levels) - 1; i >= 0; i-- {
		var g errgroup.Group
		for _, name := range lm.levels[i] {
			name := name
			g.Go(func() error {
				return lm.stopService(ctx, name)
			})
		}
		if err := g.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	lm.levels = nil
	return firstErr
}

func (lm *DefaultLifecycleManager) stopService(ctx context.Context, name string) error {
	lm.broadcastEvent(LifecycleEvent{Type: "service.stopping", Service: name, Timestamp: time.Now()})

	stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
	err := lm.services[name].Stop(stopCtx)
	cancel()

	if err != nil {
		lm.logger.Warnf("failed to stop service %s: %v", name, err)
		lm.broadcastEvent(LifecycleEvent{Type: "service.stop_failed", Service: name, Timestamp: time.Now(), Error: err})
		return &ApplicationError{Operation: "stop", Service: name, Err: err}
	}

	lm.logger.Debugf("service %s stopped", name)
	lm.broadcastEvent(LifecycleEvent{Type: "service.stopped", Service: name, Timestamp: time.Now()})
	return nil
}

// Health returns the health status of all services
func (lm *DefaultLifecycleManager) Health(ctx context.Context) (map[string]HealthStatus, error) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	health := make(map[string]HealthStatus, len(lm.services))
	for name, service := range lm.services {
		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		status, err := service.Health(healthCtx)
		cancel()

		if err != nil {
			status = HealthStatus{State: HealthUnhealthy, Message: err.Error()}
		}
		if status.LastCheck.IsZero() {
			status.LastCheck = time.Now()
		}
		health[name] = status
	}

	return health, nil
}

// Services returns all registered service names
func (lm *DefaultLifecycleManager) Services() []string {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	names := make([]string, 0, len(lm.services))
	for name := range lm.services {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Events returns a channel for lifecycle events
func (lm *DefaultLifecycleManager) Events() <-chan LifecycleEvent {
	return lm.eventChan
}

// AddListener adds a lifecycle event listener
func (lm *DefaultLifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.listeners = append(lm.listeners, listener)
}

// calculateLevels orders services by dependency depth (Kahn's algorithm,
// one level per round). Names inside a level are sorted.
func (lm *DefaultLifecycleManager) calculateLevels() ([][]string, error) {
	inDegree := make(map[string]int, len(lm.services))
	dependents := make(map[string][]string, len(lm.services))

	for service := range lm.services {
		inDegree[service] = 0
	}
	for service, deps := range lm.dependencies {
		for _, dep := range deps {
			if _, exists := lm.services[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, service)
			}
			dependents[dep] = append(dependents[dep], service)
			inDegree[service]++
		}
	}

	var current []string
	for service, degree := range inDegree {
		if degree == 0 {
			current = append(current, service)
		}
	}

	var levels [][]string
	placed := 0
	for len(current) > 0 {
		sort.Strings(current)
		levels = append(levels, current)
		placed += len(current)

		var next []string
		for _, service := range current {
			for _, dependent := range dependents[service] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if placed != len(lm.services) {
		return nil, fmt.Errorf("circular dependency detected")
	}

	return levels, nil
}

// broadcastEvent sends a lifecycle event to the channel and to all listeners
func (lm *DefaultLifecycleManager) broadcastEvent(event LifecycleEvent) {
	select {
	case lm.eventChan <- event:
	default:
		// Channel is full, skip this event
	}

	for _, listener := range lm.listeners {
		go func(l func(LifecycleEvent)) {
			defer func() {
				if r := recover(); r != nil {
					lm.logger.Errorf("lifecycle listener panicked on %s: %v", event.Type, r)
				}
			}()
			l(event)
		}(listener)
	}
}

// SetTimeout sets the timeout for service operations
func (lm *DefaultLifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *DefaultLifecycleManager) IsStarted() bool {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	return lm.started
}

// GetService returns a registered service by name
func (lm *DefaultLifecycleManager) GetService(name string) (Service, bool) {
	lm.mutex.RLock()
	defer lm.mutex.RUnlock()

	service, exists := lm.services[name]
	return service, exists
}
