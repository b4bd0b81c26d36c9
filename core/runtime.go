package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/najoast/gproc/logging"
)

// Runtime owns a process table, a run queue drained by a fixed pool of
// workers, and a clock. Several runtimes can live in one program; they
// share nothing.
type Runtime struct {
	id     string
	opts   Options
	logger logging.Logger

	table *Table
	runq  *runQueue
	clock *Clock

	// linksMu orders link registration against process removal
	linksMu sync.Mutex
	linkers map[PID]map[PID]struct{}
	linkees map[PID]map[PID]struct{}

	gc        PID
	transport Transport

	idsMu sync.Mutex
	ids   map[string]uint64

	deadLetters atomic.Uint64
	shutdown    atomic.Bool

	group  *errgroup.Group
	cancel context.CancelFunc
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(rt *Runtime) {
		if n > 0 {
			rt.opts.Workers = n
		}
	}
}

// WithAddress sets the host and port stamped on spawned PIDs.
func WithAddress(host string, port uint16) Option {
	return func(rt *Runtime) {
		rt.opts.Host = host
		rt.opts.Port = port
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithTransport sets the collaborator that carries messages to PIDs of
// other runtimes.
func WithTransport(transport Transport) Option {
	return func(rt *Runtime) {
		rt.transport = transport
	}
}

// WithOptions applies a complete Options value.
func WithOptions(opts Options) Option {
	return func(rt *Runtime) {
		if opts.Workers > 0 {
			rt.opts.Workers = opts.Workers
		}
		rt.opts.Host = opts.Host
		rt.opts.Port = opts.Port
	}
}

// New creates a runtime and starts its workers and clock.
func New(options ...Option) *Runtime {
	rt := &Runtime{
		id:      uuid.NewString(),
		opts:    DefaultOptions(),
		logger:  logging.Discard,
		table:   NewTable(),
		runq:    newRunQueue(),
		linkers: make(map[PID]map[PID]struct{}),
		linkees: make(map[PID]map[PID]struct{}),
		ids:     make(map[string]uint64),
	}
	for _, opt := range options {
		opt(rt)
	}
	rt.clock = newClock(rt)

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	rt.group, ctx = errgroup.WithContext(ctx)

	for i := 0; i < rt.opts.Workers; i++ {
		rt.group.Go(rt.worker)
	}
	rt.group.Go(func() error {
		return rt.clock.run(ctx)
	})

	gc, err := rt.Spawn(&garbageCollector{}, WithID("__gc__"))
	if err != nil {
		// Only possible if the id is taken, which cannot happen on a fresh table.
		panic(err)
	}
	rt.gc = gc

	rt.logger.Debugf("runtime %s started with %d workers at %s:%d", rt.id, rt.opts.Workers, rt.opts.Host, rt.opts.Port)
	return rt
}

// ID returns the unique id of this runtime instance.
func (rt *Runtime) ID() string {
	return rt.id
}

// Clock returns the runtime's clock.
func (rt *Runtime) Clock() *Clock {
	return rt.clock
}

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() logging.Logger {
	return rt.logger
}

// GenerateID returns prefix(n) with n increasing per prefix.
func (rt *Runtime) GenerateID(prefix string) string {
	rt.idsMu.Lock()
	defer rt.idsMu.Unlock()

	rt.ids[prefix]++
	return fmt.Sprintf("%s(%d)", prefix, rt.ids[prefix])
}

// SpawnOption configures a spawn.
type SpawnOption func(*spawnOptions)

type spawnOptions struct {
	id    string
	owned bool
}

// WithID spawns the process under a fixed id instead of a generated one.
func WithID(id string) SpawnOption {
	return func(o *spawnOptions) {
		o.id = id
	}
}

// Owned hands the process to the runtime: once it exits the runtime drops
// every reference to it. Without Owned the caller keeps responsibility for
// the value and may use Wait to learn when it is no longer running.
func Owned() SpawnOption {
	return func(o *spawnOptions) {
		o.owned = true
	}
}

// Spawn registers p, assigns it a PID and queues its Initialize hook. It
// returns without waiting for the process to run.
func (rt *Runtime) Spawn(p Process, options ...SpawnOption) (PID, error) {
	if rt.shutdown.Load() {
		return PID{}, ErrShutdown
	}

	var opts spawnOptions
	for _, opt := range options {
		opt(&opts)
	}
	if opts.id == "" {
		opts.id = rt.GenerateID("process")
	}

	b := p.Base()
	if b.rt != nil {
		return PID{}, errors.Wrapf(ErrAlreadySpawned, "%s", b.pid)
	}

	b.rt = rt
	b.self = p
	b.pid = PID{ID: opts.id, Host: rt.opts.Host, Port: rt.opts.Port}
	b.owned = opts.owned
	b.exited = make(chan struct{})
	b.spawnedAt = rt.clock.Now()

	// Initialize is queued before the PID becomes reachable, so nothing
	// dispatched to it can run first
	initializer, initialize := p.(Initializer)
	if initialize {
		b.events = []Event{&DispatchEvent{run: func(Process) { initializer.Initialize() }}}
		b.state = ProcessStateRunnable
	}

	if !rt.table.register(b) {
		b.rt = nil
		b.self = nil
		b.events = nil
		b.state = ProcessStateIdle
		return PID{}, errors.Wrapf(ErrDuplicateID, "%s", opts.id)
	}

	if initialize {
		rt.runq.push(b)
	}

	if opts.owned {
		DispatchVoid(rt, rt.gc, func(gc *garbageCollector) {
			gc.manage(p)
		})
	}

	rt.logger.Debugf("spawned process %s", b.pid)
	return b.pid, nil
}

// Lookup returns the live process named pid.
func (rt *Runtime) Lookup(pid PID) (Process, bool) {
	b, ok := rt.table.lookup(pid)
	if !ok {
		return nil, false
	}
	return b.self, true
}

// Alive reports whether pid names a live process of this runtime.
func (rt *Runtime) Alive(pid PID) bool {
	_, ok := rt.table.lookup(pid)
	return ok
}

// Processes returns the PIDs of all live processes.
func (rt *Runtime) Processes() []PID {
	return rt.table.PIDs()
}

// isLocal reports whether pid belongs to this runtime's address.
func (rt *Runtime) isLocal(pid PID) bool {
	return pid.Host == "" || (pid.Host == rt.opts.Host && pid.Port == rt.opts.Port)
}

// deliver appends e to pid's mailbox, or at its front when front is set.
// Undeliverable events are dead letters.
func (rt *Runtime) deliver(pid PID, e Event, front bool) bool {
	if rt.isLocal(pid) {
		if b, ok := rt.table.lookup(pid); ok && b.enqueue(e, front) {
			return true
		}
	}
	rt.deadLetter(pid, e, "no such process")
	return false
}

// deadLetter records an undeliverable event and settles whatever waits on it.
func (rt *Runtime) deadLetter(pid PID, e Event, reason string) {
	rt.deadLetters.Inc()
	rt.logger.Debugf("dead letter: %s event for %s (%s)", e.Kind(), pid, reason)
	abandonEvent(e)
}

// Post delivers msg to msg.To, handing it to the transport when the
// receiver belongs to another runtime.
func (rt *Runtime) Post(msg *Message) {
	if !rt.isLocal(msg.To) {
		if rt.transport == nil {
			rt.deadLetter(msg.To, &MessageEvent{Message: msg}, "no transport")
			return
		}
		if err := rt.transport.Send(msg); err != nil {
			rt.logger.Warnf("failed to send message '%s' to %s: %v", msg.Name, msg.To, err)
			rt.deadLetter(msg.To, &MessageEvent{Message: msg}, "transport error")
		}
		return
	}
	rt.deliver(msg.To, &MessageEvent{Message: msg}, false)
}

// Stats returns a snapshot of the runtime.
func (rt *Runtime) Stats() RuntimeStats {
	runnable, running := rt.runq.counts()
	return RuntimeStats{
		ID:          rt.id,
		Host:        rt.opts.Host,
		Port:        rt.opts.Port,
		Workers:     rt.opts.Workers,
		Processes:   rt.table.Len(),
		Runnable:    runnable,
		Running:     running,
		Timers:      rt.clock.pending(),
		DeadLetters: rt.deadLetters.Load(),
		Paused:      rt.clock.Paused(),
	}
}

// Shutdown terminates every process, waits for them to exit and stops the
// workers. Processes still running when ctx ends are abandoned.
func (rt *Runtime) Shutdown(ctx context.Context) error {
	if !rt.shutdown.CompareAndSwap(false, true) {
		return nil
	}

	pids := rt.table.PIDs()
	for _, pid := range pids {
		rt.Terminate(pid, false)
	}

	var err error
	for _, pid := range pids {
		if err = rt.waitExit(ctx, pid); err != nil {
			rt.logger.Warnf("shutdown gave up waiting for %s: %v", pid, err)
			break
		}
	}

	rt.cancel()
	rt.runq.close()
	if gerr := rt.group.Wait(); gerr != nil && err == nil {
		err = gerr
	}

	rt.logger.Debugf("runtime %s stopped", rt.id)
	return err
}

// waitExit blocks until pid exits or ctx is done.
func (rt *Runtime) waitExit(ctx context.Context, pid PID) error {
	b, ok := rt.table.lookup(pid)
	if !ok {
		return nil
	}
	select {
	case <-b.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks the calling goroutine until pid exits or timeout elapses and
// reports whether pid is gone. A negative timeout waits indefinitely. It
// must not be called from a process handler.
func (rt *Runtime) Wait(pid PID, timeout time.Duration) bool {
	ctx := context.Background()
	if timeout >= 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return rt.waitExit(ctx, pid) == nil
}
