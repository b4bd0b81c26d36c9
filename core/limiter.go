package core

import (
	"fmt"
	"time"

	"github.com/najoast/gproc/future"
)

// RateLimiter hands out permits at a fixed rate. Acquisitions are served
// in the order they were made.
type RateLimiter struct {
	rt  *Runtime
	pid PID
}

// limiterProcess spaces permits interval apart.
type limiterProcess struct {
	ProcessBase

	interval time.Duration
	next     time.Time
	promises []*future.Promise[struct{}]
}

func (p *limiterProcess) acquire() future.Future[struct{}] {
	if len(p.promises) > 0 {
		return p.enqueue()
	}

	now := p.Runtime().Clock().Now()
	if remaining := p.next.Sub(now); remaining > 0 {
		f := p.enqueue()
		Delay(p.Runtime(), remaining, p.Self(), (*limiterProcess).release)
		return f
	}

	p.next = now.Add(p.interval)
	return future.Ready(struct{}{})
}

func (p *limiterProcess) enqueue() future.Future[struct{}] {
	promise := future.NewPromise[struct{}]()
	p.promises = append(p.promises, promise)
	return promise.Future()
}

// release grants the permit to the oldest acquisition still wanted.
func (p *limiterProcess) release() {
	for len(p.promises) > 0 {
		promise := p.promises[0]
		p.promises[0] = nil
		p.promises = p.promises[1:]

		if promise.Set(struct{}{}) {
			p.next = p.Runtime().Clock().Now().Add(p.interval)
			break
		}
	}

	if len(p.promises) > 0 {
		Delay(p.Runtime(), p.next.Sub(p.Runtime().Clock().Now()), p.Self(), (*limiterProcess).release)
	}
}

func (p *limiterProcess) Finalize() {
	for _, promise := range p.promises {
		promise.Discard()
	}
	p.promises = nil
}

// NewRateLimiter allows permits acquisitions per d. It panics unless both
// are positive.
func NewRateLimiter(rt *Runtime, permits int, d time.Duration) (*RateLimiter, error) {
	if permits <= 0 {
		panic(fmt.Sprintf("core: rate limiter permits must be positive, got %d", permits))
	}
	if d <= 0 {
		panic(fmt.Sprintf("core: rate limiter duration must be positive, got %s", d))
	}
	return newRateLimiter(rt, d/time.Duration(permits))
}

// NewRateLimiterPerSecond allows permitsPerSecond acquisitions per second.
// It panics unless permitsPerSecond is positive.
func NewRateLimiterPerSecond(rt *Runtime, permitsPerSecond float64) (*RateLimiter, error) {
	if permitsPerSecond <= 0 {
		panic(fmt.Sprintf("core: rate limiter permits per second must be positive, got %g", permitsPerSecond))
	}
	return newRateLimiter(rt, time.Duration(float64(time.Second)/permitsPerSecond))
}

func newRateLimiter(rt *Runtime, interval time.Duration) (*RateLimiter, error) {
	pid, err := rt.Spawn(&limiterProcess{interval: interval}, Owned(), WithID(rt.GenerateID("__limiter__")))
	if err != nil {
		return nil, err
	}
	return &RateLimiter{rt: rt, pid: pid}, nil
}

// Acquire returns a future that becomes ready when a permit is granted.
// Discarding it gives up the place in line.
func (l *RateLimiter) Acquire() future.Future[struct{}] {
	return DispatchFuture(l.rt, l.pid, (*limiterProcess).acquire)
}

// Close stops the limiter. Acquisitions still waiting are discarded.
func (l *RateLimiter) Close() {
	l.rt.Terminate(l.pid, false)
	l.rt.Wait(l.pid, future.Forever)
}
