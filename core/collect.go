package core

import (
	"time"

	"github.com/pkg/errors"

	"github.com/najoast/gproc/future"
)

// indexed pairs an input future with its position.
type indexed[T any] struct {
	index  int
	future future.Future[T]
}

// collectProcess gathers the values of a set of futures inside its own
// isolation, so completion order never races with the timeout.
type collectProcess[T any] struct {
	ProcessBase

	futures []future.Future[T]
	timeout time.Duration
	promise *future.Promise[[]T]

	values []T
	ready  int
	timer  Timer
}

func (c *collectProcess[T]) Initialize() {
	rt, self := c.Runtime(), c.Self()

	c.promise.Future().OnDiscard(func() {
		discardAll(c.futures)
		rt.Terminate(self, false)
	})

	if len(c.futures) == 0 {
		c.promise.Set([]T{})
		rt.Terminate(self, false)
		return
	}

	c.values = make([]T, len(c.futures))
	callback := DeferVoid(rt, self, (*collectProcess[T]).settled)
	for i, f := range c.futures {
		i := i
		f.OnAny(func(f future.Future[T]) {
			callback(indexed[T]{index: i, future: f})
		})
	}

	if c.timeout >= 0 {
		c.timer = Delay(rt, c.timeout, self, (*collectProcess[T]).expired)
	}
}

func (c *collectProcess[T]) settled(s indexed[T]) {
	if !c.promise.Future().IsPending() {
		return
	}

	switch s.future.State() {
	case future.StateReady:
		c.values[s.index], _ = s.future.Result()
		c.ready++
		if c.ready < len(c.futures) {
			return
		}
		c.promise.Set(c.values)
	case future.StateFailed:
		c.promise.Fail(errors.Wrap(s.future.Failure(), "collect failed"))
	case future.StateDiscarded:
		c.promise.Fail(errors.Wrap(future.ErrDiscarded, "collect failed"))
	}
	c.Runtime().Terminate(c.Self(), false)
}

func (c *collectProcess[T]) expired() {
	if !c.promise.Future().IsPending() {
		return
	}
	discardAll(c.futures)
	c.promise.Fail(errors.Wrapf(ErrTimeout, "collect timed out after %s", c.timeout))
	c.Runtime().Terminate(c.Self(), false)
}

func (c *collectProcess[T]) Finalize() {
	c.Runtime().Clock().Cancel(c.timer)
	if c.promise.Future().IsPending() {
		discardAll(c.futures)
		c.promise.Discard()
	}
}

// Collect resolves to the values of futs, in input order, once every one
// is ready. It fails as soon as one input fails or is discarded. When
// timeout elapses first the inputs still pending are discarded and the
// result fails with ErrTimeout. A negative timeout never expires.
func Collect[T any](rt *Runtime, futs []future.Future[T], timeout time.Duration) future.Future[[]T] {
	promise := future.NewPromise[[]T]()
	if _, err := rt.Spawn(&collectProcess[T]{
		futures: futs,
		timeout: timeout,
		promise: promise,
	}, Owned(), WithID(rt.GenerateID("__collect__"))); err != nil {
		return future.Failed[[]T](err)
	}
	return promise.Future()
}

// awaitProcess waits for a set of futures to leave Pending.
type awaitProcess[T any] struct {
	ProcessBase

	futures []future.Future[T]
	timeout time.Duration
	promise *future.Promise[[]future.Future[T]]

	done  int
	timer Timer
}

func (a *awaitProcess[T]) Initialize() {
	rt, self := a.Runtime(), a.Self()

	a.promise.Future().OnDiscard(func() {
		discardAll(a.futures)
		rt.Terminate(self, false)
	})

	if len(a.futures) == 0 {
		a.promise.Set([]future.Future[T]{})
		rt.Terminate(self, false)
		return
	}

	callback := DeferVoid(rt, self, (*awaitProcess[T]).settled)
	for _, f := range a.futures {
		f.OnAny(callback)
	}

	if a.timeout >= 0 {
		a.timer = Delay(rt, a.timeout, self, (*awaitProcess[T]).expired)
	}
}

func (a *awaitProcess[T]) settled(future.Future[T]) {
	if !a.promise.Future().IsPending() {
		return
	}
	a.done++
	if a.done < len(a.futures) {
		return
	}
	a.promise.Set(a.futures)
	a.Runtime().Terminate(a.Self(), false)
}

func (a *awaitProcess[T]) expired() {
	if !a.promise.Future().IsPending() {
		return
	}
	discardAll(a.futures)
	a.promise.Fail(errors.Wrapf(ErrTimeout, "await timed out after %s", a.timeout))
	a.Runtime().Terminate(a.Self(), false)
}

func (a *awaitProcess[T]) Finalize() {
	a.Runtime().Clock().Cancel(a.timer)
	if a.promise.Future().IsPending() {
		discardAll(a.futures)
		a.promise.Discard()
	}
}

// AwaitAll resolves to futs, in input order, once every one has left
// Pending, whatever its outcome. Timeout behaves as in Collect.
func AwaitAll[T any](rt *Runtime, futs []future.Future[T], timeout time.Duration) future.Future[[]future.Future[T]] {
	promise := future.NewPromise[[]future.Future[T]]()
	if _, err := rt.Spawn(&awaitProcess[T]{
		futures: futs,
		timeout: timeout,
		promise: promise,
	}, Owned(), WithID(rt.GenerateID("__await__"))); err != nil {
		return future.Failed[[]future.Future[T]](err)
	}
	return promise.Future()
}

func discardAll[T any](futs []future.Future[T]) {
	for _, f := range futs {
		f.Discard()
	}
}
