package future

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
)

// Then returns a future holding fn applied to f's value. Failure and
// discard of f propagate unchanged; discarding the result discards f.
func Then[T, X any](f Future[T], fn func(T) X) Future[X] {
	return ThenFuture(f, func(v T) Future[X] {
		return Ready(fn(v))
	})
}

// ThenFuture chains fn, which itself returns a future, after f. The result
// settles as the future returned by fn settles.
func ThenFuture[T, X any](f Future[T], fn func(T) Future[X]) Future[X] {
	promise := NewPromise[X]()

	promise.Future().OnDiscard(func() {
		f.Discard()
	})

	f.OnAny(func(f Future[T]) {
		switch f.State() {
		case StateReady:
			v, _ := f.Result()
			promise.Associate(fn(v))
		case StateFailed:
			promise.Fail(f.Failure())
		case StateDiscarded:
			promise.Discard()
		}
	})

	return promise.Future()
}

// Recover returns a future that follows f when it becomes ready and
// follows fn(f) when f fails or is discarded.
func Recover[T any](f Future[T], fn func(Future[T]) Future[T]) Future[T] {
	promise := NewPromise[T]()

	promise.Future().OnDiscard(func() {
		f.Discard()
	})

	f.OnAny(func(f Future[T]) {
		if f.IsReady() {
			promise.Associate(f)
			return
		}
		promise.Associate(fn(f))
	})

	return promise.Future()
}

// Undiscardable returns a future that follows f but whose discard does not
// reach f.
func Undiscardable[T any](f Future[T]) Future[T] {
	promise := NewPromise[T]()
	f.OnAny(func(f Future[T]) {
		switch f.State() {
		case StateReady:
			v, _ := f.Result()
			promise.Set(v)
		case StateFailed:
			promise.Fail(f.Failure())
		case StateDiscarded:
			promise.Discard()
		}
	})
	return promise.Future()
}

// Collect resolves to the values of all futures, in input order, once every
// one is ready. It fails as soon as any input fails or is discarded.
// Discarding the result discards every input.
func Collect[T any](futures ...Future[T]) Future[[]T] {
	promise := NewPromise[[]T]()

	if len(futures) == 0 {
		promise.Set([]T{})
		return promise.Future()
	}

	promise.Future().OnDiscard(func() {
		for _, f := range futures {
			f.Discard()
		}
	})

	values := make([]T, len(futures))
	remaining := atomic.NewInt64(int64(len(futures)))

	for i, f := range futures {
		i := i
		f.OnAny(func(f Future[T]) {
			switch f.State() {
			case StateReady:
				values[i], _ = f.Result()
				if remaining.Dec() == 0 {
					promise.Set(values)
				}
			case StateFailed:
				promise.Fail(fmt.Errorf("collect failed: %w", f.Failure()))
			case StateDiscarded:
				promise.Fail(errors.New("collect failed: future discarded"))
			}
		})
	}

	return promise.Future()
}

// AwaitAll resolves to the input futures, in input order, once every one
// has left Pending, whatever its outcome.
func AwaitAll[T any](futures ...Future[T]) Future[[]Future[T]] {
	promise := NewPromise[[]Future[T]]()

	settled := make([]Future[T], len(futures))
	copy(settled, futures)

	if len(futures) == 0 {
		promise.Set(settled)
		return promise.Future()
	}

	promise.Future().OnDiscard(func() {
		for _, f := range futures {
			f.Discard()
		}
	})

	remaining := atomic.NewInt64(int64(len(futures)))
	for _, f := range futures {
		f.OnAny(func(Future[T]) {
			if remaining.Dec() == 0 {
				promise.Set(settled)
			}
		})
	}

	return promise.Future()
}

// Select resolves to whichever input leaves Pending first. An empty input
// fails. Discarding the result discards every input.
func Select[T any](futures ...Future[T]) Future[Future[T]] {
	promise := NewPromise[Future[T]]()

	if len(futures) == 0 {
		promise.Fail(errors.New("select requires at least one future"))
		return promise.Future()
	}

	promise.Future().OnDiscard(func() {
		for _, f := range futures {
			f.Discard()
		}
	})

	for _, f := range futures {
		f.OnAny(func(f Future[T]) {
			promise.Set(f)
		})
	}

	return promise.Future()
}
