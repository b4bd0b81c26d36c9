package core

import (
	"github.com/najoast/gproc/future"
)

// Sequence runs asynchronous steps strictly one after another: a step
// starts only once the future of the step before it has settled.
type Sequence struct {
	rt  *Runtime
	pid PID
}

type sequenceProcess struct {
	ProcessBase

	// last settles when the most recently added step has finished
	last future.Future[struct{}]

	// waiting holds the steps that have not started yet
	waiting map[uint64]func()
	nextID  uint64
}

func (p *sequenceProcess) Initialize() {
	p.last = future.Ready(struct{}{})
	p.waiting = make(map[uint64]func())
}

func (p *sequenceProcess) Finalize() {
	for _, discard := range p.waiting {
		discard()
	}
	p.waiting = nil
}

// add chains start after the previous step. start returns the future
// that marks the end of its step.
func (p *sequenceProcess) add(start func() future.Future[struct{}], discard func()) {
	id := p.nextID
	p.nextID++
	p.waiting[id] = discard

	finished := future.NewPromise[struct{}]()
	previous := p.last
	p.last = finished.Future()

	run := DeferFunc(p.Runtime(), p.Self(), func() {
		delete(p.waiting, id)
		start().OnAny(func(future.Future[struct{}]) {
			finished.Set(struct{}{})
		})
	})
	previous.OnAny(func(future.Future[struct{}]) {
		run()
	})
}

// NewSequence creates an empty sequence.
func NewSequence(rt *Runtime) (*Sequence, error) {
	pid, err := rt.Spawn(&sequenceProcess{}, Owned(), WithID(rt.GenerateID("__sequence__")))
	if err != nil {
		return nil, err
	}
	return &Sequence{rt: rt, pid: pid}, nil
}

// Sequentially appends fn to s and returns a future of its result. fn runs
// inside the sequence process once every earlier step has settled.
// Discarding the result before fn starts skips it.
func Sequentially[T any](s *Sequence, fn func() future.Future[T]) future.Future[T] {
	return DispatchFuture(s.rt, s.pid, func(p *sequenceProcess) future.Future[T] {
		promise := future.NewPromise[T]()

		p.add(func() future.Future[struct{}] {
			if promise.Future().IsDiscarded() {
				return future.Ready(struct{}{})
			}
			promise.Associate(fn())

			done := future.NewPromise[struct{}]()
			promise.Future().OnAny(func(future.Future[T]) {
				done.Set(struct{}{})
			})
			return done.Future()
		}, func() {
			promise.Discard()
		})

		return promise.Future()
	})
}

// Close stops the sequence. Steps that have not started are discarded.
func (s *Sequence) Close() {
	s.rt.Terminate(s.pid, false)
	s.rt.Wait(s.pid, future.Forever)
}
