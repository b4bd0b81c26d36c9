package core

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Timer identifies a scheduled thunk.
type Timer struct {
	// ID is unique per runtime; the zero Timer names nothing
	ID uint64

	// When the thunk is due, in clock time
	When time.Time

	// Creator is the process the thunk dispatches to, if any
	Creator PID
}

// timer is a heap entry.
type timer struct {
	Timer
	thunk func()
	index int
}

// timerHeap orders timers by due time, then by creation.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].When.Equal(h[j].When) {
		return h[i].ID < h[j].ID
	}
	return h[i].When.Before(h[j].When)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Clock is the runtime's time source. It follows the wall clock until
// paused; while paused, time only moves through Advance and Update, which
// makes timer-driven code deterministic in tests.
type Clock struct {
	rt *Runtime

	mu      sync.Mutex
	paused  bool
	current time.Time
	timers  timerHeap
	byID    map[uint64]*timer

	// firing counts timers taken off the heap whose thunks are still running
	firing int

	nextID atomic.Uint64
	wake   chan struct{}
}

func newClock(rt *Runtime) *Clock {
	return &Clock{
		rt:   rt,
		byID: make(map[uint64]*timer),
		wake: make(chan struct{}, 1),
	}
}

// Now returns the current clock time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowLocked()
}

func (c *Clock) nowLocked() time.Time {
	if c.paused {
		return c.current
	}
	return time.Now()
}

// Pause freezes the clock at the current time.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused {
		return
	}
	c.current = time.Now()
	c.paused = true
	c.rt.logger.Debugf("clock paused at %s", c.current.Format(time.RFC3339Nano))
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Resume returns the clock to wall time.
func (c *Clock) Resume() {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.paused = false
	c.rt.logger.Debugf("clock resumed at %s", c.current.Format(time.RFC3339Nano))
	c.mu.Unlock()

	c.kick()
}

// Advance moves a paused clock forward by d. Timers that become due fire
// in due-time order, ties in creation order. It does nothing when the
// clock is running.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return
	}
	c.current = c.current.Add(d)
	c.rt.logger.Debugf("clock advanced by %s to %s", d, c.current.Format(time.RFC3339Nano))
	c.mu.Unlock()

	c.kick()
}

// Update moves a paused clock forward to t. Earlier times are ignored.
func (c *Clock) Update(t time.Time) {
	c.mu.Lock()
	if !c.paused || !c.current.Before(t) {
		c.mu.Unlock()
		return
	}
	c.current = t
	c.mu.Unlock()

	c.kick()
}

// Settle blocks until the runtime is quiescent: no process queued or
// running, no timer due and no timer thunk in flight. It is only defined
// while the clock is paused and panics otherwise.
func (c *Clock) Settle() {
	if !c.Paused() {
		panic("core: Clock.Settle called while the clock is running")
	}
	for !c.quiescent() {
		time.Sleep(time.Millisecond)
	}
}

func (c *Clock) quiescent() bool {
	q := c.rt.runq
	q.mu.Lock()
	defer q.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.paused {
		panic("core: clock resumed during Settle")
	}
	if len(q.queue) > 0 || q.running > 0 || c.firing > 0 {
		return false
	}
	if len(c.timers) > 0 && !c.timers[0].When.After(c.current) {
		return false
	}
	return true
}

// Timer schedules thunk to run once d has elapsed on this clock. Thunks
// run on the clock goroutine and must not block; they normally dispatch.
func (c *Clock) Timer(d time.Duration, thunk func()) Timer {
	return c.schedule(d, PID{}, thunk)
}

func (c *Clock) schedule(d time.Duration, creator PID, thunk func()) Timer {
	if d < 0 {
		d = 0
	}

	c.mu.Lock()
	t := &timer{
		Timer: Timer{
			ID:      c.nextID.Inc(),
			When:    c.nowLocked().Add(d),
			Creator: creator,
		},
		thunk: thunk,
	}
	heap.Push(&c.timers, t)
	c.byID[t.ID] = t
	first := c.timers[0] == t
	c.mu.Unlock()

	if first {
		c.kick()
	}
	return t.Timer
}

// Cancel removes a pending timer and reports whether it was removed. A
// timer that is already firing cannot be stopped.
func (c *Clock) Cancel(t Timer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byID[t.ID]
	if !ok {
		return false
	}
	heap.Remove(&c.timers, entry.index)
	delete(c.byID, t.ID)
	return true
}

func (c *Clock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *Clock) kick() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run fires due timers until ctx is done.
func (c *Clock) run(ctx context.Context) error {
	var wall *time.Timer
	defer func() {
		if wall != nil {
			wall.Stop()
		}
	}()

	for {
		due, wait := c.takeDue()
		if len(due) > 0 {
			c.fire(due)
			continue
		}

		var wallC <-chan time.Time
		if wait >= 0 {
			if wall == nil {
				wall = time.NewTimer(wait)
			} else {
				wall.Reset(wait)
			}
			wallC = wall.C
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
		case <-wallC:
		}

		if wall != nil && !wall.Stop() {
			select {
			case <-wall.C:
			default:
			}
		}
	}
}

// takeDue removes every due timer. It also returns how long to sleep until
// the next one on wall time, or -1 when only a kick can make progress.
func (c *Clock) takeDue() ([]*timer, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowLocked()
	var due []*timer
	for len(c.timers) > 0 && !c.timers[0].When.After(now) {
		t := heap.Pop(&c.timers).(*timer)
		delete(c.byID, t.ID)
		due = append(due, t)
	}
	c.firing += len(due)

	if len(due) > 0 || c.paused || len(c.timers) == 0 {
		return due, -1
	}
	return nil, c.timers[0].When.Sub(now)
}

func (c *Clock) fire(due []*timer) {
	defer func() {
		c.mu.Lock()
		c.firing -= len(due)
		c.mu.Unlock()
	}()

	for _, t := range due {
		c.runThunk(t)
	}
}

func (c *Clock) runThunk(t *timer) {
	defer func() {
		if r := recover(); r != nil {
			c.rt.logger.Errorf("timer %d panicked: %v", t.ID, r)
		}
	}()
	t.thunk()
}
