package core

// Terminate asks pid to exit. The TerminateEvent goes to the back of the
// mailbox, or to the front when inject is set. Repeated calls and calls for
// processes that are already gone do nothing.
func (rt *Runtime) Terminate(pid PID, inject bool) {
	b, ok := rt.table.lookup(pid)
	if !ok {
		return
	}
	if !b.terminating.CompareAndSwap(false, true) {
		return
	}
	if !b.enqueue(&TerminateEvent{Inject: inject}, inject) {
		return
	}
	rt.logger.Debugf("terminating process %s (inject=%t)", pid, inject)
}

// kill puts a TerminateEvent at the front of b's mailbox even when a
// regular Terminate is already queued behind other events.
func (rt *Runtime) kill(b *ProcessBase) {
	b.terminating.Store(true)
	if b.enqueue(&TerminateEvent{Inject: true}, true) {
		rt.logger.Debugf("killing process %s", b.pid)
	}
}

// Link registers from's interest in the exit of to. When to exits, from
// receives an ExitedEvent. Linking to a process that is already gone
// delivers the ExitedEvent right away; a from that is gone links nothing.
func (rt *Runtime) Link(from, to PID) {
	rt.linksMu.Lock()
	if !rt.Alive(from) {
		rt.linksMu.Unlock()
		return
	}
	if !rt.Alive(to) {
		rt.linksMu.Unlock()
		rt.deliver(from, &ExitedEvent{PID: to}, false)
		return
	}

	if rt.linkers[to] == nil {
		rt.linkers[to] = make(map[PID]struct{})
	}
	rt.linkers[to][from] = struct{}{}

	if rt.linkees[from] == nil {
		rt.linkees[from] = make(map[PID]struct{})
	}
	rt.linkees[from][to] = struct{}{}
	rt.linksMu.Unlock()
}

// cleanup runs on the worker right after b handled its TerminateEvent.
// Events still queued are abandoned, b leaves the table, linked processes
// are told, and waiters are released.
func (rt *Runtime) cleanup(b *ProcessBase) {
	for _, e := range b.close() {
		if _, ok := e.(*TerminateEvent); ok {
			continue
		}
		rt.deadLetter(b.pid, e, "process terminated")
	}

	rt.linksMu.Lock()
	rt.table.remove(b.pid)

	linkers := rt.linkers[b.pid]
	delete(rt.linkers, b.pid)

	for to := range rt.linkees[b.pid] {
		if set := rt.linkers[to]; set != nil {
			delete(set, b.pid)
			if len(set) == 0 {
				delete(rt.linkers, to)
			}
		}
	}
	delete(rt.linkees, b.pid)

	for from := range linkers {
		if set := rt.linkees[from]; set != nil {
			delete(set, b.pid)
			if len(set) == 0 {
				delete(rt.linkees, from)
			}
		}
	}
	rt.linksMu.Unlock()

	for from := range linkers {
		rt.deliver(from, &ExitedEvent{PID: b.pid}, false)
	}

	close(b.exited)
	rt.logger.Debugf("process %s exited", b.pid)
}

// garbageCollector holds the runtime's reference to owned processes and
// drops it once they exit. By then their mailbox is closed and no worker
// is executing them.
type garbageCollector struct {
	ProcessBase
	managed map[PID]Process
}

func (gc *garbageCollector) manage(p Process) {
	if gc.managed == nil {
		gc.managed = make(map[PID]Process)
	}
	pid := p.Base().Self()
	gc.managed[pid] = p
	gc.Link(pid)
}

// Exited releases an owned process.
func (gc *garbageCollector) Exited(pid PID) {
	p, ok := gc.managed[pid]
	if !ok {
		return
	}
	delete(gc.managed, pid)
	p.Base().release()
}
