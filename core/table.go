package core

import (
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Table maps process ids to live processes. It is the only authority on
// whether a PID is alive: entries are removed when a process terminates,
// after which lookups miss.
type Table struct {
	processes cmap.ConcurrentMap[string, *ProcessBase]
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{processes: cmap.New[*ProcessBase]()}
}

// register adds b under its id. It fails if the id is taken.
func (t *Table) register(b *ProcessBase) bool {
	return t.processes.SetIfAbsent(b.pid.ID, b)
}

// remove deletes the entry for pid.
func (t *Table) remove(pid PID) {
	t.processes.Remove(pid.ID)
}

// lookup returns the live process named pid. A PID without a host matches
// on id alone.
func (t *Table) lookup(pid PID) (*ProcessBase, bool) {
	b, ok := t.processes.Get(pid.ID)
	if !ok {
		return nil, false
	}
	if pid.Host != "" && b.pid != pid {
		return nil, false
	}
	return b, true
}

// Len returns the number of live processes.
func (t *Table) Len() int {
	return t.processes.Count()
}

// PIDs returns the PIDs of all live processes.
func (t *Table) PIDs() []PID {
	pids := make([]PID, 0, t.processes.Count())
	t.processes.IterCb(func(_ string, b *ProcessBase) {
		pids = append(pids, b.pid)
	})
	return pids
}
