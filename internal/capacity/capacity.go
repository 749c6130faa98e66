// Package capacity is the Capacity Coordinator (C9): enforces per-plan
// and global concurrent-job ceilings, with an optional cross-process
// registry so multiple orchestrator processes on the same host can
// share one global ceiling (spec §4.7). In single-process mode it
// mirrors the local count, using golang.org/x/sync/semaphore to bound
// global concurrency the way the teacher's pack mates bound worker
// pools, rather than a hand-rolled counter + mutex.
package capacity

import (
	"sync"

	"golang.org/x/sync/semaphore"
)

// Registry is the optional cross-process capacity backend (spec §4.7:
// "each pump publishes its local running count plus its active plan
// IDs; the coordinator returns a global sum across processes"). A nil
// Registry on Coordinator means single-process mode.
type Registry interface {
	Publish(processID string, runningCount int, activePlanIDs []string) error
	GlobalRunning() (int, error)
}

// Coordinator tracks local running counts and, through an optional
// Registry, a cross-process global count.
type Coordinator struct {
	globalMax int
	sem       *semaphore.Weighted

	registry  Registry
	processID string

	mu      sync.Mutex
	local   int
	active  map[string]bool // plan IDs with at least one running/scheduled node
}

// New creates a Coordinator with the given global ceiling. registry may
// be nil for single-process operation.
func New(globalMax int, registry Registry, processID string) *Coordinator {
	return &Coordinator{
		globalMax: globalMax,
		sem:       semaphore.NewWeighted(int64(globalMax)),
		registry:  registry,
		processID: processID,
		active:    make(map[string]bool),
	}
}

// TryAcquire reserves one global slot for a work-performing node,
// returning false immediately if none are available (never blocks —
// the pump must move on to the next tick rather than stall).
func (c *Coordinator) TryAcquire() bool {
	return c.sem.TryAcquire(1)
}

// Release frees one previously-acquired global slot.
func (c *Coordinator) Release() {
	c.sem.Release(1)
}

// PublishLocal records this process's local running count and active
// plan set, pushing it to the Registry if one is configured.
func (c *Coordinator) PublishLocal(planID string, running bool, localRunning int) error {
	c.mu.Lock()
	c.local = localRunning
	if running {
		c.active[planID] = true
	} else {
		delete(c.active, planID)
	}
	plans := make([]string, 0, len(c.active))
	for id := range c.active {
		plans = append(plans, id)
	}
	c.mu.Unlock()

	if c.registry == nil {
		return nil
	}
	return c.registry.Publish(c.processID, localRunning, plans)
}

// GlobalRunning returns the cross-process running count, or the local
// count if no Registry is configured.
func (c *Coordinator) GlobalRunning() int {
	if c.registry == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.local
	}
	n, err := c.registry.GlobalRunning()
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.local // degrade to local count rather than stall the pump
	}
	return n
}

// GlobalMax returns the configured global ceiling.
func (c *Coordinator) GlobalMax() int {
	return c.globalMax
}
