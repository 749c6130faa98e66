// Package state is the State Machine (C5): owns node statuses for one
// plan, the fixed transition graph, readiness derivation, and plan
// status aggregation. Generalized from the teacher's internal/engine
// state.go, which tracked a single flat per-station status file; here
// the status lives on the DAG node and transitions propagate across
// dependency edges instead of being read back from disk per station.
package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/model"
)

// legalTransitions is the fixed graph from spec §4.2. Terminal states
// have no outgoing entry and are rejected by isValidTransition.
var legalTransitions = map[model.NodeStatus]map[model.NodeStatus]bool{
	model.StatusPending: {
		model.StatusReady:    true,
		model.StatusBlocked:  true,
		model.StatusCanceled: true,
	},
	model.StatusReady: {
		model.StatusScheduled: true,
		model.StatusBlocked:   true,
		model.StatusCanceled:  true,
	},
	model.StatusScheduled: {
		model.StatusRunning:  true,
		model.StatusFailed:   true,
		model.StatusCanceled: true,
	},
	model.StatusRunning: {
		model.StatusSucceeded: true,
		model.StatusFailed:    true,
		model.StatusCanceled:  true,
	},
}

// PlanStatusTerminal reports whether a plan status will never change
// again without external intervention (retry/resume) — used by the
// pump to skip plans that have nothing left to dispatch.
func PlanStatusTerminal(s model.PlanStatus) bool {
	switch s {
	case model.PlanSucceeded, model.PlanFailed, model.PlanPartial:
		return true
	}
	return false
}

// IsValidTransition reports whether from → to is one of the fixed edges
// in spec §4.2 (P1).
func IsValidTransition(from, to model.NodeStatus) bool {
	if from.IsTerminal() {
		return false
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// Machine owns one plan's node statuses and the derived dependent
// graph. Dependents are materialized once at construction (spec §9:
// "cache them on the node, do not walk back-references during
// execution").
type Machine struct {
	plan       *model.Plan
	dependents map[string][]string // nodeID -> IDs that depend on it
	dependsOn  map[string][]string // nodeID -> its dependencies, spec order preserved

	// mu serializes every mutating operation on this plan's node
	// statuses — spec §5: "State transitions for one plan are
	// serialized via the state machine — transitions are the only
	// writers of node status." Read-only derivations (AreDependenciesMet,
	// GetReadyNodes, ...) don't need it since they're only ever called
	// from a goroutine already holding a logical claim on the plan (the
	// pump tick, or a node executor between its own transitions).
	mu sync.Mutex

	// emit is the observable-events seam (spec §6). Nil by default so a
	// Machine built without SetEmitter behaves exactly as before.
	emit events.Emitter
}

// New builds a Machine over plan, deriving the reverse (dependents)
// edges from each node's DependsOn list.
func New(plan *model.Plan) *Machine {
	m := &Machine{
		plan:       plan,
		dependents: make(map[string][]string),
		dependsOn:  make(map[string][]string),
	}
	for _, n := range plan.Spec.Nodes {
		m.dependsOn[n.ID] = append([]string{}, n.DependsOn...)
		for _, dep := range n.DependsOn {
			m.dependents[dep] = append(m.dependents[dep], n.ID)
		}
	}
	return m
}

// SetEmitter wires an observable-events sink into this Machine. Every
// Transition call afterward publishes nodeTransition plus whichever of
// nodeStarted/nodeCompleted the new status implies.
func (m *Machine) SetEmitter(emit events.Emitter) {
	m.emit = emit
}

func (m *Machine) publish(ev events.Event) {
	if m.emit == nil {
		return
	}
	ev.PlanID = m.plan.ID
	m.emit(ev)
}

func (m *Machine) state(nodeID string) *model.NodeExecutionState {
	return m.plan.NodeStates[nodeID]
}

// AreDependenciesMet reports whether every dependency of nodeID is
// succeeded (I6).
func (m *Machine) AreDependenciesMet(nodeID string) bool {
	for _, dep := range m.dependsOn[nodeID] {
		ds := m.state(dep)
		if ds == nil || ds.Status != model.StatusSucceeded {
			return false
		}
	}
	return true
}

// GetReadyNodes returns node IDs currently in ready status, sorted
// deterministically by ID (the Scheduler re-sorts by its own
// dependents-descending/name-ascending key; this ordering just needs
// to be stable).
func (m *Machine) GetReadyNodes() []string {
	var out []string
	for id, s := range m.plan.NodeStates {
		if s.Status == model.StatusReady {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Dependents returns the cached list of nodes that depend on nodeID.
func (m *Machine) Dependents(nodeID string) []string {
	return m.dependents[nodeID]
}

// DependsOn returns nodeID's dependency list in spec order.
func (m *Machine) DependsOn(nodeID string) []string {
	return m.dependsOn[nodeID]
}

// GetStatusCounts returns a histogram of node statuses across the plan.
func (m *Machine) GetStatusCounts() map[model.NodeStatus]int {
	counts := make(map[model.NodeStatus]int)
	for _, s := range m.plan.NodeStates {
		counts[s.Status]++
	}
	return counts
}

// ComputePlanStatus derives the aggregate plan status from node
// statuses and the plan's paused flag (spec §4.2).
func (m *Machine) ComputePlanStatus() model.PlanStatus {
	if m.plan.Paused {
		return model.PlanPaused
	}
	counts := m.GetStatusCounts()
	if counts[model.StatusScheduled] > 0 || counts[model.StatusRunning] > 0 {
		return model.PlanRunning
	}

	allTerminal := true
	for _, s := range m.plan.NodeStates {
		if !s.Status.IsTerminal() {
			allTerminal = false
			break
		}
	}
	if allTerminal {
		if counts[model.StatusFailed] == 0 && counts[model.StatusBlocked] == 0 && counts[model.StatusCanceled] == 0 {
			return model.PlanSucceeded
		}
		if counts[model.StatusSucceeded] > 0 {
			return model.PlanPartial
		}
		return model.PlanFailed
	}
	return model.PlanPending
}

// Transition moves nodeID to newStatus, bumping both node and plan
// versions (I2), and on terminal outcomes propagates to dependents:
// failed/blocked/canceled marks still-pending dependents blocked;
// succeeded promotes dependents whose dependencies are now all met to
// ready.
func (m *Machine) Transition(nodeID string, newStatus model.NodeStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state(nodeID)
	if s == nil {
		return fmt.Errorf("transition: unknown node %q", nodeID)
	}
	if !IsValidTransition(s.Status, newStatus) {
		return fmt.Errorf("transition: %s -> %s is not legal for node %q (reason: %s)", s.Status, newStatus, nodeID, reason)
	}

	from := s.Status
	s.Status = newStatus
	s.Bump()
	m.plan.Bump()

	now := time.Now()
	switch newStatus {
	case model.StatusRunning:
		if s.StartedAt == nil {
			s.StartedAt = &now
		}
	case model.StatusSucceeded, model.StatusFailed, model.StatusBlocked, model.StatusCanceled:
		s.EndedAt = &now
	}

	m.publish(events.Event{
		Type:   events.NodeTransition,
		NodeID: nodeID,
		From:   string(from),
		To:     string(newStatus),
		Reason: reason,
	})
	switch newStatus {
	case model.StatusRunning:
		m.publish(events.Event{Type: events.NodeStarted, NodeID: nodeID})
	case model.StatusSucceeded, model.StatusFailed, model.StatusCanceled:
		m.publish(events.Event{Type: events.NodeCompleted, NodeID: nodeID, Success: newStatus == model.StatusSucceeded})
	}

	switch newStatus {
	case model.StatusFailed, model.StatusBlocked, model.StatusCanceled:
		m.propagateBlocked(nodeID)
	case model.StatusSucceeded:
		m.propagateReady(nodeID)
	}
	return nil
}

// propagateBlocked marks every still-pending dependent of nodeID as
// blocked, recursively, since a blocked dependent can never meet I6.
func (m *Machine) propagateBlocked(nodeID string) {
	for _, depID := range m.dependents[nodeID] {
		ds := m.state(depID)
		if ds == nil || ds.Status != model.StatusPending {
			continue
		}
		ds.Status = model.StatusBlocked
		ds.Bump()
		m.plan.Bump()
		now := time.Now()
		ds.EndedAt = &now
		m.propagateBlocked(depID)
	}
}

// propagateReady promotes every dependent of nodeID whose dependencies
// are now all succeeded from pending to ready.
func (m *Machine) propagateReady(nodeID string) {
	for _, depID := range m.dependents[nodeID] {
		ds := m.state(depID)
		if ds == nil || ds.Status != model.StatusPending {
			continue
		}
		if m.AreDependenciesMet(depID) {
			ds.Status = model.StatusReady
			ds.Bump()
			m.plan.Bump()
		}
	}
}

// CancelAll drives every non-terminal node in the plan to canceled.
func (m *Machine) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.plan.NodeStates {
		if s.Status.IsTerminal() {
			continue
		}
		// canceled is a legal edge from every non-terminal status; the
		// status is set directly rather than through Transition (which
		// would take m.mu again), so no nodeTransition/nodeCompleted
		// events are published and no blocked-propagation runs — every
		// non-terminal node is canceled by this same loop anyway.
		s.Status = model.StatusCanceled
		s.Bump()
		now := time.Now()
		s.EndedAt = &now
		m.plan.Bump()
		_ = id
	}
}

// ResetNodeToPending resets a node back to pending and clears EndedAt.
// No caller in this module uses it: Lifecycle.Retry sets the status
// itself, and the pump's per-tick sweep uses PromotePendingIfReady.
func (m *Machine) ResetNodeToPending(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(nodeID)
	if s == nil {
		return
	}
	s.Status = model.StatusPending
	s.EndedAt = nil
	s.Bump()
	m.plan.Bump()
}

// PromotePendingIfReady promotes a single pending node to ready if its
// dependencies are now met — the pump's per-tick safety sweep (spec
// §4.6 step 3) rather than propagateReady's edge-triggered version,
// for nodes that missed the edge-triggered promotion due to a crash.
func (m *Machine) PromotePendingIfReady(nodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.state(nodeID)
	if s == nil || s.Status != model.StatusPending {
		return false
	}
	if !m.AreDependenciesMet(nodeID) {
		return false
	}
	s.Status = model.StatusReady
	s.Bump()
	m.plan.Bump()
	return true
}

// GetBaseCommitsForNode returns the ordered list of CompletedCommits
// from nodeID's dependencies: the first is the worktree base, the rest
// are additional FI merge sources (spec §4.2).
func (m *Machine) GetBaseCommitsForNode(nodeID string) []string {
	var commits []string
	for _, dep := range m.dependsOn[nodeID] {
		ds := m.state(dep)
		if ds == nil {
			continue
		}
		commits = append(commits, ds.CompletedCommit)
	}
	return commits
}
