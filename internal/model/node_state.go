package model

import "time"

// NodeExecutionState is the mutable, durable record of one node's
// progress through a plan. Every field here is what crash recovery,
// retry, and the worktree-eligibility sweep reason about — see spec §3.
type NodeExecutionState struct {
	NodeID string     `json:"nodeId"`
	Status NodeStatus `json:"status"`

	Attempt int `json:"attempt"` // current in-flight attempt number

	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	WorktreePath string `json:"worktreePath,omitempty"`

	// BaseCommit is captured once at worktree creation (I3); retries on
	// the same worktree never change it.
	BaseCommit string `json:"baseCommit,omitempty"`

	// CompletedCommit is the commit this node produced, once it has one.
	CompletedCommit string `json:"completedCommit,omitempty"`

	PhaseStatuses map[Phase]PhaseOutcome `json:"phaseStatuses,omitempty"`

	PID int `json:"pid,omitempty"`

	// ResumeFromPhase is the retry hint consumed by the Node Executor's
	// work-phase dispatch.
	ResumeFromPhase Phase `json:"resumeFromPhase,omitempty"`

	// ConsumedByDependents tracks, for a non-leaf node, which dependents
	// have completed FI from it (I5, §4.5).
	ConsumedByDependents map[string]bool `json:"consumedByDependents,omitempty"`

	// MergedToTarget is meaningful for leaves only: whether RI has
	// succeeded for this node's CompletedCommit.
	MergedToTarget bool `json:"mergedToTarget"`

	AttemptHistory []AttemptRecord `json:"attemptHistory,omitempty"`

	// AutoHealAttempted tracks, per phase, whether an auto-heal attempt
	// has already been made — auto-heal is one-shot per phase.
	AutoHealAttempted map[Phase]bool `json:"autoHealAttempted,omitempty"`

	AgentSessionID string `json:"agentSessionId,omitempty"`

	ForceFailed bool `json:"forceFailed,omitempty"`

	Version uint64 `json:"version"`
}

// NewNodeExecutionState returns a fresh, pending state for a node.
func NewNodeExecutionState(nodeID string) *NodeExecutionState {
	return &NodeExecutionState{
		NodeID:               nodeID,
		Status:               StatusPending,
		PhaseStatuses:        make(map[Phase]PhaseOutcome),
		ConsumedByDependents: make(map[string]bool),
		AutoHealAttempted:    make(map[Phase]bool),
	}
}

// Bump increments this node's version. Callers that also mutate the
// owning Plan must call Plan.Bump() too (I2) — the two counters are
// independent and both required.
func (s *NodeExecutionState) Bump() {
	s.Version++
}

// AttemptRecord is an immutable snapshot written when an attempt
// terminates (I4: appended even for the final successful attempt after
// earlier failures).
type AttemptRecord struct {
	Attempt int            `json:"attempt"`
	Trigger AttemptTrigger `json:"trigger"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   time.Time  `json:"endedAt"`

	Outcome      NodeStatus `json:"outcome"` // succeeded, failed, or canceled
	FailedPhase  Phase      `json:"failedPhase,omitempty"`
	Error        string     `json:"error,omitempty"`
	ExitCode     int        `json:"exitCode,omitempty"`

	// WorkUsed is the phase spec actually executed for this attempt —
	// may differ from the node's configured Work phase when auto-heal
	// temporarily swapped in a synthesized agent task.
	WorkUsed *PhaseSpec `json:"workUsed,omitempty"`

	// LogOffset/LogEndOffset bound the slice of the per-node execution
	// log that belongs to this attempt alone (I6/I7).
	LogOffset    int64 `json:"logOffset"`
	LogEndOffset int64 `json:"logEndOffset"`

	WorktreePath    string `json:"worktreePath,omitempty"`
	BaseCommit      string `json:"baseCommit,omitempty"`
	CompletedCommit string `json:"completedCommit,omitempty"`

	Metrics map[string]any `json:"metrics,omitempty"`
}
