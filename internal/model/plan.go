package model

import "time"

// PlanSpec is the static, user-supplied description of a DAG of jobs:
// the ordered job specs, the base branch they build from, and the
// optional target branch their leaves eventually merge into.
type PlanSpec struct {
	Nodes         []NodeSpec `json:"nodes"`
	BaseBranch    string     `json:"baseBranch"`
	TargetBranch  string     `json:"targetBranch,omitempty"`
	MaxParallel   int        `json:"maxParallel"`
}

// Plan is one durable, resumable execution of a PlanSpec against a
// repository. Every mutation of Plan or any of its NodeStates bumps
// StateVersion (I2).
type Plan struct {
	ID   string   `json:"id"`
	Spec PlanSpec `json:"spec"`

	RepoPath string `json:"repoPath"`

	// ProducerToNodeID maps the user-given job name to the internal
	// node ID assigned when the plan was built.
	ProducerToNodeID map[string]string `json:"producerToNodeId"`

	Roots []string `json:"roots"`
	Leaves []string `json:"leaves"`

	NodeStates map[string]*NodeExecutionState `json:"nodeStates"`

	Paused bool `json:"paused"`

	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	StateVersion uint64 `json:"stateVersion"`
}

// NodesByID indexes Plan.Spec.Nodes for O(1) lookup. Not persisted;
// callers that need repeated lookups should build this once.
func (p *Plan) NodesByID() map[string]NodeSpec {
	out := make(map[string]NodeSpec, len(p.Spec.Nodes))
	for _, n := range p.Spec.Nodes {
		out[n.ID] = n
	}
	return out
}

// Bump increments the plan's StateVersion. NodeExecutionState.Bump does
// not call it; callers that mutate a node bump both counters.
func (p *Plan) Bump() {
	p.StateVersion++
}
