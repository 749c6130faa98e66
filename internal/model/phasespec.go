package model

// PhaseKind tags which variant a PhaseSpec carries. Never use a bare
// string for this — the executor switches on it to decide how to run
// the phase.
type PhaseKind string

const (
	KindShellCommand PhaseKind = "shell-command"
	KindSubprocess   PhaseKind = "subprocess"
	KindAgentTask    PhaseKind = "agent-task"
)

// PhaseSpec is a tagged variant describing one phase of a job node.
// Exactly the fields relevant to Kind are populated; the executor and
// JobExecutor never infer kind from which fields are set.
type PhaseSpec struct {
	Kind PhaseKind `json:"kind"`

	// KindShellCommand: run via the user's shell ("sh -c Command").
	Command string `json:"command,omitempty"`

	// KindSubprocess: exec directly, no shell.
	Program string   `json:"program,omitempty"`
	Args    []string `json:"args,omitempty"`

	// KindAgentTask: instructions handed to a coding agent. Long bodies
	// are split by the store into a sibling markdown file; Instructions
	// here is what's rehydrated on read.
	Instructions string `json:"instructions,omitempty"`
	AgentCommand string `json:"agentCommand,omitempty"`
	AgentArgs    []string `json:"agentArgs,omitempty"`

	Env map[string]string `json:"env,omitempty"`
}

// NodeKind distinguishes a work-performing job node from a pure
// coordination node (a fan-in/fan-out point with no phases of its own).
type NodeKind string

const (
	NodeJob          NodeKind = "job"
	NodeCoordination NodeKind = "coordination"
)

// NodeSpec is the static, user-authored description of one DAG vertex.
type NodeSpec struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kind     NodeKind `json:"kind"`
	DependsOn []string `json:"dependsOn"`

	Prechecks  *PhaseSpec `json:"prechecks,omitempty"`
	Work       *PhaseSpec `json:"work,omitempty"`
	Postchecks *PhaseSpec `json:"postchecks,omitempty"`

	AutoHeal        bool `json:"autoHeal"`
	ExpectsNoChanges bool `json:"expectsNoChanges"`
}
