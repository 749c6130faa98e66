// Package resolver provides the Conflict Resolver contract (C3, an
// external pluggable concern per spec §2) and a default
// prefer-hint implementation, generalized from the teacher's merge
// handling in internal/engine/engine.go (rebaseWorktree / commitChanges)
// which always resolved conflicts by deferring to the human/agent
// rather than any automatic strategy.
package resolver

// PreferSide is the configured "ours"/"theirs" hint a resolver may use
// to break a conflict without agent involvement (spec §4.4(b): "a
// configured prefer theirs/ours hint").
type PreferSide string

const (
	PreferOurs   PreferSide = "ours"
	PreferTheirs PreferSide = "theirs"
	PreferNone   PreferSide = ""
)

// Metrics reports what a resolver did. The Node Executor sums it into
// the attempt's metrics under the merge phase's key (spec §4.4(b));
// the node's execution state holds no copy of it.
type Metrics struct {
	FilesResolved   int
	Strategy        string
	AgentInvoked    bool
	DurationMs      int64
}

// Request describes one merge conflict needing resolution.
type Request struct {
	// WorkDir is the working tree (a worktree for FI, the main repo's
	// checkout for RI) left in a conflicted merge state.
	WorkDir string

	ConflictFiles []string
	Prefer        PreferSide

	// NodeID/NodeName/PhaseLabel identify the caller for logging and for
	// any agent task the resolver synthesizes.
	NodeID     string
	NodeName   string
	PhaseLabel string
}

// Result is what a resolver invocation returns to the Node Executor.
type Result struct {
	Success bool
	Metrics Metrics
	Error   string
}

// ConflictResolver resolves a merge already left in conflict state in
// req.WorkDir, staging and committing (or aborting) before returning.
// Implementations never leave the working tree in an unresolved
// conflicted state on return, success or failure.
type ConflictResolver interface {
	Resolve(req Request) Result
}
