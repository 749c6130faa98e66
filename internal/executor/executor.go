// Package executor implements the Node Executor (C7), the heart of the
// orchestrator (spec §4.4): drives one node end-to-end through forward
// integration, its phases, commit, auto-heal, and reverse integration,
// recording an AttemptRecord for every pass. Grounded on the shape of
// the teacher's processConcern in internal/engine/engine.go — worktree
// creation, agent invocation, commit, rebase — generalized from a
// fixed three-step concern pipeline into the DAG's variable-depth
// FI/work/RI pipeline spec §4.4 describes.
package executor

import (
	"github.com/rs/zerolog"

	"github.com/re-cinq/dagline/internal/gitgw"
	"github.com/re-cinq/dagline/internal/resolver"
	"github.com/re-cinq/dagline/internal/riserial"
	"github.com/re-cinq/dagline/internal/runner"
	"github.com/re-cinq/dagline/internal/store"
)

// Config bundles the executor's external collaborators and settings,
// the dependencies spec §9 assigns to the core (storagePath is owned by
// Store, not repeated here).
type Config struct {
	WorktreeRoot          string
	CleanUpSuccessfulWork bool
	MergePrefer           resolver.PreferSide
	PushOnSuccess         bool
}

// Executor runs nodes for a single plan's repository.
type Executor struct {
	store    *store.Store
	repo     *gitgw.Repo
	jobExec  runner.JobExecutor
	resolve  resolver.ConflictResolver
	ri       *riserial.Serializer
	cfg      Config
	log      zerolog.Logger
}

// New builds an Executor. repo is the Git Gateway bound to the plan's
// RepoPath; ri is process-wide and shared across every plan/executor
// (P4: at most one RI merge in flight globally).
func New(st *store.Store, repo *gitgw.Repo, jobExec runner.JobExecutor, resolve resolver.ConflictResolver, ri *riserial.Serializer, cfg Config, log zerolog.Logger) *Executor {
	return &Executor{
		store:   st,
		repo:    repo,
		jobExec: jobExec,
		resolve: resolve,
		ri:      ri,
		cfg:     cfg,
		log:     log,
	}
}

// short8 truncates a node ID to its first 8 characters for worktree
// directory naming (spec §4.4(b)): <worktreeRoot>/<short8(nodeId)>.
func short8(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func worktreePath(root, nodeID string) string {
	return root + "/" + short8(nodeID)
}
