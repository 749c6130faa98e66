package gitgw

import (
	"os"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// StashPush stashes the current dirty state (including untracked
// files) in the main repo, returning whether anything was actually
// stashed.
func (r *Repo) StashPush(message string) (stashed bool, err error) {
	out, err := r.run("stash", "push", "--include-untracked", "-m", message)
	if err != nil {
		return false, err
	}
	return !strings.Contains(out, "No local changes to save"), nil
}

// StashPop applies and drops the most recent stash entry.
func (r *Repo) StashPop() error {
	_, err := r.run("stash", "pop")
	return err
}

// StashDrop drops the most recent stash entry without applying it.
func (r *Repo) StashDrop() error {
	_, err := r.run("stash", "drop")
	return err
}

// DirtyFiles lists paths with uncommitted changes (tracked or
// untracked) in the main repo.
func (r *Repo) DirtyFiles() ([]string, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		files = append(files, strings.TrimSpace(line[3:]))
	}
	return files, nil
}

// IsOrchestratorOnlyGitignoreChange reports whether every dirty path in
// the repo matches the orchestrator's own .gitignore patterns — the
// heuristic behind the RI fast path's "discard vs. stash" branch (spec
// §4.4(f), Open Question b). It is deliberately conservative: any dirty
// file that the gitignore patterns don't match makes this false, so a
// real user change is never silently discarded.
//
// orchestratorPatterns are the .gitignore lines the orchestrator itself
// would write into a managed repo (e.g. its own worktree/state
// directories) — not the repo's full .gitignore, which may ignore
// things the user cares about losing track of.
func IsOrchestratorOnlyGitignoreChange(dirtyFiles []string, orchestratorPatterns []string) bool {
	if len(dirtyFiles) == 0 {
		return false
	}
	gi := ignore.CompileIgnoreLines(orchestratorPatterns...)
	if gi == nil {
		return false
	}
	for _, f := range dirtyFiles {
		if !gi.MatchesPath(f) {
			return false
		}
	}
	return true
}

// EnsureGitignoreEntries appends any of the given patterns not already
// present in the repo's .gitignore, creating the file if necessary.
func (r *Repo) EnsureGitignoreEntries(patterns []string) error {
	existing, _ := r.run("show", "HEAD:.gitignore")
	have := make(map[string]bool)
	for _, line := range strings.Split(existing, "\n") {
		have[strings.TrimSpace(line)] = true
	}

	var toAdd []string
	for _, p := range patterns {
		if !have[p] {
			toAdd = append(toAdd, p)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}

	content := existing
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(toAdd, "\n") + "\n"

	return os.WriteFile(r.Dir+"/.gitignore", []byte(content), 0644)
}
