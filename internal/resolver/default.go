package resolver

import (
	"fmt"
	"os/exec"
	"strings"
)

// PreferHintResolver resolves every conflicted file by taking one side
// wholesale, per the configured PreferSide — the simplest strategy a
// deployment can wire in without an agent, used by the RI conflict path's
// "prefer theirs/ours hint" (spec §4.4(b)). It commits the resolution
// itself and reports failure (leaving the merge aborted) if Prefer is
// PreferNone, since there is nothing to decide automatically in that case.
type PreferHintResolver struct{}

func (PreferHintResolver) Resolve(req Request) Result {
	if req.Prefer == PreferNone {
		abortMerge(req.WorkDir)
		return Result{Success: false, Error: "no resolution hint configured and no agent resolver wired"}
	}

	checkoutFlag := "--ours"
	if req.Prefer == PreferTheirs {
		checkoutFlag = "--theirs"
	}

	for _, f := range req.ConflictFiles {
		if _, err := git(req.WorkDir, "checkout", checkoutFlag, "--", f); err != nil {
			abortMerge(req.WorkDir)
			return Result{Success: false, Error: fmt.Sprintf("checkout %s %s: %s", checkoutFlag, f, err)}
		}
		if _, err := git(req.WorkDir, "add", f); err != nil {
			abortMerge(req.WorkDir)
			return Result{Success: false, Error: fmt.Sprintf("staging %s: %s", f, err)}
		}
	}

	if _, err := git(req.WorkDir, "commit", "--no-verify", "-m",
		fmt.Sprintf("resolve conflicts for %s (%s): prefer %s", req.NodeName, req.PhaseLabel, req.Prefer)); err != nil {
		abortMerge(req.WorkDir)
		return Result{Success: false, Error: fmt.Sprintf("committing resolution: %s", err)}
	}

	return Result{
		Success: true,
		Metrics: Metrics{
			FilesResolved: len(req.ConflictFiles),
			Strategy:      "prefer-" + string(req.Prefer),
		},
	}
}

func git(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func abortMerge(dir string) {
	_, _ = git(dir, "merge", "--abort")
}
