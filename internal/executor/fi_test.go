package executor

import (
	"os"
	"os/exec"
	"testing"

	"github.com/re-cinq/dagline/internal/gitgw"
)

func TestHasSkipMarker(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"fix build", false},
		{"docs: typo [skip ci]", true},
		{"chore [CI SKIP] release bump", true},
		{"tweak worktree layout [skip dagline]", true},
		{"[DAGLINE SKIP] vendor refresh", true},
		{"", false},
	}
	for _, c := range cases {
		if got := hasSkipMarker(c.msg); got != c.want {
			t.Errorf("hasSkipMarker(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func testRepo(t *testing.T) *gitgw.Repo {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %s: %v", args, out, err)
		}
	}
	run("init")
	run("config", "user.email", "test@dagline.dev")
	run("config", "user.name", "dagline test")
	return gitgw.NewRepo(dir)
}

func commitFile(t *testing.T, repo *gitgw.Repo, name, content, message string) string {
	t.Helper()
	if err := os.WriteFile(repo.Dir+"/"+name, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	if err := repo.StageAll(repo.Dir); err != nil {
		t.Fatalf("staging: %v", err)
	}
	if err := repo.Commit(repo.Dir, message); err != nil {
		t.Fatalf("committing: %v", err)
	}
	head, err := repo.HeadCommitIn(repo.Dir)
	if err != nil {
		t.Fatalf("resolving head: %v", err)
	}
	return head
}

func TestUpstreamCommitsAllSkippedRequiresExistingBase(t *testing.T) {
	e := &Executor{repo: testRepo(t)}
	base := commitFile(t, e.repo, "seed.txt", "seed\n", "seed [skip ci]")

	if e.upstreamCommitsAllSkipped("", []string{base}) {
		t.Fatalf("expected false when base is empty (no prior worktree to diff against)")
	}
}

func TestUpstreamCommitsAllSkippedTrueWhenEveryNewCommitMarked(t *testing.T) {
	e := &Executor{repo: testRepo(t)}
	base := commitFile(t, e.repo, "seed.txt", "seed\n", "seed")
	tip := commitFile(t, e.repo, "a.txt", "a\n", "tweak formatting [skip ci]")

	if !e.upstreamCommitsAllSkipped(base, []string{tip}) {
		t.Fatalf("expected true: every commit after base carries a skip marker")
	}
}

func TestUpstreamCommitsAllSkippedFalseWhenOneCommitUnmarked(t *testing.T) {
	e := &Executor{repo: testRepo(t)}
	base := commitFile(t, e.repo, "seed.txt", "seed\n", "seed")
	_ = commitFile(t, e.repo, "a.txt", "a\n", "tweak formatting [skip ci]")
	tip := commitFile(t, e.repo, "b.txt", "b\n", "real feature work")

	if e.upstreamCommitsAllSkipped(base, []string{tip}) {
		t.Fatalf("expected false: the second commit has no skip marker")
	}
}
