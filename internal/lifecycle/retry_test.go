package lifecycle

import (
	"testing"

	"github.com/re-cinq/dagline/internal/model"
)

func TestResumePhaseDefaultsToFailedPhase(t *testing.T) {
	l := &Lifecycle{}
	s := model.NewNodeExecutionState("n1")
	s.PhaseStatuses[model.PhaseWork] = model.PhaseFailed

	got := l.resumePhase(s, model.NodeSpec{ID: "n1"}, RetryOptions{})
	if got != model.PhaseWork {
		t.Fatalf("expected resume from work, got %s", got)
	}
}

func TestResumePhaseFallsBackToPrechecksWithNoRecordedFailure(t *testing.T) {
	l := &Lifecycle{}
	s := model.NewNodeExecutionState("n1")

	got := l.resumePhase(s, model.NodeSpec{ID: "n1"}, RetryOptions{})
	if got != model.PhasePrechecks {
		t.Fatalf("expected prechecks fallback, got %s", got)
	}
}

func TestResumePhaseNewWorkSpecRestartsFromWork(t *testing.T) {
	l := &Lifecycle{}
	s := model.NewNodeExecutionState("n1")
	s.PhaseStatuses[model.PhasePostchecks] = model.PhaseFailed

	opts := RetryOptions{NewWork: &model.PhaseSpec{Command: "echo hi"}}
	got := l.resumePhase(s, model.NodeSpec{ID: "n1"}, opts)
	if got != model.PhaseWork {
		t.Fatalf("a new work spec should restart from work regardless of which phase last failed, got %s", got)
	}
}

func TestResumePhaseClearWorktreeAlwaysRestartsFromPrechecks(t *testing.T) {
	l := &Lifecycle{}
	s := model.NewNodeExecutionState("n1")
	s.PhaseStatuses[model.PhasePostchecks] = model.PhaseFailed

	got := l.resumePhase(s, model.NodeSpec{ID: "n1"}, RetryOptions{ClearWorktree: true})
	if got != model.PhasePrechecks {
		t.Fatalf("clearWorktree should always restart from prechecks, got %s", got)
	}
}

func TestResumePhaseNewPostchecksOnlyKeepsPostchecksFailure(t *testing.T) {
	l := &Lifecycle{}
	s := model.NewNodeExecutionState("n1")
	s.PhaseStatuses[model.PhasePostchecks] = model.PhaseFailed

	opts := RetryOptions{NewPostchecks: &model.PhaseSpec{Command: "echo hi"}}
	got := l.resumePhase(s, model.NodeSpec{ID: "n1"}, opts)
	if got != model.PhasePostchecks {
		t.Fatalf("a new postchecks-only spec after a postchecks failure should restart from postchecks, got %s", got)
	}
}

func TestRefuseIfDependencyIntegrated(t *testing.T) {
	l := &Lifecycle{}
	plan := &model.Plan{
		Spec: model.PlanSpec{Nodes: []model.NodeSpec{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
		}},
		NodeStates: map[string]*model.NodeExecutionState{
			"a": {
				NodeID:               "a",
				CompletedCommit:      "abc123",
				ConsumedByDependents: map[string]bool{"b": true},
			},
			"b": model.NewNodeExecutionState("b"),
		},
	}

	if err := l.refuseIfDependencyIntegrated(plan, "b"); err == nil {
		t.Fatalf("expected clearWorktree to be refused once a dependency has been consumed")
	}
}

func TestRefuseIfDependencyIntegratedAllowsUnconsumedDependency(t *testing.T) {
	l := &Lifecycle{}
	plan := &model.Plan{
		Spec: model.PlanSpec{Nodes: []model.NodeSpec{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
		}},
		NodeStates: map[string]*model.NodeExecutionState{
			"a": {NodeID: "a", CompletedCommit: "abc123"},
			"b": model.NewNodeExecutionState("b"),
		},
	}

	if err := l.refuseIfDependencyIntegrated(plan, "b"); err != nil {
		t.Fatalf("expected clearWorktree to be allowed when the dependency hasn't been consumed yet: %v", err)
	}
}
