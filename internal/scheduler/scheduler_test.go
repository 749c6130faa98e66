package scheduler

import (
	"testing"

	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/state"
)

func readyPlan(nodes ...model.NodeSpec) (*model.Plan, *state.Machine) {
	p := &model.Plan{
		Spec:       model.PlanSpec{Nodes: nodes, MaxParallel: 4},
		NodeStates: make(map[string]*model.NodeExecutionState),
	}
	for _, n := range nodes {
		s := model.NewNodeExecutionState(n.ID)
		s.Status = model.StatusReady
		p.NodeStates[n.ID] = s
	}
	return p, state.New(p)
}

func TestSelectReturnsNoneWhenNothingReady(t *testing.T) {
	p := &model.Plan{
		Spec:       model.PlanSpec{Nodes: []model.NodeSpec{{ID: "a"}}, MaxParallel: 4},
		NodeStates: map[string]*model.NodeExecutionState{"a": model.NewNodeExecutionState("a")},
	}
	m := state.New(p)
	if got := Select(p, m, 0, 10, 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestSelectCapsAtPlanMaxParallel(t *testing.T) {
	p, m := readyPlan(
		model.NodeSpec{ID: "a", Name: "a"},
		model.NodeSpec{ID: "b", Name: "b"},
		model.NodeSpec{ID: "c", Name: "c"},
	)
	p.Spec.MaxParallel = 2

	got := Select(p, m, 0, 10, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 selected nodes, got %d (%v)", len(got), got)
	}
}

func TestSelectCapsAtGlobalMax(t *testing.T) {
	p, m := readyPlan(
		model.NodeSpec{ID: "a", Name: "a"},
		model.NodeSpec{ID: "b", Name: "b"},
	)
	p.Spec.MaxParallel = 4

	// Global budget already has 3/4 slots used by other plans.
	got := Select(p, m, 0, 4, 3)
	if len(got) != 1 {
		t.Fatalf("expected 1 selected node under a tight global budget, got %d (%v)", len(got), got)
	}
}

func TestSelectPrioritizesMoreDependents(t *testing.T) {
	bottleneck := model.NodeSpec{ID: "bottleneck", Name: "bottleneck"}
	leaf1 := model.NodeSpec{ID: "leaf1", Name: "leaf1", DependsOn: []string{"bottleneck"}}
	leaf2 := model.NodeSpec{ID: "leaf2", Name: "leaf2", DependsOn: []string{"bottleneck"}}
	solo := model.NodeSpec{ID: "solo", Name: "solo"}

	p, m := readyPlan(bottleneck, leaf1, leaf2, solo)
	p.Spec.MaxParallel = 1

	got := Select(p, m, 0, 10, 0)
	if len(got) != 1 || got[0] != "bottleneck" {
		t.Fatalf("expected bottleneck (2 dependents) to be prioritized first, got %v", got)
	}
}

func TestIsWorkPerforming(t *testing.T) {
	if !IsWorkPerforming(model.NodeSpec{Kind: model.NodeJob}) {
		t.Fatalf("job nodes should be work-performing")
	}
	if IsWorkPerforming(model.NodeSpec{Kind: model.NodeCoordination}) {
		t.Fatalf("coordination nodes should not be work-performing")
	}
}
