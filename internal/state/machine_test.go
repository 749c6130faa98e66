package state

import (
	"testing"

	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/model"
)

func newTestPlan(nodes ...model.NodeSpec) *model.Plan {
	p := &model.Plan{
		ID:         "plan-1",
		Spec:       model.PlanSpec{Nodes: nodes, MaxParallel: 4},
		NodeStates: make(map[string]*model.NodeExecutionState),
	}
	for _, n := range nodes {
		p.NodeStates[n.ID] = model.NewNodeExecutionState(n.ID)
	}
	return p
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	plan := newTestPlan(model.NodeSpec{ID: "a"})
	m := New(plan)

	if err := m.Transition("a", model.StatusRunning, "bad"); err == nil {
		t.Fatalf("expected pending -> running to be rejected")
	}
}

func TestTransitionEmitsNodeTransitionStartedAndCompleted(t *testing.T) {
	plan := newTestPlan(model.NodeSpec{ID: "a"})
	m := New(plan)

	var got []events.Event
	m.SetEmitter(func(ev events.Event) { got = append(got, ev) })

	_ = m.Transition("a", model.StatusReady, "")
	_ = m.Transition("a", model.StatusScheduled, "")
	_ = m.Transition("a", model.StatusRunning, "")
	_ = m.Transition("a", model.StatusSucceeded, "")

	var sawStarted, sawCompleted bool
	for _, ev := range got {
		if ev.PlanID != "plan-1" || ev.NodeID != "a" {
			t.Fatalf("event missing plan/node identity: %+v", ev)
		}
		if ev.Type == events.NodeStarted {
			sawStarted = true
		}
		if ev.Type == events.NodeCompleted {
			sawCompleted = true
			if !ev.Success {
				t.Fatalf("expected Success=true for a succeeded node, got %+v", ev)
			}
		}
	}
	if !sawStarted {
		t.Fatalf("expected a nodeStarted event when the node went running")
	}
	if !sawCompleted {
		t.Fatalf("expected a nodeCompleted event when the node succeeded")
	}

	wantTransitions := 4 // nodeTransition fires on every Transition call
	gotTransitions := 0
	for _, ev := range got {
		if ev.Type == events.NodeTransition {
			gotTransitions++
		}
	}
	if gotTransitions != wantTransitions {
		t.Fatalf("expected %d nodeTransition events, got %d", wantTransitions, gotTransitions)
	}
}

func TestTransitionPropagatesReadyOnSuccess(t *testing.T) {
	a := model.NodeSpec{ID: "a"}
	b := model.NodeSpec{ID: "b", DependsOn: []string{"a"}}
	plan := newTestPlan(a, b)
	m := New(plan)

	if err := m.Transition("a", model.StatusReady, ""); err != nil {
		t.Fatalf("a -> ready: %v", err)
	}
	if err := m.Transition("a", model.StatusScheduled, ""); err != nil {
		t.Fatalf("a -> scheduled: %v", err)
	}
	if err := m.Transition("a", model.StatusRunning, ""); err != nil {
		t.Fatalf("a -> running: %v", err)
	}
	if err := m.Transition("a", model.StatusSucceeded, ""); err != nil {
		t.Fatalf("a -> succeeded: %v", err)
	}

	if got := plan.NodeStates["b"].Status; got != model.StatusReady {
		t.Fatalf("expected b to become ready once a succeeds, got %s", got)
	}
}

func TestTransitionPropagatesBlockedOnFailure(t *testing.T) {
	a := model.NodeSpec{ID: "a"}
	b := model.NodeSpec{ID: "b", DependsOn: []string{"a"}}
	plan := newTestPlan(a, b)
	m := New(plan)

	_ = m.Transition("a", model.StatusReady, "")
	_ = m.Transition("a", model.StatusScheduled, "")
	_ = m.Transition("a", model.StatusRunning, "")
	if err := m.Transition("a", model.StatusFailed, "boom"); err != nil {
		t.Fatalf("a -> failed: %v", err)
	}

	if got := plan.NodeStates["b"].Status; got != model.StatusBlocked {
		t.Fatalf("expected b to be blocked once a fails, got %s", got)
	}
}

func TestComputePlanStatusPaused(t *testing.T) {
	plan := newTestPlan(model.NodeSpec{ID: "a"})
	plan.Paused = true
	m := New(plan)

	if got := m.ComputePlanStatus(); got != model.PlanPaused {
		t.Fatalf("expected paused plan status, got %s", got)
	}
}

func TestComputePlanStatusPartial(t *testing.T) {
	a := model.NodeSpec{ID: "a"}
	b := model.NodeSpec{ID: "b"}
	plan := newTestPlan(a, b)
	m := New(plan)

	_ = m.Transition("a", model.StatusReady, "")
	_ = m.Transition("a", model.StatusScheduled, "")
	_ = m.Transition("a", model.StatusRunning, "")
	_ = m.Transition("a", model.StatusSucceeded, "")

	_ = m.Transition("b", model.StatusReady, "")
	_ = m.Transition("b", model.StatusScheduled, "")
	_ = m.Transition("b", model.StatusRunning, "")
	_ = m.Transition("b", model.StatusFailed, "boom")

	if got := m.ComputePlanStatus(); got != model.PlanPartial {
		t.Fatalf("expected partial plan status, got %s", got)
	}
}

func TestAreDependenciesMet(t *testing.T) {
	a := model.NodeSpec{ID: "a"}
	b := model.NodeSpec{ID: "b", DependsOn: []string{"a"}}
	plan := newTestPlan(a, b)
	m := New(plan)

	if m.AreDependenciesMet("b") {
		t.Fatalf("b should not be ready before a succeeds")
	}
	_ = m.Transition("a", model.StatusReady, "")
	_ = m.Transition("a", model.StatusScheduled, "")
	_ = m.Transition("a", model.StatusRunning, "")
	_ = m.Transition("a", model.StatusSucceeded, "")

	if !m.AreDependenciesMet("b") {
		t.Fatalf("b should be ready once a succeeds")
	}
}
