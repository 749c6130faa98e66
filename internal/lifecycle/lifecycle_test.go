package lifecycle

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/re-cinq/dagline/internal/events"
	"github.com/re-cinq/dagline/internal/model"
	"github.com/re-cinq/dagline/internal/store"
)

func TestCreateAndDeleteEmitPlanLifecycleEvents(t *testing.T) {
	st := store.New(t.TempDir())
	l := New(st, zerolog.Nop())

	var got []events.Event
	l.SetEmitter(func(ev events.Event) { got = append(got, ev) })

	spec := model.PlanSpec{
		Nodes: []model.NodeSpec{
			{ID: "a", Name: "a", Kind: model.NodeJob, Work: &model.PhaseSpec{Kind: model.KindShellCommand, Command: "true"}},
		},
	}

	plan, err := l.Create("/repo", spec, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := l.Delete(plan.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	var sawCreated, sawDeleted bool
	for _, ev := range got {
		if ev.PlanID != plan.ID {
			continue
		}
		switch ev.Type {
		case events.PlanCreated:
			sawCreated = true
		case events.PlanDeleted:
			sawDeleted = true
		}
	}
	if !sawCreated {
		t.Fatalf("expected a planCreated event, got %+v", got)
	}
	if !sawDeleted {
		t.Fatalf("expected a planDeleted event, got %+v", got)
	}
}
