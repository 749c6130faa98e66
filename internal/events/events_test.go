package events

import (
	"testing"
	"time"
)

func TestBrokerDeliversPublishedEventsToSubscribers(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish(Event{Type: PlanCreated, PlanID: "plan-1"})

	select {
	case ev := <-sub:
		if ev.Type != PlanCreated || ev.PlanID != "plan-1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
		if ev.Timestamp.IsZero() {
			t.Fatalf("expected Publish to stamp a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBrokerStopsDeliveringAfterUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if _, ok := <-sub; ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestEmitFuncAdaptsBrokerToEmitter(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	var emit Emitter = b.EmitFunc()
	emit(Event{Type: NodeRetry, PlanID: "p", NodeID: "n"})

	select {
	case ev := <-sub:
		if ev.Type != NodeRetry || ev.NodeID != "n" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriberCountTracksLiveSubscriptions(t *testing.T) {
	b := NewBroker()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers initially")
	}
	sub := b.Subscribe()
	if b.SubscriberCount() != 1 {
		t.Fatalf("expected 1 subscriber after Subscribe")
	}
	b.Unsubscribe(sub)
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after Unsubscribe")
	}
}
