package capacity

import "testing"

func TestTryAcquireRespectsGlobalMax(t *testing.T) {
	c := New(2, nil, "")

	if !c.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if !c.TryAcquire() {
		t.Fatalf("expected second acquire to succeed")
	}
	if c.TryAcquire() {
		t.Fatalf("expected third acquire to fail once the global ceiling is reached")
	}

	c.Release()
	if !c.TryAcquire() {
		t.Fatalf("expected acquire to succeed again after a release")
	}
}

func TestGlobalRunningFallsBackToLocalWithoutRegistry(t *testing.T) {
	c := New(4, nil, "")
	if err := c.PublishLocal("plan-1", true, 3); err != nil {
		t.Fatalf("PublishLocal: %v", err)
	}
	if got := c.GlobalRunning(); got != 3 {
		t.Fatalf("expected local count 3, got %d", got)
	}
}
