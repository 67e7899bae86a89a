package circuitbreaker

import (
	"testing"
	"time"
)

func TestTripsOpenAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("test", 3, 1, time.Minute)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed below threshold, got %s", cb.GetState())
	}

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open at threshold, got %s", cb.GetState())
	}
	if cb.AllowRequest() {
		t.Fatal("open breaker must reject requests inside the timeout")
	}
}

func TestHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 2, 10*time.Millisecond)

	cb.RecordFailure()
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %s", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)
	if !cb.AllowRequest() {
		t.Fatal("expected probe request after timeout")
	}
	if cb.GetState() != StateHalfOpen {
		t.Fatalf("expected half_open after probe, got %s", cb.GetState())
	}

	cb.RecordSuccess()
	cb.RecordSuccess()
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after successes, got %s", cb.GetState())
	}
}

func TestStateChangeCallbackCarriesTransition(t *testing.T) {
	cb := NewCircuitBreaker("loan-cache", 1, 1, time.Minute)
	if cb.Name() != "loan-cache" {
		t.Fatalf("expected name loan-cache, got %s", cb.Name())
	}

	var gotFrom, gotTo State
	called := 0
	cb.SetStateChangeCallback(func(from, to State) {
		gotFrom, gotTo = from, to
		called++
	})

	cb.RecordFailure()
	if called != 1 || gotFrom != StateClosed || gotTo != StateOpen {
		t.Fatalf("expected closed->open callback, got %d calls %s->%s", called, gotFrom, gotTo)
	}
}

func TestStateString(t *testing.T) {
	if StateClosed.String() != "closed" || StateOpen.String() != "open" || StateHalfOpen.String() != "half_open" {
		t.Fatalf("unexpected state names: %s %s %s", StateClosed, StateOpen, StateHalfOpen)
	}
}
