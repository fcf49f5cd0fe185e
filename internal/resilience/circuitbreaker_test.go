package resilience

import (
	"errors"
	"testing"
	"time"
)

func tripBreaker(t *testing.T, cb *CircuitBreaker, failures int) {
	t.Helper()
	boom := errors.New("backend down")
	for i := 0; i < failures; i++ {
		if err := cb.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Execute %d error = %v, want the backend error", i, err)
		}
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	tripBreaker(t, cb, 2)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State after 2 failures = %v, want closed", got)
	}

	tripBreaker(t, cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State after 3 failures = %v, want open", got)
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute while open error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn ran while the breaker was open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})

	tripBreaker(t, cb, 2)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute error: %v", err)
	}

	// Two more failures must not trip: the run restarted at zero.
	tripBreaker(t, cb, 2)
	if got := cb.State(); got != StateClosed {
		t.Errorf("State = %v, want closed after the run was reset", got)
	}
}

func TestCircuitBreaker_ProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	tripBreaker(t, cb, 1)
	time.Sleep(20 * time.Millisecond)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State after reset timeout = %v, want half-open", got)
	}

	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe Execute error: %v", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("State after successful probe = %v, want closed", got)
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	tripBreaker(t, cb, 1)
	time.Sleep(20 * time.Millisecond)

	tripBreaker(t, cb, 1) // the probe itself fails
	if got := cb.State(); got != StateOpen {
		t.Errorf("State after failed probe = %v, want open", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute after failed probe error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})

	tripBreaker(t, cb, 1)
	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State after Reset = %v, want closed", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after Reset error: %v", err)
	}
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"})

	if got := cb.State(); got != StateClosed {
		t.Fatalf("initial State = %v, want closed", got)
	}

	// The default failure budget is five.
	tripBreaker(t, cb, 4)
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State after 4 failures = %v, want closed", got)
	}
	tripBreaker(t, cb, 1)
	if got := cb.State(); got != StateOpen {
		t.Errorf("State after 5 failures = %v, want open", got)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
