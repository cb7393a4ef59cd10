package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimarySuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_PrimaryFailFallbackSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "primary" {
			return errBackend
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "secondary" {
		t.Fatalf("called = %q, want secondary", called)
	}
}

func TestFallbackGroup_AllFail(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("secondary", "secondary")

	err := fg.Execute(context.Background(), func(v string) error {
		return errBackend
	})
	if err == nil {
		t.Fatal("expected error when all providers fail")
	}
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SticksToLastSuccess(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 10},
	})
	fg.AddFallback("secondary", "secondary")

	// First call: primary fails, secondary succeeds.
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "primary" {
			return errBackend
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Second call: secondary should be tried first, primary never touched.
	var order []string
	err = fg.Execute(context.Background(), func(v string) error {
		order = append(order, v)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 1 || order[0] != "secondary" {
		t.Fatalf("order = %v, want [secondary]", order)
	}
}

func TestFallbackGroup_ReturnsToPrimaryWhenStickyFails(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 10},
	})
	fg.AddFallback("secondary", "secondary")

	// Make secondary the sticky entry.
	_ = fg.Execute(context.Background(), func(v string) error {
		if v == "primary" {
			return errBackend
		}
		return nil
	})

	// Secondary now fails; the group must fall back to the primary.
	var called string
	err := fg.Execute(context.Background(), func(v string) error {
		if v == "secondary" {
			return errBackend
		}
		called = v
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "primary" {
		t.Fatalf("called = %q, want primary", called)
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  1,
			ResetTimeout: time.Hour,
		},
	})
	fg.AddFallback("secondary", "secondary")

	// One failing pass opens both breakers.
	_ = fg.Execute(context.Background(), func(v string) error {
		return errBackend
	})

	// With every breaker open the callback must not run at all.
	var calls int
	err := fg.Execute(context.Background(), func(v string) error {
		calls++
		return nil
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if calls != 0 {
		t.Fatalf("callback ran %d times, want 0 (all circuits open)", calls)
	}
}

func TestExecuteWithResult_Success(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-ten" {
		t.Fatalf("result = %q, want from-ten", result)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		if v == 10 {
			return "", errBackend
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	_, err := ExecuteWithResult(context.Background(), fg, func(v int) (string, error) {
		return "", errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_PreferredSelection(t *testing.T) {
	fg := NewFallbackGroup("a", "alpha", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("beta", "b")
	fg.AddFallback("gamma", "c")

	names := fg.Names()
	if len(names) != 3 || names[0] != "alpha" || names[2] != "gamma" {
		t.Fatalf("Names() = %v", names)
	}
	if fg.Preferred() != 0 {
		t.Fatalf("Preferred() = %d, want 0", fg.Preferred())
	}

	if err := fg.SetPreferred(2); err != nil {
		t.Fatalf("SetPreferred(2) = %v", err)
	}
	var called string
	if err := fg.Execute(context.Background(), func(v string) error {
		called = v
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called != "c" {
		t.Fatalf("called = %q, want the preferred entry", called)
	}

	if err := fg.SetPreferred(5); err == nil {
		t.Fatal("SetPreferred(5) accepted an out-of-range index")
	}
}
