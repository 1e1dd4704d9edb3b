package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterGrowth(t *testing.T) {
	s := ExponentialJitterStrategy{}

	// Zero jitter makes the result deterministic.
	d0 := s.Calculate(0, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	d1 := s.Calculate(1, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	d2 := s.Calculate(2, 100*time.Millisecond, 10*time.Second, 2.0, 0)

	if d0 != 100*time.Millisecond {
		t.Errorf("Expected 100ms for attempt 0, got %v", d0)
	}
	if d1 != 200*time.Millisecond {
		t.Errorf("Expected 200ms for attempt 1, got %v", d1)
	}
	if d2 != 400*time.Millisecond {
		t.Errorf("Expected 400ms for attempt 2, got %v", d2)
	}
}

func TestExponentialJitterCap(t *testing.T) {
	s := ExponentialJitterStrategy{}

	d := s.Calculate(20, 100*time.Millisecond, time.Second, 2.0, 0.5)
	if d > time.Second {
		t.Errorf("Expected cap at 1s, got %v", d)
	}
}

func TestExponentialJitterBounds(t *testing.T) {
	s := ExponentialJitterStrategy{}

	for i := 0; i < 100; i++ {
		d := s.Calculate(1, 100*time.Millisecond, 10*time.Second, 2.0, 0.1)
		if d < 200*time.Millisecond {
			t.Fatalf("Expected at least the base delay, got %v", d)
		}
		if d > 220*time.Millisecond {
			t.Fatalf("Expected at most base + 10%% jitter, got %v", d)
		}
	}
}

func TestExponentialJitterOverflowGuard(t *testing.T) {
	s := ExponentialJitterStrategy{}

	d := s.Calculate(1000, 100*time.Millisecond, 30*time.Second, 2.0, 0)
	if d != 30*time.Second {
		t.Errorf("Expected huge attempts to clamp to max, got %v", d)
	}
}

func TestLinearJitterGrowth(t *testing.T) {
	s := LinearJitterStrategy{}

	d0 := s.Calculate(0, 100*time.Millisecond, 10*time.Second, 0, 0)
	d2 := s.Calculate(2, 100*time.Millisecond, 10*time.Second, 0, 0)

	if d0 != 100*time.Millisecond {
		t.Errorf("Expected 100ms for attempt 0, got %v", d0)
	}
	if d2 != 300*time.Millisecond {
		t.Errorf("Expected 300ms for attempt 2, got %v", d2)
	}
}

func TestReconnectBounds(t *testing.T) {
	base := time.Second

	for attempt := 1; attempt <= 5; attempt++ {
		raw := time.Duration(float64(base) * Pow(2.0, attempt-1))
		for i := 0; i < 50; i++ {
			d := Reconnect(attempt, base)
			if d < raw/2 {
				t.Fatalf("Attempt %d: expected at least %v, got %v", attempt, raw/2, d)
			}
			if d > raw {
				t.Fatalf("Attempt %d: expected at most %v, got %v", attempt, raw, d)
			}
		}
	}
}

func TestReconnectClampsAttempt(t *testing.T) {
	if d := Reconnect(0, time.Second); d > time.Second {
		t.Errorf("Expected attempt 0 to behave like attempt 1, got %v", d)
	}
	// Very large attempts must not overflow into a negative duration.
	if d := Reconnect(10_000, time.Millisecond); d < 0 {
		t.Errorf("Expected non-negative delay, got %v", d)
	}
}

func TestCalculatorDelegates(t *testing.T) {
	calc := GetExponentialJitterCalculator()

	d := calc.Calculate(1, 100*time.Millisecond, 10*time.Second, 2.0, 0)
	if d != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", d)
	}

	calc = GetLinearJitterCalculator()
	d = calc.Calculate(1, 100*time.Millisecond, 10*time.Second, 0, 0)
	if d != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", d)
	}
}

func TestClampJitter(t *testing.T) {
	if clampJitter(-0.5) != 0 {
		t.Error("Expected negative jitter to clamp to 0")
	}
	if clampJitter(1.5) != 1 {
		t.Error("Expected jitter above 1 to clamp to 1")
	}
	if clampJitter(0.3) != 0.3 {
		t.Error("Expected in-range jitter to pass through")
	}
}
