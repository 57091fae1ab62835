package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/processes/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.Constant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachAttempt(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{6, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)
	if got := e.Delay(50); got != 10*time.Second {
		t.Errorf("Delay(50) = %v, want %v", got, 10*time.Second)
	}
}

func TestJitter_StaysWithinBounds(t *testing.T) {
	j := backoff.Jitter{Base: backoff.NewExponential(100*time.Millisecond, time.Second)}
	for attempt := 1; attempt <= 6; attempt++ {
		base := j.Base.Delay(attempt)
		for range 100 {
			got := j.Delay(attempt)
			if got < base/2 || got > base {
				t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, got, base/2, base)
			}
		}
	}
}

func TestJitter_ZeroBase(t *testing.T) {
	j := backoff.Jitter{Base: backoff.Constant(0)}
	if got := j.Delay(3); got != 0 {
		t.Errorf("Delay = %v, want 0", got)
	}
}

func TestDefault(t *testing.T) {
	s := backoff.Default()
	if got := s.Delay(100); got > 5*time.Second {
		t.Errorf("Delay(100) = %v, want at most 5s", got)
	}
}

func TestSleep_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := backoff.Sleep(ctx, backoff.Constant(time.Minute), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep: got %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Sleep did not return promptly on cancellation")
	}
}

func TestSleep_Waits(t *testing.T) {
	start := time.Now()
	if err := backoff.Sleep(context.Background(), backoff.Constant(20*time.Millisecond), 1); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Sleep returned early")
	}
}
