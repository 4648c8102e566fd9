package dispatch

import (
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	r := NewRetryStrategy(3)

	tests := []struct {
		retryCount int
		want       bool
	}{
		{0, true},
		{2, true},
		{3, false},
		{10, false},
	}
	for _, tt := range tests {
		if got := r.ShouldRetry(tt.retryCount); got != tt.want {
			t.Errorf("ShouldRetry(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestNextBackoffJitterBounds(t *testing.T) {
	r := NewRetryStrategy(5)

	for attempt := 0; attempt < len(r.Schedule); attempt++ {
		base := r.Schedule[attempt]
		for i := 0; i < 50; i++ {
			d := r.NextBackoff(attempt)
			if d < base/2 || d > base {
				t.Fatalf("attempt %d: backoff %s outside [%s, %s]", attempt, d, base/2, base)
			}
		}
	}
}

func TestNextBackoffClampsToSchedule(t *testing.T) {
	r := NewRetryStrategy(10)
	last := r.Schedule[len(r.Schedule)-1]

	d := r.NextBackoff(99)
	if d < last/2 || d > last {
		t.Fatalf("backoff %s outside [%s, %s] for out-of-range attempt", d, last/2, last)
	}
}

func TestScheduleIsIncreasing(t *testing.T) {
	r := NewRetryStrategy(5)
	var prev time.Duration
	for i, step := range r.Schedule {
		if step <= prev {
			t.Fatalf("schedule step %d (%s) not greater than previous (%s)", i, step, prev)
		}
		prev = step
	}
}
