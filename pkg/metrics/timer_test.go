package metrics

import (
	"testing"
	"time"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	if timer == nil {
		t.Fatal("NewTimer() returned nil")
	}
	if timer.start.IsZero() {
		t.Error("NewTimer() start time is zero")
	}
}

func TestTimerDuration_TracksElapsedTime(t *testing.T) {
	timer := NewTimer()
	sleepDuration := 50 * time.Millisecond
	time.Sleep(sleepDuration)

	duration := timer.Duration()
	if duration < sleepDuration {
		t.Errorf("Timer.Duration() = %v, want >= %v", duration, sleepDuration)
	}
	if duration > 2*sleepDuration {
		t.Errorf("Timer.Duration() = %v, want < %v", duration, 2*sleepDuration)
	}
}

func TestTimerDuration_MultipleCallsMonotonicallyIncrease(t *testing.T) {
	timer := NewTimer()

	var last time.Duration
	for i := 0; i < 3; i++ {
		time.Sleep(10 * time.Millisecond)
		d := timer.Duration()
		if d <= last {
			t.Errorf("Duration should increase across calls: iteration %d, last=%v, current=%v", i, last, d)
		}
		last = d
	}
}

// TestTimerObserveDurationVec_RecordsAgainstDBNotifyDuration exercises
// the Timer against one of the agent's own histogram vectors (shard
// notify latency) rather than an ad-hoc test histogram, the way
// pkg/db/shard.go's notify path uses it.
func TestTimerObserveDurationVec_RecordsAgainstDBNotifyDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	timer.ObserveDurationVec(DBNotifyDuration, "timer-test-table", "ADD")

	observer, err := DBNotifyDuration.GetMetricWithLabelValues("timer-test-table", "ADD")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if observer == nil {
		t.Fatal("expected a non-nil observer after recording a duration")
	}
}

// TestTimerObserveDuration_RecordsAgainstFlowPassDuration does the same
// for a plain (non-vec) histogram, grounded on pkg/flow's aging-pass
// timing.
func TestTimerObserveDuration_RecordsAgainstFlowPassDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	// Must not panic; FlowPassDuration is a package-level singleton
	// shared with pkg/flow, so this only verifies Timer's observe path.
	timer.ObserveDuration(FlowPassDuration)

	if timer.Duration() == 0 {
		t.Error("Timer.ObserveDuration() recorded against a timer with zero elapsed duration")
	}
}
