package traffic

import (
	"testing"
	"time"
)

func TestRequestCount_Empty(t *testing.T) {
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}

func TestRecordDenied_CountsTowardRequestsOnly(t *testing.T) {
	Reset()
	RecordDenied()
	RecordDenied()
	RecordSuccess()
	if n := DenialCount(time.Minute); n != 2 {
		t.Errorf("DenialCount() = %d, want 2", n)
	}
	if n := RequestCount(time.Minute); n != 3 {
		t.Errorf("RequestCount() = %d, want 3", n)
	}
	errors, total := ErrorRate(time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1) - denied excluded", errors, total)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordSuccess()
	RecordError()
	errors, total := ErrorRate(time.Minute)
	if errors != 1 || total != 3 {
		t.Errorf("ErrorRate() = (%d, %d), want (1, 3)", errors, total)
	}
}

func TestDegraded(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		threshold int
		want      bool
	}{
		{"no traffic", 0, 0, 50, false},
		{"below threshold", 3, 1, 50, false},
		{"at threshold", 2, 2, 50, true},
		{"all failing", 0, 4, 50, true},
		{"threshold disabled", 0, 4, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr Tracker
			for i := 0; i < tt.successes; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.errors; i++ {
				tr.RecordError()
			}
			if got := tr.Degraded(time.Minute, tt.threshold); got != tt.want {
				t.Errorf("Degraded() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowExcludesOldOutcomes(t *testing.T) {
	var tr Tracker
	tr.errorTimes = []time.Time{time.Now().Add(-2 * time.Minute)}
	tr.RecordSuccess()
	errors, total := tr.ErrorRate(time.Minute)
	if errors != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errors, total)
	}
}

func TestPrune_DropsPastRetention(t *testing.T) {
	var tr Tracker
	tr.successTimes = []time.Time{time.Now().Add(-10 * time.Minute)}
	tr.RecordSuccess()
	if len(tr.successTimes) != 1 {
		t.Errorf("len(successTimes) = %d, want 1 after prune", len(tr.successTimes))
	}
}

func TestReset(t *testing.T) {
	Reset()
	RecordSuccess()
	RecordError()
	RecordDenied()
	Reset()
	if n := RequestCount(time.Minute); n != 0 {
		t.Errorf("RequestCount() = %d, want 0", n)
	}
}
