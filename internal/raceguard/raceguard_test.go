package raceguard

import (
	"testing"
	"time"
)

func TestShouldApply(t *testing.T) {
	now := time.Unix(1700000000, 0)
	timeout := 20 * time.Second

	tests := []struct {
		name        string
		origVersion uint64
		curVersion  uint64
		origKey     string
		curKey      string
		startedAt   time.Time
		expected    bool
	}{
		{"all checks hold", 1, 1, "A", "A", now.Add(-100 * time.Millisecond), true},
		{"intervening update", 1, 2, "A", "A", now.Add(-100 * time.Millisecond), false},
		{"session key changed", 1, 1, "A", "B", now.Add(-100 * time.Millisecond), false},
		{"session closed", 1, 1, "A", "", now.Add(-100 * time.Millisecond), false},
		{"elapsed beyond timeout", 1, 1, "A", "A", now.Add(-20001 * time.Millisecond), false},
		{"elapsed exactly timeout", 1, 1, "A", "A", now.Add(-timeout), true},
		{"empty original key never matches closed session", 1, 1, "", "", now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldApply(tt.origVersion, tt.curVersion, tt.origKey, tt.curKey, tt.startedAt, now, timeout)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestGuardReasons(t *testing.T) {
	now := time.Unix(1700000000, 0)
	g := Guard{Timeout: time.Second, Now: func() time.Time { return now }}

	tests := []struct {
		name     string
		verdict  Verdict
		expected Reason
	}{
		{"closed", g.Check(1, 1, "A", "", now), ReasonSessionClosed},
		{"changed", g.Check(1, 1, "A", "B", now), ReasonSessionChanged},
		{"superseded", g.Check(1, 2, "A", "A", now), ReasonSuperseded},
		{"expired", g.Check(1, 1, "A", "A", now.Add(-2*time.Second)), ReasonExpired},
		{"applied", g.Check(3, 3, "A", "A", now), ReasonNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.verdict.Reason != tt.expected {
				t.Errorf("Expected reason %q, got %q", tt.expected, tt.verdict.Reason)
			}
			if tt.verdict.Apply != (tt.expected == ReasonNone) {
				t.Errorf("Expected apply=%v, got %v", tt.expected == ReasonNone, tt.verdict.Apply)
			}
		})
	}
}

func TestGuardZeroValueUsesDefaultTimeout(t *testing.T) {
	var g Guard
	if !g.Check(1, 1, "A", "A", time.Now().Add(-DefaultTimeout/2)).Apply {
		t.Error("Expected a recent result to apply with the default timeout")
	}
	if g.Check(1, 1, "A", "A", time.Now().Add(-DefaultTimeout-time.Second)).Apply {
		t.Error("Expected a result older than the default timeout to be vetoed")
	}
}
