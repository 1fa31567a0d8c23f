package raceguard

import "time"

// DefaultTimeout is the soft deadline after which a background result is stale
const DefaultTimeout = 20 * time.Second

// Reason names why a late result was vetoed
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonSessionClosed  Reason = "session_closed"
	ReasonSessionChanged Reason = "session_changed"
	ReasonSuperseded     Reason = "superseded"
	ReasonExpired        Reason = "expired"
)

// Verdict is the outcome of a RaceGuard check
type Verdict struct {
	Apply  bool
	Reason Reason
}

// Guard checks whether a background result may still be applied.
// The zero value uses DefaultTimeout and the wall clock.
type Guard struct {
	Timeout time.Duration
	Now     func() time.Time
}

// Check evaluates all conditions; any failing one vetoes application.
// Checks run in order: session liveness, session identity, version, deadline.
func (g Guard) Check(origVersion, curVersion uint64, origKey, curKey string, startedAt time.Time) Verdict {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	switch {
	case curKey == "":
		return Verdict{Reason: ReasonSessionClosed}
	case curKey != origKey:
		return Verdict{Reason: ReasonSessionChanged}
	case curVersion != origVersion:
		return Verdict{Reason: ReasonSuperseded}
	case now().Sub(startedAt) > timeout:
		return Verdict{Reason: ReasonExpired}
	}
	return Verdict{Apply: true}
}

// ShouldApply reports whether a result started at startedAt may be applied at now
func ShouldApply(origVersion, curVersion uint64, origKey, curKey string, startedAt, now time.Time, timeout time.Duration) bool {
	g := Guard{Timeout: timeout, Now: func() time.Time { return now }}
	return g.Check(origVersion, curVersion, origKey, curKey, startedAt).Apply
}
