package attendance

import "time"

// GracePolicy decides whether a check-in is on time.
//
// A check-in made at most Grace(duration) after the session start is present,
// anything later is late. Window, when positive, is a fixed grace capped at the
// session duration; otherwise Fraction of the duration is used.
type GracePolicy struct {
	Fraction float64
	Window   time.Duration
}

// DefaultGracePolicy treats the first half of a session as on time.
func DefaultGracePolicy() GracePolicy {
	return GracePolicy{Fraction: 0.5}
}

// Grace returns the on-time window for a session of the given length.
func (g GracePolicy) Grace(duration time.Duration) time.Duration {
	if g.Window > 0 {
		if g.Window > duration {
			return duration
		}
		return g.Window
	}
	f := g.Fraction
	if f <= 0 || f > 1 {
		f = 0.5
	}
	return time.Duration(float64(duration) * f)
}

// Classify returns the record status for a check-in at t.
func (g GracePolicy) Classify(s Session, t time.Time) RecordStatus {
	if t.Sub(s.StartTime) <= g.Grace(s.Duration()) {
		return RecordPresent
	}
	return RecordLate
}
