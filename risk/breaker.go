package risk

import (
	"fmt"
	"time"
)

// State is the process-wide circuit breaker record. It is shared by every
// symbol and only changes when a position closes or a pause expires.
type State struct {
	ConsecutiveLosses int       `json:"consecutive_losses"`
	PausedUntil       time.Time `json:"paused_until,omitempty"` // zero when not paused
}

// Paused reports whether new entries are blocked at now.
func (s State) Paused(now time.Time) bool {
	return !s.PausedUntil.IsZero() && now.Before(s.PausedUntil)
}

// Resume clears an expired pause. Resuming is a fresh start, so the loss
// streak is reset too. The boolean reports whether a pause was cleared.
func (s State) Resume(now time.Time) (State, bool) {
	if s.PausedUntil.IsZero() || now.Before(s.PausedUntil) {
		return s, false
	}
	return State{}, true
}

// RecordClose folds one closed trade into the streak. A net loss extends the
// streak, anything else resets it. Reaching the threshold pauses entries
// until now + PauseDuration.
func (s State) RecordClose(pnlNet float64, now time.Time, p Params) State {
	if pnlNet < 0 {
		s.ConsecutiveLosses++
	} else {
		s.ConsecutiveLosses = 0
	}
	if p.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= p.MaxConsecutiveLosses {
		s.PausedUntil = now.Add(p.PauseDuration)
	}
	return s
}

// Violation explains why an entry was refused.
type Violation struct {
	Code string
	Msg  string
}

func (v Violation) Error() string { return v.Code + ": " + v.Msg }

// CheckEntry returns a PAUSED violation while the breaker is tripped.
func (s State) CheckEntry(now time.Time) *Violation {
	if !s.Paused(now) {
		return nil
	}
	return &Violation{
		Code: "PAUSED",
		Msg: fmt.Sprintf("%d consecutive losses; entries paused until %s",
			s.ConsecutiveLosses, s.PausedUntil.UTC().Format(time.RFC3339)),
	}
}
