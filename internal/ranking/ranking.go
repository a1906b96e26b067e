// Package ranking folds race events into the live leaderboards of a
// competition: the time-attack board and the knockout progress board.
package ranking

import (
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
)

const (
	// NoScore marks an entry without a finish.
	NoScore time.Duration = -1

	CheckpointFinished = -1
	CheckpointCamera   = -2
)

// reached is the checkpoint count after passing raw index cp. Negative
// indexes are clamped to the first checkpoint so they never land on a
// sentinel.
func reached(cp int) int {
	return max(cp, 0) + 1
}

type Mode int

const (
	ModeNone Mode = iota
	ModeTimeAttack
	ModeKnockout
)

func (m Mode) String() string {
	switch m {
	case ModeTimeAttack:
		return "time-attack"
	case ModeKnockout:
		return "knockout"
	default:
		return "none"
	}
}

// QualifiedCount returns ceil(finishers*pct/100) clamped to [0, finishers].
func QualifiedCount(finishers, pct int) int {
	if finishers <= 0 || pct <= 0 {
		return 0
	}
	q := (finishers*pct + 99) / 100
	return min(q, finishers)
}

// RequiredKOs is the number of players eliminated in a knockout round with
// the given number of qualified players. It is always at least one.
func RequiredKOs(qualified int) int {
	return max(qualified+4, 0)/10 + 1
}

// Engine holds the board of the active phase.
type Engine struct {
	mode Mode
	ta   TimeAttack
	ko   Knockout
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Mode() Mode {
	return e.mode
}

// Reset clears both boards and switches to mode.
func (e *Engine) Reset(mode Mode, percentage int) {
	e.mode = mode
	e.ta = TimeAttack{Percentage: percentage}
	e.ko = Knockout{}
}

// SetPercentage changes the qualification percentage and moves the split
// reference to the new last qualified racer.
func (e *Engine) SetPercentage(pct int) {
	e.ta = e.ta.WithPercentage(pct)
}

// SetContention updates the knockout bracket used by the leave-play policy.
func (e *Engine) SetContention(qualified []string, survivors int) {
	e.ko.Qualified = append([]string(nil), qualified...)
	e.ko.Survivors = survivors
}

// Apply folds ev into the active board.
func (e *Engine) Apply(ev callbacks.Event) {
	switch e.mode {
	case ModeTimeAttack:
		e.ta = e.ta.Apply(ev)
	case ModeKnockout:
		e.ko = e.ko.Apply(ev)
	}
}

// Remove drops login from the active board.
func (e *Engine) Remove(login string) bool {
	switch e.mode {
	case ModeTimeAttack:
		next, ok := e.ta.without(login)
		e.ta = next
		return ok
	case ModeKnockout:
		next, ok := e.ko.without(login)
		e.ko = next
		return ok
	}
	return false
}

// TimeAttack returns a copy of the time-attack board.
func (e *Engine) TimeAttack() TimeAttack {
	return e.ta.clone()
}

// Knockout returns a copy of the knockout board.
func (e *Engine) Knockout() Knockout {
	return e.ko.clone()
}

// Finishers lists the time-attack logins with a finish, best first.
func (e *Engine) Finishers() []string {
	var logins []string
	for _, entry := range e.ta.Entries {
		if entry.Finished() {
			logins = append(logins, entry.Login)
		}
	}
	return logins
}

// RoundFinishers lists knockout logins that finished this round, fastest first.
func (e *Engine) RoundFinishers() []Progress {
	var out []Progress
	for _, p := range e.ko.Entries {
		if p.Checkpoint == CheckpointFinished {
			out = append(out, p)
		}
	}
	return out
}
