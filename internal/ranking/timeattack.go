package ranking

import (
	"sort"
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
)

// Entry is one racer on the time-attack board.
type Entry struct {
	Login       string
	Nickname    string
	BestScore   time.Duration
	Checkpoint  int
	Split       time.Duration
	Checkpoints []time.Duration
}

func (e Entry) Finished() bool {
	return e.BestScore != NoScore
}

// TimeAttack is the time-attack board. Entries are kept sorted.
type TimeAttack struct {
	Entries       []Entry
	LastQualified []time.Duration
	Percentage    int
}

// Apply returns the board after ev. The receiver is not modified.
func (t TimeAttack) Apply(ev callbacks.Event) TimeAttack {
	next := t.clone()

	switch ev.Kind {
	case callbacks.KindMapStart:
		next.Entries = nil
		next.LastQualified = nil

	case callbacks.KindFinish:
		next.finish(ev)

	case callbacks.KindCheckpoint:
		i := next.index(ev.Login)
		if i < 0 {
			return next
		}
		entry := &next.Entries[i]
		entry.Checkpoint = reached(ev.Checkpoint)
		entry.Split = next.split(ev.Checkpoint, ev.RaceTime)
		next.sort()

	case callbacks.KindStartLine:
		if next.index(ev.Login) >= 0 {
			return next
		}
		next.Entries = append(next.Entries, Entry{
			Login:     ev.Login,
			Nickname:  ev.Nickname,
			BestScore: NoScore,
		})
		next.sort()

	case callbacks.KindPlayerDisconnect, callbacks.KindPlayerEnterSpectator:
		i := next.index(ev.Login)
		if i < 0 {
			return next
		}
		if !next.Entries[i].Finished() {
			next.Entries = append(next.Entries[:i], next.Entries[i+1:]...)
			return next
		}
		next.Entries[i].Checkpoint = CheckpointCamera
		next.Entries[i].Split = 0
		next.sort()
	}

	return next
}

func (t *TimeAttack) finish(ev callbacks.Event) {
	i := t.index(ev.Login)
	if i < 0 {
		t.Entries = append(t.Entries, Entry{
			Login:       ev.Login,
			Nickname:    ev.Nickname,
			BestScore:   ev.RaceTime,
			Checkpoint:  CheckpointFinished,
			Checkpoints: append([]time.Duration(nil), ev.Checkpoints...),
		})
	} else {
		entry := &t.Entries[i]
		entry.Checkpoint = CheckpointFinished
		entry.Split = 0
		if !entry.Finished() || ev.RaceTime < entry.BestScore {
			entry.BestScore = ev.RaceTime
			entry.Checkpoints = append([]time.Duration(nil), ev.Checkpoints...)
		}
		if ev.Nickname != "" {
			entry.Nickname = ev.Nickname
		}
	}

	t.sort()
	t.updateLastQualified()
}

// updateLastQualified snapshots the checkpoints of the last racer in a
// qualifying position. Finishers sort first, so that racer is Entries[q-1].
func (t *TimeAttack) updateLastQualified() {
	q := QualifiedCount(t.finishers(), t.Percentage)
	if q > 0 {
		t.LastQualified = append([]time.Duration(nil), t.Entries[q-1].Checkpoints...)
	} else {
		t.LastQualified = nil
	}
}

// WithPercentage returns the board under a new qualification percentage.
func (t TimeAttack) WithPercentage(pct int) TimeAttack {
	next := t.clone()
	next.Percentage = pct
	next.updateLastQualified()
	return next
}

// split is the difference to the last qualified racer at the checkpoint with
// raw index cp. Checkpoints the reference never reached yield zero.
func (t *TimeAttack) split(cp int, raceTime time.Duration) time.Duration {
	if cp < 0 || cp >= len(t.LastQualified) {
		return 0
	}
	return raceTime - t.LastQualified[cp]
}

func (t *TimeAttack) finishers() int {
	n := 0
	for _, e := range t.Entries {
		if e.Finished() {
			n++
		}
	}
	return n
}

// QualifiedCount is the number of finishers currently in a qualifying position.
func (t TimeAttack) QualifiedCount() int {
	return QualifiedCount(t.finishers(), t.Percentage)
}

func (t *TimeAttack) index(login string) int {
	for i := range t.Entries {
		if t.Entries[i].Login == login {
			return i
		}
	}
	return -1
}

func (t *TimeAttack) sort() {
	sort.SliceStable(t.Entries, func(i, j int) bool {
		return lessEntry(t.Entries[i], t.Entries[j])
	})
}

func lessEntry(a, b Entry) bool {
	if a.Finished() != b.Finished() {
		return a.Finished()
	}
	if a.BestScore != b.BestScore {
		return a.BestScore < b.BestScore
	}
	aIdle, bIdle := a.Checkpoint == 0, b.Checkpoint == 0
	if aIdle != bIdle {
		return !aIdle
	}
	if a.Split != b.Split {
		return a.Split < b.Split
	}
	return a.Login < b.Login
}

func (t TimeAttack) without(login string) (TimeAttack, bool) {
	next := t.clone()
	i := next.index(login)
	if i < 0 {
		return next, false
	}
	next.Entries = append(next.Entries[:i], next.Entries[i+1:]...)
	next.updateLastQualified()
	return next, true
}

func (t TimeAttack) clone() TimeAttack {
	out := TimeAttack{Percentage: t.Percentage}
	if t.Entries != nil {
		out.Entries = make([]Entry, len(t.Entries))
		for i, e := range t.Entries {
			e.Checkpoints = append([]time.Duration(nil), e.Checkpoints...)
			out.Entries[i] = e
		}
	}
	if t.LastQualified != nil {
		out.LastQualified = append([]time.Duration(nil), t.LastQualified...)
	}
	return out
}
