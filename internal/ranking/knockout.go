package ranking

import (
	"slices"
	"sort"
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
)

// Progress is one racer's position in the current knockout round.
type Progress struct {
	Login      string
	Nickname   string
	Checkpoint int
	Time       time.Duration
}

func (p Progress) Finished() bool {
	return p.Checkpoint == CheckpointFinished
}

// Knockout is the progress board of a knockout round. Qualified and Survivors
// describe the bracket and decide which leaving players lose their entry.
type Knockout struct {
	Entries   []Progress
	Qualified []string
	Survivors int
}

func (k Knockout) Apply(ev callbacks.Event) Knockout {
	next := k.clone()

	switch ev.Kind {
	case callbacks.KindMapStart, callbacks.KindRoundStart:
		next.Entries = nil

	case callbacks.KindStartLine:
		if next.index(ev.Login) < 0 {
			next.Entries = append(next.Entries, Progress{Login: ev.Login, Nickname: ev.Nickname})
			next.sort()
		}

	case callbacks.KindCheckpoint:
		p := next.upsert(ev)
		p.Checkpoint = reached(ev.Checkpoint)
		p.Time = ev.RaceTime
		next.sort()

	case callbacks.KindFinish:
		p := next.upsert(ev)
		if ev.EndOfRace {
			p.Checkpoint = CheckpointFinished
		} else {
			p.Checkpoint = reached(ev.Checkpoint)
		}
		p.Time = ev.RaceTime
		next.sort()

	case callbacks.KindPlayerDisconnect, callbacks.KindPlayerEnterSpectator:
		i := next.index(ev.Login)
		if i < 0 {
			return next
		}
		if next.inContention(ev.Login) {
			return next
		}
		next.Entries = append(next.Entries[:i], next.Entries[i+1:]...)
	}

	return next
}

// inContention reports whether login currently holds a surviving position
// among the qualified racers on the board.
func (k *Knockout) inContention(login string) bool {
	pos := 0
	for _, p := range k.Entries {
		if !slices.Contains(k.Qualified, p.Login) {
			continue
		}
		if p.Login == login {
			return pos < k.Survivors
		}
		pos++
	}
	return false
}

func (k *Knockout) upsert(ev callbacks.Event) *Progress {
	i := k.index(ev.Login)
	if i < 0 {
		k.Entries = append(k.Entries, Progress{Login: ev.Login, Nickname: ev.Nickname})
		i = len(k.Entries) - 1
	}
	return &k.Entries[i]
}

func (k *Knockout) index(login string) int {
	for i := range k.Entries {
		if k.Entries[i].Login == login {
			return i
		}
	}
	return -1
}

func (k *Knockout) sort() {
	sort.SliceStable(k.Entries, func(i, j int) bool {
		return lessProgress(k.Entries[i], k.Entries[j])
	})
}

func lessProgress(a, b Progress) bool {
	if a.Finished() != b.Finished() {
		return a.Finished()
	}
	if a.Checkpoint != b.Checkpoint {
		return a.Checkpoint > b.Checkpoint
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Login < b.Login
}

func (k Knockout) without(login string) (Knockout, bool) {
	next := k.clone()
	i := next.index(login)
	if i < 0 {
		return next, false
	}
	next.Entries = append(next.Entries[:i], next.Entries[i+1:]...)
	return next, true
}

func (k Knockout) clone() Knockout {
	return Knockout{
		Entries:   slices.Clone(k.Entries),
		Qualified: slices.Clone(k.Qualified),
		Survivors: k.Survivors,
	}
}
