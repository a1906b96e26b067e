package callbacks

import (
	"sort"
	"sync"
	"time"
)

type Kind int

const (
	KindMapStart Kind = iota + 1
	KindMapBegin
	KindRoundStart
	KindRoundEnd
	KindCheckpoint
	KindStartLine
	KindFinish
	KindPlayerConnect
	KindPlayerDisconnect
	KindPlayerEnterSpectator
)

func (k Kind) String() string {
	switch k {
	case KindMapStart:
		return "map_start"
	case KindMapBegin:
		return "map_begin"
	case KindRoundStart:
		return "round_start"
	case KindRoundEnd:
		return "round_end"
	case KindCheckpoint:
		return "checkpoint"
	case KindStartLine:
		return "start_line"
	case KindFinish:
		return "finish"
	case KindPlayerConnect:
		return "player_connect"
	case KindPlayerDisconnect:
		return "player_disconnect"
	case KindPlayerEnterSpectator:
		return "player_enter_spectator"
	default:
		return "unknown"
	}
}

// Event is a normalized race session event. Only the fields relevant to the
// kind are set.
type Event struct {
	Kind     Kind
	Login    string
	Nickname string

	// checkpoint and finish
	RaceTime    time.Duration
	Checkpoint  int
	Checkpoints []time.Duration
	EndOfRace   bool

	// round start and end
	Count int
	Time  time.Duration

	MapUID string
}

type Handler func(Event)

// Subscription identifies a registered handler. It is returned by Listen and
// revoked with Dispatcher.Revoke.
type Subscription struct {
	id    uint64
	group string
	kind  Kind
}

func (s Subscription) Group() string { return s.group }
func (s Subscription) Kind() Kind     { return s.kind }

type listener struct {
	sub     Subscription
	handler Handler
}

// Dispatcher fans events out to handlers registered under named groups.
// Handlers run in registration order. A handler revoked while an event is
// being dispatched does not receive that event.
type Dispatcher struct {
	listeners map[uint64]listener
	nextID    uint64
	mu        sync.RWMutex
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		listeners: make(map[uint64]listener),
	}
}

func (d *Dispatcher) Listen(group string, kind Kind, handler Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	sub := Subscription{id: d.nextID, group: group, kind: kind}
	d.listeners[sub.id] = listener{sub: sub, handler: handler}
	return sub
}

func (d *Dispatcher) Revoke(sub Subscription) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.listeners[sub.id]; !ok {
		return false
	}
	delete(d.listeners, sub.id)
	return true
}

// RevokeGroup removes every handler of the group and returns how many were removed.
func (d *Dispatcher) RevokeGroup(group string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, l := range d.listeners {
		if l.sub.group == group {
			delete(d.listeners, id)
			removed++
		}
	}
	return removed
}

// Groups lists the groups that currently hold at least one handler.
func (d *Dispatcher) Groups() []string {
	d.mu.RLock()
	seen := make(map[string]bool)
	for _, l := range d.listeners {
		seen[l.sub.group] = true
	}
	d.mu.RUnlock()

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

func (d *Dispatcher) Count(group string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, l := range d.listeners {
		if l.sub.group == group {
			count++
		}
	}
	return count
}

func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	var targets []listener
	for _, l := range d.listeners {
		if l.sub.kind == ev.Kind {
			targets = append(targets, l)
		}
	}
	d.mu.RUnlock()

	sort.Slice(targets, func(i, j int) bool { return targets[i].sub.id < targets[j].sub.id })

	for _, l := range targets {
		if !d.active(l.sub.id) {
			continue
		}
		l.handler(ev)
	}
}

func (d *Dispatcher) active(id uint64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.listeners[id]
	return ok
}
