package standings

import (
	"sort"
	"sync"
)

// Presenter renders views. Implementations decide how a view is drawn.
type Presenter interface {
	Present(viewer string, view View) error
	Countdown(title string) error
	ClearCountdown() error
	Clear() error
}

// Viewers tracks the widget state of each viewer.
type Viewers struct {
	states map[string]ViewerState
	mu     sync.RWMutex
}

func NewViewers() *Viewers {
	return &Viewers{
		states: make(map[string]ViewerState),
	}
}

// Get returns the viewer's state. Unknown viewers get the collapsed default.
func (v *Viewers) Get(login string) ViewerState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.states[login]
}

// Toggle flips the extended flag for the viewer's current situation and
// returns the new value.
func (v *Viewers) Toggle(login string, spectating bool) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.states[login]
	if spectating {
		state.DuringSpectate = !state.DuringSpectate
	} else {
		state.DuringPlay = !state.DuringPlay
	}
	v.states[login] = state
	return state.Extended(spectating)
}

func (v *Viewers) SetTarget(login, target string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := v.states[login]
	state.SpecTarget = target
	v.states[login] = state
}

// Forget drops the viewer and every spectate relation pointing at them.
func (v *Viewers) Forget(login string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.states, login)
	for viewer, state := range v.states {
		if state.SpecTarget == login {
			state.SpecTarget = ""
			v.states[viewer] = state
		}
	}
}

func (v *Viewers) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.states = make(map[string]ViewerState)
}

// Logins lists every viewer with stored state.
func (v *Viewers) Logins() []string {
	v.mu.RLock()
	logins := make([]string, 0, len(v.states))
	for login := range v.states {
		logins = append(logins, login)
	}
	v.mu.RUnlock()
	sort.Strings(logins)
	return logins
}
