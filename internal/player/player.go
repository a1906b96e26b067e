package player

import (
	"sort"
	"sync"
	"time"
)

type Player struct {
	Login           string
	Nickname        string
	Spectator       bool
	SpectatorTarget string
	JoinedAt        time.Time
}

// Manager tracks the players currently on the race server.
type Manager struct {
	players       map[string]*Player
	maxSpectators int
	mu            sync.RWMutex
}

func NewManager(maxSpectators int) *Manager {
	return &Manager{
		players:       make(map[string]*Player),
		maxSpectators: maxSpectators,
	}
}

func (m *Manager) Add(p Player) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	if existing, ok := m.players[p.Login]; ok {
		p.JoinedAt = existing.JoinedAt
	}
	m.players[p.Login] = &p
}

func (m *Manager) Remove(login string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, login)
}

func (m *Manager) Get(login string) (Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[login]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Nickname returns the player's nickname, or the login when the player is unknown.
func (m *Manager) Nickname(login string) string {
	if p, ok := m.Get(login); ok && p.Nickname != "" {
		return p.Nickname
	}
	return login
}

// SetSpectator records a spectator transition and reports whether the player
// was a spectator before the update.
func (m *Manager) SetSpectator(login string, spectator bool, target string) (was bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.players[login]
	if !ok {
		return false, false
	}
	was = p.Spectator
	p.Spectator = spectator
	p.SpectatorTarget = target
	if !spectator {
		p.SpectatorTarget = ""
	}
	return was, true
}

// Online returns every player in join order.
func (m *Manager) Online() []Player {
	m.mu.RLock()
	players := make([]Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, *p)
	}
	m.mu.RUnlock()

	sort.Slice(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].Login < players[j].Login
	})
	return players
}

func (m *Manager) OnlineLogins() []string {
	players := m.Online()
	logins := make([]string, len(players))
	for i, p := range players {
		logins[i] = p.Login
	}
	return logins
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.players)
}

func (m *Manager) SpectatorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, p := range m.players {
		if p.Spectator {
			count++
		}
	}
	return count
}

func (m *Manager) MaxSpectators() int {
	return m.maxSpectators
}

// Clear drops every player, used when the relay connection is lost.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players = make(map[string]*Player)
}
