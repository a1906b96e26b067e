package mapban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/siohaza/nightcup/internal/session"
)

// cupSettings are applied when a match begins. The finish timeout follows
// once the maps are known.
var cupSettings = session.Settings{
	"S_AllowRespawn":      true,
	"S_NbOfPlayersMax":    4,
	"S_NbOfPlayersMin":    2,
	"S_NbOfWinners":       2,
	"S_PointsLimit":       70,
	"S_PointsRepartition": "10,6,4,3",
	"S_RoundsPerMap":      3,
	"S_WarmUpNb":          1,
}

type MatchConfig struct {
	Control      session.Control
	Chat         session.Chat
	Logger       *slog.Logger
	Script       string
	Maps         []Map
	RequiredMaps int
	ChatPrefix   string
}

// Match runs the ban phase of a cup match. Its methods are safe for
// concurrent use; session calls happen on the match goroutine.
type Match struct {
	cfg    MatchConfig
	queue  *Queue
	logger *slog.Logger

	banned chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func NewMatch(cfg MatchConfig) *Match {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Match{
		cfg:    cfg,
		queue:  NewQueue(cfg.Maps, cfg.RequiredMaps),
		logger: logger,
		banned: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Begin switches the session to the cup script and starts handing out ban
// turns to entrants in order.
func (m *Match) Begin(ctx context.Context, entrants []string) error {
	if err := m.cfg.Control.SetScript(ctx, m.cfg.Script); err != nil {
		return fmt.Errorf("set match script: %w", err)
	}
	if err := m.cfg.Control.RestartMap(ctx); err != nil {
		return fmt.Errorf("restart map: %w", err)
	}
	if err := m.cfg.Control.UpdateSettings(ctx, cupSettings.Clone()); err != nil {
		return fmt.Errorf("apply match settings: %w", err)
	}

	for _, login := range entrants {
		err := m.queue.Enqueue(login)
		if errors.Is(err, ErrBanningComplete) {
			break
		}
		if err != nil && !errors.Is(err, ErrDuplicateTurn) {
			return err
		}
	}
	m.queue.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.logger.Info("map ban started", "entrants", len(entrants), "maps", len(m.cfg.Maps), "required", m.cfg.RequiredMaps)
	go m.run(runCtx)
	return nil
}

func (m *Match) run(ctx context.Context) {
	defer close(m.done)

	for {
		login, err := m.queue.Next(ctx)
		if errors.Is(err, ErrBanningComplete) {
			m.finish(ctx)
			return
		}
		if err != nil {
			m.setErr(err)
			return
		}

		m.announceTurn(login)

		select {
		case <-ctx.Done():
			m.setErr(ctx.Err())
			return
		case <-m.banned:
		}
	}
}

func (m *Match) announceTurn(login string) {
	var b strings.Builder
	b.WriteString("Your turn to ban a map, use //ban <number>:")
	for i, mp := range m.queue.Pool() {
		fmt.Fprintf(&b, " %d. %s$z", i+1, mp.Name)
	}
	m.send(b.String(), login)
	m.send(fmt.Sprintf("Waiting for %s to ban a map", login))
}

// Ban removes the map at the 1-based index on behalf of login.
func (m *Match) Ban(login string, index int) (Map, error) {
	banned, err := m.queue.EliminateFor(login, index)
	if err != nil {
		return Map{}, err
	}

	m.logger.Info("map banned", "login", login, "map", banned.UID)
	m.send(fmt.Sprintf("%s banned %s", login, banned.Name))

	select {
	case m.banned <- struct{}{}:
	default:
	}
	return banned, nil
}

func (m *Match) finish(ctx context.Context) {
	pool := m.queue.Pool()
	names := make([]string, len(pool))
	for i, mp := range pool {
		names[i] = mp.Name
	}
	m.send("Maps for this match: " + strings.Join(names, "$z, "))

	if len(pool) > 0 && pool[0].FinishTimeout > 0 {
		err := m.cfg.Control.UpdateSettings(ctx, session.Settings{
			"S_FinishTimeout": int(pool[0].FinishTimeout.Seconds()),
		})
		if err != nil {
			m.logger.Warn("failed to apply finish timeout", "error", err)
			m.setErr(fmt.Errorf("apply finish timeout: %w", err))
		}
	}
	m.logger.Info("map ban finished", "maps", len(pool))
}

func (m *Match) send(message string, recipients ...string) {
	if m.cfg.Chat == nil {
		return
	}
	if err := m.cfg.Chat.Send(m.cfg.ChatPrefix+message, recipients...); err != nil {
		m.logger.Warn("failed to send chat message", "error", err)
	}
}

func (m *Match) Pool() []Map {
	return m.queue.Pool()
}

// Current is the login that may ban right now.
func (m *Match) Current() string {
	return m.queue.Current()
}

// Done is closed once the ban phase ended.
func (m *Match) Done() <-chan struct{} {
	return m.done
}

func (m *Match) Cancel() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Match) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *Match) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err == nil {
		m.err = err
	}
}
