package mapban

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/siohaza/nightcup/internal/session"
)

func pool(n int) []Map {
	maps := make([]Map, n)
	for i := range maps {
		maps[i] = Map{UID: fmt.Sprintf("uid%d", i+1), Name: fmt.Sprintf("Map %d", i+1), FinishTimeout: time.Duration(40+i) * time.Second}
	}
	return maps
}

func TestQueueStopsAtRequired(t *testing.T) {
	q := NewQueue(pool(7), 3)
	for _, login := range []string{"a", "b", "c", "d", "e", "f"} {
		if err := q.Enqueue(login); err != nil {
			t.Fatalf("Enqueue(%s) returned error: %v", login, err)
		}
	}
	ctx := context.Background()

	for i, want := range []string{"a", "b", "c", "d"} {
		login, err := q.Next(ctx)
		if err != nil || login != want {
			t.Fatalf("turn %d: got %q, %v", i, login, err)
		}
		if _, err := q.Eliminate(1); err != nil {
			t.Fatalf("Eliminate returned error: %v", err)
		}
	}

	if _, err := q.Next(ctx); !errors.Is(err, ErrBanningComplete) {
		t.Fatalf("expected ErrBanningComplete with logins still queued, got %v", err)
	}
	if _, err := q.Eliminate(1); !errors.Is(err, ErrBanningComplete) {
		t.Fatalf("pool must not shrink below the required size, got %v", err)
	}
	if got := q.Pool(); len(got) != 3 || got[0].UID != "uid5" {
		t.Fatalf("unexpected pool %+v", got)
	}
}

func TestQueueEliminateIndex(t *testing.T) {
	q := NewQueue(pool(5), 1)

	for _, index := range []int{0, 6, -1} {
		if _, err := q.Eliminate(index); !errors.Is(err, ErrInvalidIndex) {
			t.Fatalf("Eliminate(%d): expected ErrInvalidIndex, got %v", index, err)
		}
	}
	banned, err := q.Eliminate(3)
	if err != nil || banned.UID != "uid3" {
		t.Fatalf("Eliminate(3) = %+v, %v", banned, err)
	}
	if got := q.Pool(); len(got) != 4 || got[2].UID != "uid4" {
		t.Fatalf("unexpected pool %+v", got)
	}
}

func TestQueueTurns(t *testing.T) {
	q := NewQueue(pool(5), 1)
	if err := q.Enqueue("a"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if err := q.Enqueue("a"); !errors.Is(err, ErrDuplicateTurn) {
		t.Fatalf("expected ErrDuplicateTurn, got %v", err)
	}

	if _, err := q.Next(context.Background()); err != nil {
		t.Fatalf("Next returned error: %v", err)
	}
	if _, err := q.EliminateFor("b", 1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := q.EliminateFor("a", 1); err != nil {
		t.Fatalf("EliminateFor returned error: %v", err)
	}
	if _, err := q.EliminateFor("a", 1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("a turn allows a single ban, got %v", err)
	}
}

func TestQueueNextBlocks(t *testing.T) {
	q := NewQueue(pool(5), 1)
	got := make(chan string, 1)

	go func() {
		login, err := q.Next(context.Background())
		if err != nil {
			got <- err.Error()
			return
		}
		got <- login
	}()

	select {
	case login := <-got:
		t.Fatalf("Next returned %q before a turn was queued", login)
	case <-time.After(20 * time.Millisecond):
	}

	if err := q.Enqueue("late"); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	select {
	case login := <-got:
		if login != "late" {
			t.Fatalf("Next returned %q", login)
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not wake up")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	q.Close()
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrBanningComplete) {
		t.Fatalf("closed empty queue should be complete, got %v", err)
	}
}

type matchControl struct {
	mu      sync.Mutex
	script  string
	updates []session.Settings
}

func (c *matchControl) SetScript(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = name
	return nil
}
func (c *matchControl) CurrentScript(ctx context.Context) (string, error) { return c.script, nil }
func (c *matchControl) Settings(ctx context.Context) (session.Settings, error) {
	return session.Settings{}, nil
}
func (c *matchControl) UpdateSettings(ctx context.Context, settings session.Settings) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, settings)
	return nil
}
func (c *matchControl) RestartMap(ctx context.Context) error { return nil }
func (c *matchControl) NextMap(ctx context.Context) error    { return nil }
func (c *matchControl) ForceSpectator(ctx context.Context, login string, mode session.SpectatorMode) error {
	return nil
}
func (c *matchControl) ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error {
	return nil
}
func (c *matchControl) Kick(ctx context.Context, login string) error { return nil }

type matchChat struct {
	mu       sync.Mutex
	messages []string
}

func (c *matchChat) Send(message string, recipients ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return nil
}

func waitTurn(t *testing.T, m *Match, login string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for m.Current() != login {
		if time.Now().After(deadline) {
			t.Fatalf("turn of %s never came, current %q", login, m.Current())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMatchBanPhase(t *testing.T) {
	control := &matchControl{}
	m := NewMatch(MatchConfig{
		Control:      control,
		Chat:         &matchChat{},
		Script:       "Cup.Script.txt",
		Maps:         pool(5),
		RequiredMaps: 3,
	})

	if err := m.Begin(context.Background(), []string{"a", "b", "c"}); err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	defer m.Cancel()

	waitTurn(t, m, "a")
	if _, err := m.Ban("b", 1); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}
	if _, err := m.Ban("a", 1); err != nil {
		t.Fatalf("Ban returned error: %v", err)
	}

	waitTurn(t, m, "b")
	if _, err := m.Ban("b", 1); err != nil {
		t.Fatalf("Ban returned error: %v", err)
	}

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatalf("ban phase did not finish")
	}
	if m.Err() != nil {
		t.Fatalf("unexpected error %v", m.Err())
	}

	got := m.Pool()
	if len(got) != 3 || got[0].UID != "uid3" {
		t.Fatalf("unexpected pool %+v", got)
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if control.script != "Cup.Script.txt" || len(control.updates) != 2 {
		t.Fatalf("unexpected session state %q %v", control.script, control.updates)
	}
	if control.updates[0]["S_PointsRepartition"] != "10,6,4,3" {
		t.Fatalf("cup settings not applied: %v", control.updates[0])
	}
	if control.updates[1]["S_FinishTimeout"] != 42 {
		t.Fatalf("finish timeout of the first remaining map not applied: %v", control.updates[1])
	}
}
