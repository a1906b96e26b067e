// Package session describes the race server as seen by the competition:
// mode script control, the player directory and the chat sink.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/siohaza/nightcup/internal/player"
)

// SpectatorMode is the mode argument of ForceSpectator.
type SpectatorMode int

const (
	ModeUserSelectable      SpectatorMode = 0
	ModeSpectator           SpectatorMode = 1
	ModePlayer              SpectatorMode = 2
	ModeSpectatorSelectable SpectatorMode = 3
)

// Settings holds mode script settings keyed by name, e.g. S_TimeLimit.
type Settings map[string]any

func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

var ErrUnavailable = errors.New("race server unavailable")

type Control interface {
	SetScript(ctx context.Context, name string) error
	CurrentScript(ctx context.Context) (string, error)
	Settings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, settings Settings) error
	RestartMap(ctx context.Context) error
	NextMap(ctx context.Context) error
	ForceSpectator(ctx context.Context, login string, mode SpectatorMode) error
	ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error
	Kick(ctx context.Context, login string) error
}

// Call is a single method invocation inside a multicall batch.
type Call struct {
	Method string
	Params []any
}

// Multicaller is implemented by backends that execute a batch atomically.
type Multicaller interface {
	Multicall(ctx context.Context, calls ...Call) error
}

type Directory interface {
	Get(login string) (player.Player, bool)
	Online() []player.Player
	OnlineLogins() []string
	SpectatorCount() int
	MaxSpectators() int
}

// Chat delivers a message to the given logins, or to everyone when no
// recipient is given.
type Chat interface {
	Send(message string, recipients ...string) error
}

// SpectateTarget forces login into spectator mode watching target. Backends
// with multicall run both commands as one batch; otherwise the target command
// is retried once on the assumption the mode switch already applied.
func SpectateTarget(ctx context.Context, c Control, login, target string) error {
	if mc, ok := c.(Multicaller); ok {
		err := mc.Multicall(ctx,
			Call{Method: "ForceSpectator", Params: []any{login, int(ModeSpectatorSelectable)}},
			Call{Method: "ForceSpectatorTarget", Params: []any{login, target, -1}},
		)
		if err != nil {
			return fmt.Errorf("spectate %s: %w", target, err)
		}
		return nil
	}

	if err := c.ForceSpectator(ctx, login, ModeSpectatorSelectable); err != nil {
		return fmt.Errorf("force spectator: %w", err)
	}

	err := c.ForceSpectatorTarget(ctx, login, target, -1)
	if err == nil {
		return nil
	}
	if retryErr := c.ForceSpectatorTarget(ctx, login, target, -1); retryErr != nil {
		return fmt.Errorf("force spectator target: %w", retryErr)
	}
	return nil
}
