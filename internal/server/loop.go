package server

import (
	"context"
	"time"

	"github.com/siohaza/nightcup/internal/session"
)

// loopScheduler fires timers on the loop.
type loopScheduler struct {
	s *Server
}

func (l loopScheduler) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() { l.s.post(fn) })
	return func() { t.Stop() }
}

// loopControl hands session commands from other goroutines to the loop.
type loopControl struct {
	s *Server
}

func (c loopControl) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	if derr := c.s.Do(ctx, func() { err = fn(ctx) }); derr != nil {
		return derr
	}
	return err
}

func (c loopControl) SetScript(ctx context.Context, name string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.s.relay.SetScript(ctx, name) })
}

func (c loopControl) CurrentScript(ctx context.Context) (string, error) {
	var name string
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		name, err = c.s.relay.CurrentScript(ctx)
		return err
	})
	return name, err
}

func (c loopControl) Settings(ctx context.Context) (session.Settings, error) {
	var settings session.Settings
	err := c.do(ctx, func(ctx context.Context) error {
		var err error
		settings, err = c.s.relay.Settings(ctx)
		return err
	})
	return settings, err
}

func (c loopControl) UpdateSettings(ctx context.Context, settings session.Settings) error {
	return c.do(ctx, func(ctx context.Context) error { return c.s.relay.UpdateSettings(ctx, settings) })
}

func (c loopControl) RestartMap(ctx context.Context) error {
	return c.do(ctx, c.s.relay.RestartMap)
}

func (c loopControl) NextMap(ctx context.Context) error {
	return c.do(ctx, c.s.relay.NextMap)
}

func (c loopControl) ForceSpectator(ctx context.Context, login string, mode session.SpectatorMode) error {
	return c.do(ctx, func(ctx context.Context) error { return c.s.relay.ForceSpectator(ctx, login, mode) })
}

func (c loopControl) ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error {
	return c.do(ctx, func(ctx context.Context) error {
		return c.s.relay.ForceSpectatorTarget(ctx, login, target, camera)
	})
}

func (c loopControl) Kick(ctx context.Context, login string) error {
	return c.do(ctx, func(ctx context.Context) error { return c.s.relay.Kick(ctx, login) })
}

// loopChat queues chat messages for the loop without waiting.
type loopChat struct {
	s *Server
}

func (c loopChat) Send(message string, recipients ...string) error {
	c.s.post(func() {
		if err := c.s.relay.Send(message, recipients...); err != nil {
			c.s.logger.Warn("failed to send chat message", "error", err)
		}
	})
	return nil
}
