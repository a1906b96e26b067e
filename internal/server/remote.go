package server

import (
	"context"

	"github.com/siohaza/nightcup/internal/competition"
	"github.com/siohaza/nightcup/internal/standings"
)

// Remote is the competition as seen from other goroutines. Every call is
// run on the loop through Do.
type Remote struct {
	s *Server
}

func (s *Server) Remote() *Remote {
	return &Remote{s: s}
}

func (r *Remote) Connected() bool {
	return r.s.Connected()
}

func (r *Remote) Status(ctx context.Context) (competition.Status, error) {
	var st competition.Status
	err := r.s.Do(ctx, func() { st = r.s.comp.Status() })
	return st, err
}

func (r *Remote) Standings(ctx context.Context, viewer string) (standings.View, error) {
	var view standings.View
	err := r.s.Do(ctx, func() { view = r.s.comp.View(viewer) })
	return view, err
}

func (r *Remote) Settings(ctx context.Context) ([]competition.Setting, error) {
	var settings []competition.Setting
	err := r.s.Do(ctx, func() { settings = r.s.settings.All() })
	return settings, err
}

func (r *Remote) Start(ctx context.Context, admin string) error {
	return r.run(ctx, func() error { return r.s.comp.Start(admin) })
}

func (r *Remote) Stop(ctx context.Context, by string) error {
	return r.run(ctx, func() error { return r.s.comp.Stop(by) })
}

func (r *Remote) AddQualified(ctx context.Context, login string) error {
	return r.run(ctx, func() error { return r.s.comp.AddQualified(login) })
}

func (r *Remote) RemoveQualified(ctx context.Context, login string) error {
	return r.run(ctx, func() error { return r.s.comp.RemoveQualified(login) })
}

func (r *Remote) UpdateSetting(ctx context.Context, name, value string) error {
	return r.run(ctx, func() error { return r.s.comp.UpdateSetting(name, value) })
}

func (r *Remote) run(ctx context.Context, fn func() error) error {
	var err error
	if derr := r.s.Do(ctx, func() { err = fn() }); derr != nil {
		return derr
	}
	return err
}
