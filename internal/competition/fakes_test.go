package competition

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
	"github.com/siohaza/nightcup/internal/countdown"
	"github.com/siohaza/nightcup/internal/player"
	"github.com/siohaza/nightcup/internal/session"
	"github.com/siohaza/nightcup/internal/standings"
	"github.com/siohaza/nightcup/pkg/config"
)

type fakeControl struct {
	script   string
	settings session.Settings
	calls    []string
	fail     map[string]error
	forced   map[string]session.SpectatorMode
	kicked   []string
	targets  map[string]string
	updates  []session.Settings
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		script:   "Cup.Script.txt",
		settings: session.Settings{"S_TimeLimit": 300},
		fail:     make(map[string]error),
		forced:   make(map[string]session.SpectatorMode),
		targets:  make(map[string]string),
	}
}

func (f *fakeControl) record(name string, args ...any) error {
	f.calls = append(f.calls, strings.TrimSpace(name+" "+fmt.Sprint(args...)))
	return f.fail[name]
}

func (f *fakeControl) SetScript(ctx context.Context, name string) error {
	if err := f.record("SetScript", name); err != nil {
		return err
	}
	f.script = name
	return nil
}

func (f *fakeControl) CurrentScript(ctx context.Context) (string, error) {
	return f.script, f.fail["CurrentScript"]
}

func (f *fakeControl) Settings(ctx context.Context) (session.Settings, error) {
	return f.settings.Clone(), f.fail["Settings"]
}

func (f *fakeControl) UpdateSettings(ctx context.Context, settings session.Settings) error {
	if err := f.record("UpdateSettings"); err != nil {
		return err
	}
	f.updates = append(f.updates, settings.Clone())
	for k, v := range settings {
		f.settings[k] = v
	}
	return nil
}

func (f *fakeControl) RestartMap(ctx context.Context) error { return f.record("RestartMap") }
func (f *fakeControl) NextMap(ctx context.Context) error    { return f.record("NextMap") }

func (f *fakeControl) ForceSpectator(ctx context.Context, login string, mode session.SpectatorMode) error {
	if err := f.record("ForceSpectator", login); err != nil {
		return err
	}
	f.forced[login] = mode
	return nil
}

func (f *fakeControl) ForceSpectatorTarget(ctx context.Context, login, target string, camera int) error {
	if err := f.record("ForceSpectatorTarget", login); err != nil {
		return err
	}
	f.targets[login] = target
	return nil
}

func (f *fakeControl) Kick(ctx context.Context, login string) error {
	if err := f.record("Kick", login); err != nil {
		return err
	}
	f.kicked = append(f.kicked, login)
	return nil
}

func (f *fakeControl) called(prefix string) int {
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type sent struct {
	message    string
	recipients []string
}

type fakeChat struct {
	messages []sent
}

func (f *fakeChat) Send(message string, recipients ...string) error {
	f.messages = append(f.messages, sent{message: message, recipients: recipients})
	return nil
}

func (f *fakeChat) broadcast(substr string) bool {
	for _, m := range f.messages {
		if len(m.recipients) == 0 && strings.Contains(m.message, substr) {
			return true
		}
	}
	return false
}

func (f *fakeChat) whispered(login, substr string) bool {
	for _, m := range f.messages {
		if len(m.recipients) == 1 && m.recipients[0] == login && strings.Contains(m.message, substr) {
			return true
		}
	}
	return false
}

type fakePresenter struct {
	views      map[string]standings.View
	countdowns []string
	hidden     int
	cleared    int
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{views: make(map[string]standings.View)}
}

func (f *fakePresenter) Present(viewer string, view standings.View) error {
	f.views[viewer] = view
	return nil
}

func (f *fakePresenter) Countdown(title string) error {
	f.countdowns = append(f.countdowns, title)
	return nil
}

func (f *fakePresenter) ClearCountdown() error {
	f.hidden++
	return nil
}

func (f *fakePresenter) Clear() error {
	f.cleared++
	f.views = make(map[string]standings.View)
	return nil
}

type harness struct {
	t         *testing.T
	comp      *Competition
	control   *fakeControl
	chat      *fakeChat
	presenter *fakePresenter
	players   *player.Manager
	events    *callbacks.Dispatcher
	sched     *countdown.Manual
}

func newHarness(t *testing.T, mutate func(*config.CompetitionConfig)) *harness {
	t.Helper()

	cfg := config.Default().Competition
	cfg.TimeUntilTA = 5
	cfg.TimeUntilKO = 0
	cfg.TAWarmupDuration = 0
	cfg.KOWarmupDuration = 0
	cfg.RestoreDelay = 5
	cfg.Whitelist = nil
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		t:         t,
		control:   newFakeControl(),
		chat:      &fakeChat{},
		presenter: newFakePresenter(),
		players:   player.NewManager(32),
		events:    callbacks.NewDispatcher(),
		sched:     countdown.NewManual(),
	}

	joined := time.Now()
	for i, login := range []string{"admin", "a", "b", "c", "d", "e"} {
		h.players.Add(player.Player{
			Login:    login,
			Nickname: strings.ToUpper(login),
			JoinedAt: joined.Add(time.Duration(i) * time.Millisecond),
		})
	}

	h.comp = New(Config{
		Control:      h.control,
		Directory:    h.players,
		Chat:         h.chat,
		Presenter:    h.presenter,
		Events:       h.events,
		Scheduler:    h.sched,
		Settings:     NewSettings(cfg, ""),
		Layout:       standings.Layout{TopEntries: 5, Slots: 10},
		Whitelist:    cfg.Whitelist,
		TAScript:     cfg.TAScript,
		KOScript:     cfg.KOScript,
		RestoreDelay: time.Duration(cfg.RestoreDelay) * time.Second,
		StartDelay:   3 * time.Second,
	})
	return h
}

func (h *harness) dispatch(ev callbacks.Event) {
	h.events.Dispatch(ev)
}

func (h *harness) finish(login string, raceTime time.Duration) {
	h.dispatch(callbacks.Event{
		Kind:        callbacks.KindFinish,
		Login:       login,
		Nickname:    strings.ToUpper(login),
		RaceTime:    raceTime,
		Checkpoints: []time.Duration{raceTime / 2, raceTime},
		EndOfRace:   true,
	})
}

func (h *harness) roundEnd() {
	h.dispatch(callbacks.Event{Kind: callbacks.KindRoundEnd})
}

func (h *harness) roundStart() {
	h.dispatch(callbacks.Event{Kind: callbacks.KindRoundStart})
}

// startTimeAttack starts the cup and runs the clock until the TA phase is live.
func (h *harness) startTimeAttack() {
	h.t.Helper()
	if err := h.comp.Start("admin"); err != nil {
		h.t.Fatalf("Start returned error: %v", err)
	}
	h.sched.Advance(10 * time.Second)
	if h.comp.Phase() != PhaseTimeAttack {
		h.t.Fatalf("expected time attack phase, got %s", h.comp.Phase())
	}
}

// startKnockout ends the TA phase and runs the clock until the first KO map
// has begun.
func (h *harness) startKnockout() {
	h.t.Helper()
	h.roundEnd()
	h.sched.Advance(2 * time.Second)
	if h.comp.Phase() != PhaseKnockout {
		h.t.Fatalf("expected knockout phase, got %s", h.comp.Phase())
	}
	h.dispatch(callbacks.Event{Kind: callbacks.KindMapBegin})
}
