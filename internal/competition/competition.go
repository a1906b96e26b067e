// Package competition runs a NightCup: a time attack qualifier followed by
// knockout rounds on the same race session.
//
// A Competition is not safe for concurrent use. Every method, event handler
// and scheduled callback must run on the same goroutine, which is the server
// loop in production.
package competition

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
	"github.com/siohaza/nightcup/internal/countdown"
	"github.com/siohaza/nightcup/internal/ranking"
	"github.com/siohaza/nightcup/internal/session"
	"github.com/siohaza/nightcup/internal/standings"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseTimeAttackSetup
	PhaseTimeAttack
	PhaseKnockoutSetup
	PhaseKnockout
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseTimeAttackSetup:
		return "time-attack-setup"
	case PhaseTimeAttack:
		return "time-attack"
	case PhaseKnockoutSetup:
		return "knockout-setup"
	case PhaseKnockout:
		return "knockout"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Active reports whether a competition is running in this phase.
func (p Phase) Active() bool {
	return p != PhaseIdle && p != PhaseFinished
}

// listener groups
const (
	groupTA      = "ta"
	groupTAFlow  = "ta-flow"
	groupKO      = "ko"
	groupKOSetup = "ko-setup"
	groupKOFlow  = "ko-flow"
)

var listenerGroups = []string{groupTA, groupTAFlow, groupKO, groupKOSetup, groupKOFlow}

const chatReset = "$z$fff$s"

type Config struct {
	Control   session.Control
	Directory session.Directory
	Chat      session.Chat
	Presenter standings.Presenter
	Events    *callbacks.Dispatcher
	Scheduler countdown.Scheduler
	Logger    *slog.Logger

	Settings  *Settings
	Layout    standings.Layout
	Whitelist []string

	TAScript string
	KOScript string

	// RestoreDelay is the grace period before the backed up session is restored.
	RestoreDelay time.Duration
	// StartDelay separates the start announcement from the TA countdown.
	StartDelay     time.Duration
	CommandTimeout time.Duration
	// ScriptPollInterval and ScriptPollAttempts bound the wait for a script switch.
	ScriptPollInterval time.Duration
	ScriptPollAttempts int
}

type Competition struct {
	control   session.Control
	directory session.Directory
	chat      session.Chat
	presenter standings.Presenter
	events    *callbacks.Dispatcher
	sched     countdown.Scheduler
	logger    *slog.Logger

	settings *Settings
	layout   standings.Layout
	viewers  *standings.Viewers
	engine   *ranking.Engine

	taScript         string
	koScript         string
	restoreDelay     time.Duration
	startDelay       time.Duration
	commandTimeout   time.Duration
	pollInterval     time.Duration
	pollAttempts     int
	defaultWhitelist []string

	phase     Phase
	epoch     uint64
	pending   []func()
	timer     *countdown.Countdown
	admin     string
	whitelist []string
	qualified []string
	round     int
	title     string
	winner    string

	backup *backup
	// restoring is the backup being applied while the phase is Finished.
	restoring *backup
	// failures counts failed session commands.
	failures int
}

type backup struct {
	admin    string
	script   string
	settings session.Settings
}

func New(cfg Config) *Competition {
	if cfg.Scheduler == nil {
		cfg.Scheduler = countdown.Wall
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = callbacks.NewDispatcher()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if cfg.ScriptPollInterval <= 0 {
		cfg.ScriptPollInterval = time.Second
	}
	if cfg.ScriptPollAttempts <= 0 {
		cfg.ScriptPollAttempts = 30
	}
	if cfg.TAScript == "" {
		cfg.TAScript = "TimeAttack.Script.txt"
	}
	if cfg.KOScript == "" {
		cfg.KOScript = "Rounds.Script.txt"
	}

	return &Competition{
		control:          cfg.Control,
		directory:        cfg.Directory,
		chat:             cfg.Chat,
		presenter:        cfg.Presenter,
		events:           cfg.Events,
		sched:            cfg.Scheduler,
		logger:           cfg.Logger,
		settings:         cfg.Settings,
		layout:           cfg.Layout,
		viewers:          standings.NewViewers(),
		engine:           ranking.NewEngine(),
		taScript:         cfg.TAScript,
		koScript:         cfg.KOScript,
		restoreDelay:     cfg.RestoreDelay,
		startDelay:       cfg.StartDelay,
		commandTimeout:   cfg.CommandTimeout,
		pollInterval:     cfg.ScriptPollInterval,
		pollAttempts:     cfg.ScriptPollAttempts,
		defaultWhitelist: slices.Clone(cfg.Whitelist),
		whitelist:        slices.Clone(cfg.Whitelist),
	}
}

func (c *Competition) Phase() Phase {
	return c.phase
}

func (c *Competition) Qualified() []string {
	return slices.Clone(c.qualified)
}

func (c *Competition) Whitelisted() []string {
	return slices.Clone(c.whitelist)
}

func (c *Competition) Round() int {
	return c.round
}

func (c *Competition) Settings() *Settings {
	return c.settings
}

// RequiredKOs is the number of eliminations of the next knockout round.
func (c *Competition) RequiredKOs() int {
	if c.phase != PhaseKnockoutSetup && c.phase != PhaseKnockout {
		return 0
	}
	return ranking.RequiredKOs(len(c.qualified))
}

func (c *Competition) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.logger.Info("nightcup phase changed", "from", c.phase, "to", p)
	c.phase = p
}

// later runs fn after d unless the competition was reset in between.
func (c *Competition) later(d time.Duration, fn func()) {
	epoch := c.epoch
	cancel := c.sched.AfterFunc(d, func() {
		if c.epoch != epoch {
			return
		}
		fn()
	})
	c.pending = append(c.pending, cancel)
}

func (c *Competition) runCountdown(label string, seconds int, next func()) {
	c.timer = countdown.Start(c.sched, seconds, func(remaining int) {
		c.showCountdown(fmt.Sprintf("%s %s", label, standings.FormatSeconds(remaining)))
	}, func() {
		if seconds > 0 {
			c.hideCountdown()
		}
		c.later(time.Second, next)
	})
}

// command runs a session command with the configured timeout. Failures are
// logged and reported to the admin.
func (c *Competition) command(name string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.commandTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		cerr := &CommandError{Command: name, Err: err}
		c.failures++
		c.logger.Warn("session command failed", "command", name, "error", err)
		c.whisperAdmin(fmt.Sprintf("$f00Something went wrong: %s", cerr.Error()))
		return cerr
	}
	return nil
}

func (c *Competition) restartMap() {
	_ = c.command("RestartMap", c.control.RestartMap)
}

func (c *Competition) updateModeSettings(changes session.Settings) {
	err := c.command("UpdateSettings", func(ctx context.Context) error {
		return c.control.UpdateSettings(ctx, changes)
	})
	if err != nil {
		c.whisperAdmin("$f00Couldn't set the modesettings, please check if all are set correctly!")
	}
}

// switchScript loads name, restarts the map and calls then once the session
// reports the new script. When the script never shows up the admin is told
// and then runs anyway.
func (c *Competition) switchScript(name string, then func()) {
	_ = c.command("SetScript", func(ctx context.Context) error {
		return c.control.SetScript(ctx, name)
	})
	c.restartMap()
	c.awaitScript(name, c.pollAttempts, then)
}

func (c *Competition) awaitScript(name string, attempts int, then func()) {
	var current string
	err := c.command("CurrentScript", func(ctx context.Context) error {
		var err error
		current, err = c.control.CurrentScript(ctx)
		return err
	})
	if err == nil && current == name {
		then()
		return
	}
	if attempts <= 1 {
		c.failures++
		c.logger.Warn("script did not load in time", "script", name, "current", current)
		c.whisperAdmin(fmt.Sprintf("$f00Script %s did not load, continuing anyway", name))
		then()
		return
	}
	c.later(c.pollInterval, func() {
		c.awaitScript(name, attempts-1, then)
	})
}

func (c *Competition) forceSpecOrKick(login string) {
	if c.directory.SpectatorCount() < c.directory.MaxSpectators() || !c.settings.Bool(SettingKickWhenFull) {
		_ = c.command("ForceSpectator", func(ctx context.Context) error {
			return c.control.ForceSpectator(ctx, login, session.ModeSpectatorSelectable)
		})
		return
	}
	_ = c.command("Kick", func(ctx context.Context) error {
		return c.control.Kick(ctx, login)
	})
}

func (c *Competition) forcePlayer(login string) {
	_ = c.command("ForceSpectator", func(ctx context.Context) error {
		return c.control.ForceSpectator(ctx, login, session.ModePlayer)
	})
}

func (c *Competition) nickname(login string) string {
	if p, ok := c.directory.Get(login); ok && p.Nickname != "" {
		return p.Nickname
	}
	return login
}

func (c *Competition) say(message string) {
	c.send(message)
}

func (c *Competition) whisper(login, message string) {
	if login == "" {
		return
	}
	c.send(message, login)
}

// whisperAdmin tells the running admin, or the admin whose session is being
// restored.
func (c *Competition) whisperAdmin(message string) {
	login := c.admin
	if login == "" && c.restoring != nil {
		login = c.restoring.admin
	}
	if login == "" {
		c.logger.Warn("no admin to notify", "message", message)
		return
	}
	c.whisper(login, message)
}

func (c *Competition) send(message string, recipients ...string) {
	if c.chat == nil {
		return
	}
	if err := c.chat.Send(c.settings.String(SettingChatPrefix)+message, recipients...); err != nil {
		c.logger.Warn("failed to send chat message", "error", err)
	}
}

func (c *Competition) showCountdown(title string) {
	if err := c.presenter.Countdown(title); err != nil {
		c.logger.Debug("failed to show countdown", "error", err)
	}
}

func (c *Competition) hideCountdown() {
	if err := c.presenter.ClearCountdown(); err != nil {
		c.logger.Debug("failed to hide countdown", "error", err)
	}
}

func pointsRepartition(n int) string {
	points := make([]string, 0, n)
	for i := n; i > 0; i-- {
		points = append(points, fmt.Sprint(i))
	}
	return strings.Join(points, ",")
}
