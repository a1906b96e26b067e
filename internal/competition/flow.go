package competition

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/siohaza/nightcup/internal/callbacks"
	"github.com/siohaza/nightcup/internal/ranking"
	"github.com/siohaza/nightcup/internal/session"
	"github.com/siohaza/nightcup/internal/standings"
)

// Start begins a NightCup controlled by admin.
func (c *Competition) Start(admin string) error {
	if c.phase != PhaseIdle {
		return ErrAlreadyActive
	}
	if _, ok := c.directory.Get(admin); !ok {
		return fmt.Errorf("start by %s: %w", admin, ErrUnknownPlayer)
	}

	c.admin = admin
	c.winner = ""
	c.logger.Info("nightcup starting", "admin", admin)
	c.say("Nightcup is starting now!")
	c.whisper(admin, "Set whitelisted players now using //nc wl player1 player2 player3")

	c.backupSession()
	c.setPhase(PhaseTimeAttackSetup)
	c.later(c.startDelay, func() {
		c.runCountdown("TA phase starts in", c.settings.Int(SettingTimeUntilTA), c.beginTimeAttack)
	})
	return nil
}

// Stop aborts the running competition.
func (c *Competition) Stop(by string) error {
	if !c.phase.Active() {
		return ErrNotActive
	}
	c.logger.Info("nightcup stopped", "by", by, "phase", c.phase)
	c.say(fmt.Sprintf("Admin %s%s stopped nightcup!", c.nickname(by), chatReset))
	c.reset()
	return nil
}

func (c *Competition) backupSession() {
	var script string
	var settings session.Settings
	err := c.command("CurrentScript", func(ctx context.Context) error {
		var err error
		script, err = c.control.CurrentScript(ctx)
		return err
	})
	if err == nil {
		err = c.command("Settings", func(ctx context.Context) error {
			var err error
			settings, err = c.control.Settings(ctx)
			return err
		})
	}
	if err != nil || script == "" {
		c.backup = nil
		return
	}
	c.backup = &backup{admin: c.admin, script: script, settings: settings.Clone()}
}

func (c *Competition) beginTimeAttack() {
	if c.phase != PhaseTimeAttackSetup {
		c.contradiction("begin time attack")
		return
	}

	c.switchScript(c.taScript, func() {
		c.applyTimeAttackSettings()

		c.engine.Reset(ranking.ModeTimeAttack, c.settings.Int(SettingQualifiedPercentage))
		c.setPhase(PhaseTimeAttack)
		c.title = "TA Phase"
		c.listenBoard(groupTA)
		c.events.Listen(groupTAFlow, callbacks.KindRoundEnd, c.onTimeAttackEnd)
		c.Refresh()
	})
}

func (c *Competition) applyTimeAttackSettings() {
	settings := session.Settings{"S_TimeLimit": c.settings.Int(SettingTALength)}

	warmup := c.settings.Int(SettingTAWarmup)
	if warmup == 0 || warmup == -1 {
		settings["S_WarmUpNb"] = -1
		c.say("Live with TA now!")
	} else {
		settings["S_WarmUpNb"] = 1
		settings["S_WarmUpDuration"] = warmup
		c.say(fmt.Sprintf("Warmup of %s for people to load the map.", standings.FormatSeconds(warmup)))
		c.say("Live with TA after WarmUp!")
	}
	c.updateModeSettings(settings)
}

func (c *Competition) listenBoard(group string) {
	for _, kind := range []callbacks.Kind{
		callbacks.KindMapStart,
		callbacks.KindRoundStart,
		callbacks.KindCheckpoint,
		callbacks.KindStartLine,
		callbacks.KindFinish,
		callbacks.KindPlayerDisconnect,
		callbacks.KindPlayerEnterSpectator,
	} {
		c.events.Listen(group, kind, c.onRaceEvent)
	}
	c.events.Listen(group, callbacks.KindPlayerConnect, func(ev callbacks.Event) {
		c.present(ev.Login)
	})
}

func (c *Competition) onRaceEvent(ev callbacks.Event) {
	c.engine.Apply(ev)
	if ev.Kind == callbacks.KindPlayerDisconnect {
		c.viewers.Forget(ev.Login)
	}
	c.Refresh()
}

func (c *Competition) onTimeAttackEnd(callbacks.Event) {
	c.events.RevokeGroup(groupTAFlow)

	finishers := c.engine.Finishers()
	q := ranking.QualifiedCount(len(finishers), c.settings.Int(SettingQualifiedPercentage))

	qualified := slices.Clone(c.whitelist)
	for _, login := range finishers[:q] {
		if !slices.Contains(qualified, login) {
			qualified = append(qualified, login)
		}
	}
	c.qualified = qualified
	c.logger.Info("time attack finished", "finishers", len(finishers), "qualified", len(qualified))

	for _, login := range c.directory.OnlineLogins() {
		switch {
		case slices.Contains(c.qualified, login):
			c.whisper(login, "Well done, you qualified for the KO phase!")
			c.forcePlayer(login)
		case slices.Contains(finishers, login):
			c.whisper(login, "Unlucky, you did not qualify for the KO phase!")
			c.forceSpecOrKick(login)
		default:
			c.forceSpecOrKick(login)
		}
	}

	switch len(c.qualified) {
	case 0:
		c.say("Noone finished TA Phase, stopping NightCup")
		c.reset()
	case 1:
		c.finish(c.qualified[0])
	default:
		c.setPhase(PhaseKnockoutSetup)
		c.later(time.Second, c.beginKnockoutSetup)
	}
}

func (c *Competition) beginKnockoutSetup() {
	if c.phase != PhaseKnockoutSetup {
		c.contradiction("begin knockout setup")
		return
	}

	c.events.RevokeGroup(groupTA)
	c.engine.Reset(ranking.ModeKnockout, c.settings.Int(SettingQualifiedPercentage))
	c.updateContention()
	c.listenBoard(groupKO)
	c.title = "Current CPs"
	c.Refresh()

	c.updateModeSettings(session.Settings{
		"S_TimeLimit":      -1,
		"S_WarmUpDuration": 0,
		"S_WarmUpNb":       -1,
	})
	c.restartMap()

	c.runCountdown("KO phase starts in", c.settings.Int(SettingTimeUntilKO), c.beginKnockout)
}

func (c *Competition) beginKnockout() {
	if c.phase != PhaseKnockoutSetup {
		c.contradiction("begin knockout")
		return
	}

	c.setPhase(PhaseKnockout)
	c.round = 1
	c.title = "KO phase"
	c.events.Listen(groupKOSetup, callbacks.KindMapBegin, c.onKnockoutMapBegin)
	c.Refresh()

	_ = c.command("NextMap", c.control.NextMap)
}

func (c *Competition) onKnockoutMapBegin(callbacks.Event) {
	c.events.RevokeGroup(groupKOSetup)

	c.switchScript(c.koScript, func() {
		c.applyKnockoutSettings()
		c.events.Listen(groupKOFlow, callbacks.KindRoundStart, c.onKnockoutRoundStart)
		c.events.Listen(groupKOFlow, callbacks.KindRoundEnd, c.onKnockoutRoundEnd)
	})
}

func (c *Competition) applyKnockoutSettings() {
	settings := session.Settings{
		"S_PointsLimit":       -1,
		"S_RoundsPerMap":      -1,
		"S_PointsRepartition": pointsRepartition(len(c.qualified)),
		"S_FinishTimeout":     c.settings.Int(SettingFinishTimeout),
	}

	warmup := c.settings.Int(SettingKOWarmup)
	if warmup == 0 || warmup == -1 {
		settings["S_WarmUpNb"] = -1
		c.say("Live with KO now!")
	} else {
		settings["S_WarmUpNb"] = 1
		settings["S_WarmUpDuration"] = warmup
		c.say(fmt.Sprintf("Warmup of %s for people to load the map.", standings.FormatSeconds(warmup)))
		c.say("Live with KO after WarmUp!")
	}
	c.updateModeSettings(settings)
}

func (c *Competition) onKnockoutRoundStart(callbacks.Event) {
	c.say(fmt.Sprintf("%d players left, number of KOs: %d", len(c.qualified), ranking.RequiredKOs(len(c.qualified))))
}

func (c *Competition) onKnockoutRoundEnd(callbacks.Event) {
	c.knockout()
}

// knockout eliminates the slowest finishers of the round and every
// qualified racer without a finish.
func (c *Competition) knockout() {
	total := len(c.qualified)
	nrKOs := ranking.RequiredKOs(total)

	var finishers []string
	for _, p := range c.engine.RoundFinishers() {
		if slices.Contains(c.qualified, p.Login) {
			finishers = append(finishers, p.Login)
		}
	}
	if len(finishers) == 0 {
		c.logger.Info("knockout round without finishers", "round", c.round)
		return
	}
	if total <= 2 || len(finishers) == 1 {
		c.finish(finishers[0])
		return
	}

	keep := min(max(total-nrKOs, 0), len(finishers))
	survivors := finishers[:keep]
	kos := finishers[keep:]

	var dnfs []string
	for _, login := range c.qualified {
		if !slices.Contains(finishers, login) {
			dnfs = append(dnfs, login)
		}
	}

	c.qualified = slices.Clone(survivors)
	c.logger.Info("knockout round finished", "round", c.round, "survivors", len(survivors), "eliminated", len(kos)+len(dnfs))

	for i, login := range kos {
		c.whisper(login, fmt.Sprintf("You have been eliminated from this KO: position %d/%d", keep+i+1, total))
		c.forceSpecOrKick(login)
	}
	for _, login := range dnfs {
		c.whisper(login, fmt.Sprintf("You have been eliminated from this KO: position DNF/%d", total))
		c.forceSpecOrKick(login)
	}
	for i, login := range survivors {
		c.whisper(login, fmt.Sprintf("You are still in! position %d/%d", i+1, total))
		c.forcePlayer(login)
	}

	names := make([]string, 0, len(kos)+len(dnfs))
	for _, login := range append(slices.Clone(kos), dnfs...) {
		names = append(names, c.nickname(login))
	}
	c.say("Players knocked out: " + strings.Join(names, chatReset+", "))

	if len(survivors) == 1 {
		c.finish(survivors[0])
		return
	}

	c.round++
	c.updateContention()
	c.Refresh()
}

func (c *Competition) updateContention() {
	survivors := len(c.qualified) - ranking.RequiredKOs(len(c.qualified))
	c.engine.SetContention(c.qualified, max(survivors, 0))
}

func (c *Competition) finish(winner string) {
	c.winner = winner
	c.logger.Info("nightcup won", "winner", winner)
	c.say(fmt.Sprintf("Player %s%s wins this NightCup, well played!", c.nickname(winner), chatReset))
	c.reset()
}

// contradiction handles a transition requested from the wrong phase.
func (c *Competition) contradiction(op string) {
	err := fmt.Errorf("%s from %s: %w", op, c.phase, ErrInvalidTransition)
	c.logger.Error("resetting nightcup", "error", err)
	c.whisperAdmin("$f00" + err.Error())
	c.reset()
}

// reset tears the competition down. With a session backup the phase stays
// Finished until the backup is restored.
func (c *Competition) reset() {
	c.epoch++
	for _, cancel := range c.pending {
		cancel()
	}
	c.pending = nil
	if c.timer != nil {
		c.timer.Cancel()
		c.timer = nil
	}
	for _, group := range listenerGroups {
		c.events.RevokeGroup(group)
	}

	if err := c.presenter.Clear(); err != nil {
		c.logger.Debug("failed to clear standings", "error", err)
	}
	c.engine.Reset(ranking.ModeNone, 0)
	c.viewers.Reset()

	c.admin = ""
	c.qualified = nil
	c.whitelist = slices.Clone(c.defaultWhitelist)
	c.round = 0
	c.title = ""

	if c.backup == nil {
		c.setPhase(PhaseIdle)
		return
	}
	c.setPhase(PhaseFinished)
	c.later(c.restoreDelay, c.restore)
}

// restore loads the backed up script and, once it runs, its settings. The
// phase returns to Idle when the restore is done.
func (c *Competition) restore() {
	b := c.backup
	c.backup = nil
	if b == nil {
		c.setPhase(PhaseIdle)
		return
	}

	c.restoring = b
	failures := c.failures
	c.switchScript(b.script, func() {
		if len(b.settings) > 0 {
			c.updateModeSettings(b.settings)
		}
		if c.failures != failures {
			c.logger.Warn("session restore incomplete", "script", b.script, "failed_commands", c.failures-failures)
			c.whisper(b.admin, "$f00Couldn't restore the session from before the NightCup, please check the script and modesettings")
		} else {
			c.logger.Info("session restored", "script", b.script)
		}
		c.restoring = nil
		c.setPhase(PhaseIdle)
	})
}
