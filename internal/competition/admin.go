package competition

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/siohaza/nightcup/internal/session"
)

// AddQualified puts an online player into the knockout bracket.
func (c *Competition) AddQualified(login string) error {
	if !c.phase.Active() {
		return ErrNotActive
	}
	if !slices.Contains(c.directory.OnlineLogins(), login) {
		return fmt.Errorf("add qualified %s: %w", login, ErrUnknownPlayer)
	}
	if slices.Contains(c.qualified, login) {
		return fmt.Errorf("add qualified %s: %w", login, ErrAlreadyQualified)
	}

	c.qualified = append(c.qualified, login)
	c.updateContention()
	c.say(fmt.Sprintf("Player %s%s has been added to the qualified list", c.nickname(login), chatReset))
	c.Refresh()
	return nil
}

func (c *Competition) RemoveQualified(login string) error {
	if !c.phase.Active() {
		return ErrNotActive
	}
	i := slices.Index(c.qualified, login)
	if i < 0 {
		return fmt.Errorf("remove qualified %s: %w", login, ErrNotQualified)
	}

	c.qualified = slices.Delete(c.qualified, i, i+1)
	c.updateContention()
	c.say(fmt.Sprintf("Player %s%s has been removed from the qualified list", c.nickname(login), chatReset))
	c.Refresh()
	return nil
}

// Whitelist exempts login from time attack qualification.
func (c *Competition) Whitelist(login string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return fmt.Errorf("whitelist: %w", ErrUnknownPlayer)
	}
	if slices.Contains(c.whitelist, login) {
		return fmt.Errorf("whitelist %s: %w", login, ErrAlreadyWhitelisted)
	}

	c.whitelist = append(c.whitelist, login)
	c.say(fmt.Sprintf("Added login %s to the whitelist", login))
	c.Refresh()
	return nil
}

func (c *Competition) Unwhitelist(login string) error {
	i := slices.Index(c.whitelist, login)
	if i < 0 {
		return fmt.Errorf("unwhitelist %s: %w", login, ErrNotWhitelisted)
	}

	c.whitelist = slices.Delete(c.whitelist, i, i+1)
	c.say(fmt.Sprintf("Removed login %s from the whitelist", login))
	c.Refresh()
	return nil
}

// RemoveStanding drops login from the live board.
func (c *Competition) RemoveStanding(login string) error {
	if !c.phase.Active() {
		return ErrNotActive
	}
	if !c.engine.Remove(login) {
		return fmt.Errorf("remove standing %s: %w", login, ErrUnknownPlayer)
	}
	c.Refresh()
	return nil
}

// UpdateSetting parses raw into the named setting. A rejected value leaves
// the setting unchanged.
func (c *Competition) UpdateSetting(name, raw string) error {
	if err := c.settings.Parse(name, raw); err != nil {
		return err
	}
	if name == SettingQualifiedPercentage {
		c.engine.SetPercentage(c.settings.Int(name))
		c.Refresh()
	}
	c.logger.Info("nightcup setting updated", "name", name, "value", raw)
	return nil
}

// Announce broadcasts message with the cup prefix.
func (c *Competition) Announce(message string) {
	c.say(message)
}

// HandleStandingsAction reacts to a click in a viewer's standings widget.
func (c *Competition) HandleStandingsAction(viewer, action string) error {
	switch {
	case action == "toggle_extended":
		p, _ := c.directory.Get(viewer)
		c.viewers.Toggle(viewer, p.Spectator)

	case strings.HasPrefix(action, "spec_"):
		target := strings.TrimPrefix(action, "spec_")
		p, ok := c.directory.Get(target)
		if !ok {
			return fmt.Errorf("spectate %s: %w", target, ErrUnknownPlayer)
		}
		if !p.Spectator {
			err := c.command("SpectateTarget", func(ctx context.Context) error {
				return session.SpectateTarget(ctx, c.control, viewer, target)
			})
			if err != nil {
				return err
			}
		}
		c.viewers.SetTarget(viewer, target)

	default:
		return fmt.Errorf("unknown standings action %q", action)
	}

	c.present(viewer)
	return nil
}
