package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/siohaza/nightcup/internal/competition"
	"github.com/siohaza/nightcup/internal/mapban"
	"github.com/siohaza/nightcup/pkg/lua"
)

var (
	ErrMatchRunning = errors.New("a match is already running")
	ErrNoMatch      = errors.New("no map ban is running")
	ErrNoMatchMaps  = errors.New("no match maps configured")
)

// handleCommand runs a prefixed chat message as a Lua command and reports
// whether the message was consumed.
func (s *Server) handleCommand(login, message string) bool {
	prefix := s.config.Server.CommandPrefix
	if !strings.HasPrefix(message, prefix) {
		return false
	}

	fields := strings.Fields(strings.TrimPrefix(message, prefix))
	if len(fields) == 0 {
		return false
	}

	caller := lua.Caller{
		Login:    login,
		Nickname: s.players.Nickname(login),
		Admin:    s.config.Server.IsAdmin(login),
	}

	reply, err := s.luaCommands.Execute(caller, fields[0], fields[1:])
	if errors.Is(err, lua.ErrUnknownCommand) {
		return false
	}
	if err != nil {
		s.logger.Warn("command failed", "login", login, "command", fields[0], "error", err)
		s.whisper(login, "$f00"+err.Error())
		return true
	}

	if reply != "" {
		s.whisper(login, reply)
	}
	return true
}

func (s *Server) whisper(login, message string) {
	s.sendChat(message, login)
}

// sendChat sends message with the cup prefix.
func (s *Server) sendChat(message string, recipients ...string) {
	prefix := s.settings.String(competition.SettingChatPrefix)
	if err := s.relay.Send(prefix+message, recipients...); err != nil {
		s.logger.Warn("failed to send chat message", "error", err)
	}
}

// controller implements lua.Controller. Its methods run on the loop.
type controller struct {
	s *Server
}

func (c controller) Start(admin string) error           { return c.s.comp.Start(admin) }
func (c controller) Stop(by string) error               { return c.s.comp.Stop(by) }
func (c controller) AddQualified(login string) error    { return c.s.comp.AddQualified(login) }
func (c controller) RemoveQualified(login string) error { return c.s.comp.RemoveQualified(login) }
func (c controller) Whitelist(login string) error       { return c.s.comp.Whitelist(login) }
func (c controller) Unwhitelist(login string) error     { return c.s.comp.Unwhitelist(login) }
func (c controller) RemoveStanding(login string) error  { return c.s.comp.RemoveStanding(login) }

func (c controller) UpdateSetting(name, value string) error {
	return c.s.comp.UpdateSetting(name, value)
}

func (c controller) Settings() []competition.Setting {
	return c.s.settings.All()
}

func (c controller) Announce(message string) {
	c.s.comp.Announce(message)
}

func (c controller) Status() competition.Status {
	return c.s.comp.Status()
}

func (c controller) SendChat(message string, recipients ...string) {
	c.s.sendChat(message, recipients...)
}

// StartMatch switches the session to the cup script and opens the map ban
// for entrants, in the given order.
func (c controller) StartMatch(entrants []string) error {
	if c.s.comp.Phase().Active() {
		return competition.ErrAlreadyActive
	}
	if c.s.matchRunning() {
		return ErrMatchRunning
	}
	if len(c.s.config.Match.Maps) == 0 {
		return ErrNoMatchMaps
	}
	for _, login := range entrants {
		if _, ok := c.s.players.Get(login); !ok {
			return fmt.Errorf("match entrant %s: %w", login, competition.ErrUnknownPlayer)
		}
	}

	maps := make([]mapban.Map, len(c.s.config.Match.Maps))
	for i, m := range c.s.config.Match.Maps {
		maps[i] = mapban.Map{
			UID:           m.UID,
			Name:          m.Name,
			FinishTimeout: time.Duration(m.FinishTimeout) * time.Second,
		}
	}

	match := mapban.NewMatch(mapban.MatchConfig{
		Control:      loopControl{s: c.s},
		Chat:         loopChat{s: c.s},
		Logger:       c.s.logger.With("component", "mapban"),
		Script:       c.s.config.Match.Script,
		Maps:         maps,
		RequiredMaps: c.s.config.Match.RequiredMaps,
		ChatPrefix:   c.s.settings.String(competition.SettingChatPrefix),
	})
	c.s.match = match

	// Begin issues session commands through the loop, so it cannot run here.
	timeout := 3 * c.s.config.Server.CommandTimeout()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := match.Begin(ctx, entrants); err != nil {
			c.s.logger.Warn("failed to begin match", "error", err)
			c.s.post(func() {
				if c.s.match == match {
					c.s.match = nil
				}
				c.s.sendChat("$f00Couldn't start the match: " + err.Error())
			})
		}
	}()

	c.s.logger.Info("match requested", "entrants", len(entrants))
	return nil
}

func (s *Server) matchRunning() bool {
	if s.match == nil {
		return false
	}
	select {
	case <-s.match.Done():
		return false
	default:
		return true
	}
}

// Ban bans the map at the 1-based index for login and returns its name.
func (c controller) Ban(login string, index int) (string, error) {
	if c.s.match == nil {
		return "", ErrNoMatch
	}
	banned, err := c.s.match.Ban(login, index)
	if err != nil {
		return "", err
	}
	return banned.Name, nil
}

func (c controller) ReloadCommands() error {
	if err := c.s.luaCommands.Reload(c.s.config.Server.CommandsDir, c.s.luaAPI); err != nil {
		return fmt.Errorf("reload commands: %w", err)
	}
	return nil
}
