package competition

import (
	"slices"
	"strconv"

	"github.com/siohaza/nightcup/internal/ranking"
	"github.com/siohaza/nightcup/internal/standings"
)

// Status is a read-only summary of the competition.
type Status struct {
	Phase       string   `json:"phase"`
	Admin       string   `json:"admin,omitempty"`
	Round       int      `json:"round"`
	Title       string   `json:"title,omitempty"`
	Qualified   []string `json:"qualified"`
	Whitelist   []string `json:"whitelist"`
	RequiredKOs int      `json:"required_kos"`
	Winner      string   `json:"winner,omitempty"`
}

func (c *Competition) Status() Status {
	return Status{
		Phase:       c.phase.String(),
		Admin:       c.admin,
		Round:       c.round,
		Title:       c.title,
		Qualified:   c.Qualified(),
		Whitelist:   c.Whitelisted(),
		RequiredKOs: c.RequiredKOs(),
		Winner:      c.winner,
	}
}

// Rows decorates the active board for display.
func (c *Competition) Rows() []standings.Row {
	switch c.engine.Mode() {
	case ranking.ModeTimeAttack:
		return c.timeAttackRows()
	case ranking.ModeKnockout:
		return c.knockoutRows()
	}
	return nil
}

func (c *Competition) timeAttackRows() []standings.Row {
	board := c.engine.TimeAttack()
	q := board.QualifiedCount()

	rows := make([]standings.Row, 0, len(board.Entries))
	pos, finished := 0, 0
	for _, e := range board.Entries {
		// whitelisted finishers still take a qualifying place
		cut := e.Finished() && finished >= q
		if e.Finished() {
			finished++
		}
		row := standings.Row{
			Login:      e.Login,
			Nickname:   e.Nickname,
			Checkpoint: e.Checkpoint,
			Time:       e.BestScore,
			Split:      e.Split,
		}
		if slices.Contains(c.whitelist, e.Login) {
			row.Rank = "-"
			row.Whitelisted = true
		} else {
			pos++
			row.Rank = strconv.Itoa(pos)
			row.VirtualQualified = e.Finished() && !cut
			row.VirtualEliminated = cut
		}
		rows = append(rows, row)
	}
	return rows
}

func (c *Competition) knockoutRows() []standings.Row {
	board := c.engine.Knockout()
	survivors := len(c.qualified) - ranking.RequiredKOs(len(c.qualified))

	rows := make([]standings.Row, 0, len(board.Entries))
	pos := 0
	for i, p := range board.Entries {
		row := standings.Row{
			Login:      p.Login,
			Nickname:   p.Nickname,
			Rank:       strconv.Itoa(i + 1),
			Checkpoint: p.Checkpoint,
			Time:       p.Time,
		}
		if slices.Contains(c.qualified, p.Login) {
			row.VirtualQualified = pos < survivors
			row.VirtualEliminated = !row.VirtualQualified
			pos++
		}
		rows = append(rows, row)
	}
	return rows
}

// View projects the board for a single viewer.
func (c *Competition) View(viewer string) standings.View {
	p, _ := c.directory.Get(viewer)
	state := c.viewers.Get(viewer)
	if !p.Spectator {
		state.SpecTarget = ""
	} else if state.SpecTarget == "" {
		state.SpecTarget = p.SpectatorTarget
	}

	return standings.View{
		Title:    c.title,
		Extended: c.engine.Mode() == ranking.ModeTimeAttack && state.Extended(p.Spectator),
		Rows:     standings.Project(c.Rows(), viewer, state, c.layout),
	}
}

// Refresh presents the board to every online player.
func (c *Competition) Refresh() {
	if c.engine.Mode() == ranking.ModeNone {
		return
	}
	for _, login := range c.directory.OnlineLogins() {
		c.present(login)
	}
}

func (c *Competition) present(viewer string) {
	if c.engine.Mode() == ranking.ModeNone {
		return
	}
	if err := c.presenter.Present(viewer, c.View(viewer)); err != nil {
		c.logger.Debug("failed to present standings", "viewer", viewer, "error", err)
	}
}
