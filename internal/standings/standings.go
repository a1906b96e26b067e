// Package standings projects a ranking board into the windowed view shown
// to a single viewer.
package standings

import (
	"fmt"
	"time"
)

// Row is one ranked line of the board, already decorated by the competition.
type Row struct {
	Login             string        `json:"login"`
	Nickname          string        `json:"nickname"`
	Rank              string        `json:"rank"`
	Checkpoint        int           `json:"checkpoint"`
	Time              time.Duration `json:"time"`
	Split             time.Duration `json:"split"`
	VirtualQualified  bool          `json:"virtual_qualified"`
	VirtualEliminated bool          `json:"virtual_eliminated"`
	Whitelisted       bool          `json:"whitelisted"`
}

type ViewRow struct {
	Row
	// Index is the 1-based position of the row on the full board.
	Index   int  `json:"index"`
	Focused bool `json:"focused"`
	Top     bool `json:"top"`
}

type View struct {
	Title    string    `json:"title"`
	Extended bool      `json:"extended"`
	Rows     []ViewRow `json:"rows"`
}

type Layout struct {
	TopEntries  int
	Slots       int
	Performance bool
}

// ViewerState is the per-viewer toggle state of the widget.
type ViewerState struct {
	DuringPlay     bool   `json:"during_play"`
	DuringSpectate bool   `json:"during_spectate"`
	SpecTarget     string `json:"spec_target,omitempty"`
}

// Extended reports whether the viewer wants the extended columns right now.
func (s ViewerState) Extended(spectating bool) bool {
	if spectating {
		return s.DuringSpectate
	}
	return s.DuringPlay
}

// Project returns the rows the viewer sees: the top entries, followed by a
// contiguous block around the focused row (the spectate target when set,
// otherwise the viewer). Without a focused row past the top the block is the
// tail of the board. rows is not modified.
func Project(rows []Row, viewer string, state ViewerState, layout Layout) []ViewRow {
	top := max(layout.TopEntries, 0)
	slots := max(layout.Slots, top)

	focus := viewer
	if state.SpecTarget != "" {
		focus = state.SpecTarget
	}
	focused := -1
	for i, r := range rows {
		if r.Login == focus {
			focused = i
			break
		}
	}

	out := make([]ViewRow, 0, min(slots, len(rows)))
	add := func(from, to int) {
		from = max(from, 0)
		to = min(to, len(rows))
		for i := from; i < to; i++ {
			out = append(out, ViewRow{
				Row:     rows[i],
				Index:   i + 1,
				Focused: i == focused,
				Top:     i < top,
			})
		}
	}

	add(0, top)
	if len(rows) <= top {
		return out
	}

	fill := slots - top
	switch {
	case layout.Performance:
		add(top, slots)
	case focused < 0:
		add(max(len(rows)-fill, top), len(rows))
	case focused < top:
		add(top, slots)
	default:
		// with an even fill the extra row goes above the focused one
		above := fill / 2
		start := focused - above
		if end := start + fill; end > len(rows) {
			start -= end - len(rows)
		}
		start = max(start, top)
		add(start, start+fill)
	}

	return out
}

// FormatTime renders a race time as m:ss.mmm, or s.mmm below a minute.
func FormatTime(d time.Duration) string {
	if d < 0 {
		return "-" + FormatTime(-d)
	}
	ms := d.Milliseconds()
	minutes := ms / 60000
	seconds := (ms / 1000) % 60
	millis := ms % 1000
	if minutes > 0 {
		return fmt.Sprintf("%d:%02d.%03d", minutes, seconds, millis)
	}
	return fmt.Sprintf("%d.%03d", seconds, millis)
}

// FormatSeconds renders a countdown as m:ss.
func FormatSeconds(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatSplit renders a split with an explicit sign.
func FormatSplit(d time.Duration) string {
	if d < 0 {
		return "-" + FormatTime(-d)
	}
	return "+" + FormatTime(d)
}
