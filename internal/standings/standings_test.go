package standings

import (
	"fmt"
	"testing"
	"time"
)

func board(n int) []Row {
	rows := make([]Row, n)
	for i := range rows {
		rows[i] = Row{Login: fmt.Sprintf("p%d", i+1)}
	}
	return rows
}

func indexes(view []ViewRow) []int {
	out := make([]int, len(view))
	for i, r := range view {
		out[i] = r.Index
	}
	return out
}

func focusedCount(view []ViewRow) int {
	n := 0
	for _, r := range view {
		if r.Focused {
			n++
		}
	}
	return n
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProject(t *testing.T) {
	tests := []struct {
		name   string
		rows   int
		viewer string
		state  ViewerState
		layout Layout
		want   []int
	}{
		{
			name:   "window around focused row",
			rows:   50,
			viewer: "p30",
			layout: Layout{TopEntries: 5, Slots: 10},
			want:   []int{1, 2, 3, 4, 5, 28, 29, 30, 31, 32},
		},
		{
			name:   "even fill favors rows above",
			rows:   50,
			viewer: "p30",
			layout: Layout{TopEntries: 5, Slots: 11},
			want:   []int{1, 2, 3, 4, 5, 27, 28, 29, 30, 31, 32},
		},
		{
			name:   "window shifted up at the end",
			rows:   20,
			viewer: "p19",
			layout: Layout{TopEntries: 5, Slots: 10},
			want:   []int{1, 2, 3, 4, 5, 16, 17, 18, 19, 20},
		},
		{
			name:   "window clamped below the top",
			rows:   20,
			viewer: "p7",
			layout: Layout{TopEntries: 5, Slots: 10},
			want:   []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
		{
			name:   "focused in the top",
			rows:   20,
			viewer: "p2",
			layout: Layout{TopEntries: 5, Slots: 8},
			want:   []int{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name:   "unranked viewer sees the tail",
			rows:   20,
			viewer: "nobody",
			layout: Layout{TopEntries: 5, Slots: 8},
			want:   []int{1, 2, 3, 4, 5, 18, 19, 20},
		},
		{
			name:   "spectate target wins over viewer",
			rows:   50,
			viewer: "p2",
			state:  ViewerState{SpecTarget: "p40"},
			layout: Layout{TopEntries: 5, Slots: 8},
			want:   []int{1, 2, 3, 4, 5, 39, 40, 41},
		},
		{
			name:   "performance mode ignores focus",
			rows:   50,
			viewer: "p30",
			layout: Layout{TopEntries: 5, Slots: 8, Performance: true},
			want:   []int{1, 2, 3, 4, 5, 6, 7, 8},
		},
		{
			name:   "short board",
			rows:   3,
			viewer: "p3",
			layout: Layout{TopEntries: 5, Slots: 10},
			want:   []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := board(tt.rows)
			view := Project(rows, tt.viewer, tt.state, tt.layout)
			if got := indexes(view); !equalInts(got, tt.want) {
				t.Fatalf("indexes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProjectMarksSingleFocus(t *testing.T) {
	rows := board(50)
	view := Project(rows, "p30", ViewerState{}, Layout{TopEntries: 5, Slots: 10})
	if focusedCount(view) != 1 {
		t.Fatalf("expected exactly one focused row, got %d", focusedCount(view))
	}
	for _, r := range view {
		if r.Focused && r.Login != "p30" {
			t.Fatalf("wrong row focused: %s", r.Login)
		}
		if r.Top != (r.Index <= 5) {
			t.Fatalf("row %d has Top=%v", r.Index, r.Top)
		}
	}

	view = Project(rows, "nobody", ViewerState{}, Layout{TopEntries: 5, Slots: 10})
	if focusedCount(view) != 0 {
		t.Fatalf("unranked viewer should have no focused row")
	}
	if rows[29].Login != "p30" || len(rows) != 50 {
		t.Fatalf("Project modified its input")
	}
}

func TestViewers(t *testing.T) {
	v := NewViewers()

	if v.Toggle("a", false) != true || v.Toggle("a", true) != true {
		t.Fatalf("first toggle should enable the extended view")
	}
	if v.Toggle("a", false) != false {
		t.Fatalf("second toggle should disable it")
	}
	state := v.Get("a")
	if state.DuringPlay || !state.DuringSpectate {
		t.Fatalf("unexpected state %+v", state)
	}

	v.SetTarget("a", "b")
	v.SetTarget("c", "b")
	v.Forget("b")
	if v.Get("a").SpecTarget != "" || v.Get("c").SpecTarget != "" {
		t.Fatalf("spectate relations to a forgotten viewer should be dropped")
	}
	if got := v.Logins(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Logins() = %v", got)
	}

	v.Reset()
	if len(v.Logins()) != 0 {
		t.Fatalf("Reset should drop all viewers")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{FormatTime(61234 * time.Millisecond), "1:01.234"},
		{FormatTime(9500 * time.Millisecond), "9.500"},
		{FormatSplit(-1500 * time.Millisecond), "-1.500"},
		{FormatSplit(0), "+0.000"},
		{FormatSeconds(60), "1:00"},
		{FormatSeconds(2700), "45:00"},
		{FormatSeconds(5), "0:05"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
