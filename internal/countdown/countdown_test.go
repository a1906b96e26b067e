package countdown

import (
	"testing"
	"time"
)

func TestCountdownTicksThenCompletes(t *testing.T) {
	sched := NewManual()
	var ticks []int
	done := false

	c := Start(sched, 3, func(remaining int) { ticks = append(ticks, remaining) }, func() { done = true })

	if len(ticks) != 1 || ticks[0] != 3 {
		t.Fatalf("first tick should fire immediately, got %v", ticks)
	}

	sched.Advance(2 * time.Second)
	if done {
		t.Fatalf("countdown completed early")
	}
	if len(ticks) != 3 || ticks[2] != 1 {
		t.Fatalf("unexpected ticks %v", ticks)
	}

	sched.Advance(time.Second)
	if !done {
		t.Fatalf("countdown should have completed")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done channel not closed")
	}
}

func TestCountdownZeroRunsImmediately(t *testing.T) {
	for _, seconds := range []int{0, -1} {
		done := false
		ticked := false
		Start(NewManual(), seconds, func(int) { ticked = true }, func() { done = true })
		if !done || ticked {
			t.Fatalf("seconds=%d: done=%v ticked=%v", seconds, done, ticked)
		}
	}
}

func TestCountdownCancel(t *testing.T) {
	sched := NewManual()
	done := false

	c := Start(sched, 5, nil, func() { done = true })
	sched.Advance(2 * time.Second)
	c.Cancel()
	c.Cancel()

	sched.Advance(10 * time.Second)
	if done {
		t.Fatalf("cancelled countdown must not complete")
	}
	if sched.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", sched.Pending())
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done channel should close on cancel")
	}
}

func TestManualOrdersBySchedule(t *testing.T) {
	sched := NewManual()
	var order []string

	sched.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	sched.AfterFunc(time.Second, func() {
		order = append(order, "a")
		sched.AfterFunc(time.Second, func() { order = append(order, "c") })
	})

	sched.Advance(3 * time.Second)
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("unexpected order %v", order)
	}
}
