// Package countdown runs second-granularity countdowns on top of a
// replaceable timer source.
package countdown

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after d. The returned function cancels the pending call.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Wall schedules on real timers.
var Wall Scheduler = wallClock{}

// Countdown calls onTick once per second with the remaining seconds and
// onDone when it reaches zero. A cancelled countdown never calls onDone.
type Countdown struct {
	sched  Scheduler
	onTick func(remaining int)
	onDone func()

	mu        sync.Mutex
	remaining int
	cancel    func()
	stopped   bool

	done     chan struct{}
	doneOnce sync.Once
}

// Start begins a countdown of the given seconds. With seconds <= 0 onDone runs
// before Start returns.
func Start(sched Scheduler, seconds int, onTick func(remaining int), onDone func()) *Countdown {
	if sched == nil {
		sched = Wall
	}
	c := &Countdown{
		sched:     sched,
		onTick:    onTick,
		onDone:    onDone,
		remaining: seconds,
		done:      make(chan struct{}),
	}

	if seconds <= 0 {
		c.finish(true)
		return c
	}

	c.tick()
	return c
}

func (c *Countdown) tick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	remaining := c.remaining
	c.mu.Unlock()

	if remaining <= 0 {
		c.finish(true)
		return
	}

	if c.onTick != nil {
		c.onTick(remaining)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.remaining--
	c.cancel = c.sched.AfterFunc(time.Second, c.tick)
}

func (c *Countdown) finish(run bool) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()

		if run && c.onDone != nil {
			c.onDone()
		}
		close(c.done)
	})
}

// Cancel stops the countdown. It is safe to call more than once.
func (c *Countdown) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.finish(false)
}

// Done is closed once the countdown completed or was cancelled.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Manual is a Scheduler driven by Advance, used to step countdowns
// deterministically.
type Manual struct {
	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	pending []*manualTimer
}

type manualTimer struct {
	due       time.Duration
	seq       uint64
	fn        func()
	cancelled bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, fn: fn}
	m.pending = append(m.pending, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.cancelled = true
	}
}

// Advance moves the clock forward by d and fires every timer that became due,
// including timers scheduled by the fired callbacks.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.popDue(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		m.mu.Unlock()

		next.fn()
	}
}

// Pending counts timers that have not fired or been cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.pending {
		if !t.cancelled {
			count++
		}
	}
	return count
}

func (m *Manual) popDue(target time.Duration) *manualTimer {
	live := m.pending[:0]
	for _, t := range m.pending {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.pending = live

	sort.Slice(m.pending, func(i, j int) bool {
		if m.pending[i].due != m.pending[j].due {
			return m.pending[i].due < m.pending[j].due
		}
		return m.pending[i].seq < m.pending[j].seq
	})

	if len(m.pending) == 0 || m.pending[0].due > target {
		return nil
	}
	next := m.pending[0]
	m.pending = m.pending[1:]
	return next
}
