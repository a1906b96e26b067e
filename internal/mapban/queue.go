// Package mapban runs the turn based map ban phase of a match.
package mapban

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var (
	ErrBanningComplete = errors.New("banning complete")
	ErrDuplicateTurn   = errors.New("login already had a turn")
	ErrInvalidIndex    = errors.New("invalid map index")
	ErrNotYourTurn     = errors.New("not your turn")
)

type Map struct {
	UID           string
	Name          string
	FinishTimeout time.Duration
}

// Queue hands out ban turns in FIFO order and keeps the shared map pool.
// Banning stops once the pool holds only the required number of maps.
type Queue struct {
	turns    []string
	had      map[string]bool
	pool     []Map
	required int
	current  string
	closed   bool
	changed  chan struct{}
	mu       sync.Mutex
}

func NewQueue(pool []Map, required int) *Queue {
	return &Queue{
		had:      make(map[string]bool),
		pool:     slices.Clone(pool),
		required: required,
		changed:  make(chan struct{}),
	}
}

// Enqueue gives login one turn in this ban phase.
func (q *Queue) Enqueue(login string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.complete() {
		return ErrBanningComplete
	}
	if q.had[login] {
		return fmt.Errorf("enqueue %s: %w", login, ErrDuplicateTurn)
	}
	q.had[login] = true
	q.turns = append(q.turns, login)
	q.notify()
	return nil
}

// Close marks that no more turns will be enqueued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notify()
}

// Next blocks until a turn is available and returns its login. It returns
// ErrBanningComplete once the pool reached the required size, or when the
// queue is closed and drained.
func (q *Queue) Next(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if q.complete() {
			q.current = ""
			q.mu.Unlock()
			return "", ErrBanningComplete
		}
		if len(q.turns) > 0 {
			login := q.turns[0]
			q.turns = q.turns[1:]
			q.current = login
			q.mu.Unlock()
			return login, nil
		}
		if q.closed {
			q.current = ""
			q.mu.Unlock()
			return "", ErrBanningComplete
		}
		changed := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		}
	}
}

// Eliminate removes the map at the 1-based display index and ends the
// current turn.
func (q *Queue) Eliminate(index int) (Map, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eliminate(index)
}

// EliminateFor is Eliminate restricted to the login holding the turn.
func (q *Queue) EliminateFor(login string, index int) (Map, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current == "" || q.current != login {
		return Map{}, ErrNotYourTurn
	}
	return q.eliminate(index)
}

func (q *Queue) eliminate(index int) (Map, error) {
	if q.complete() {
		return Map{}, ErrBanningComplete
	}
	if index < 1 || index > len(q.pool) {
		return Map{}, fmt.Errorf("ban %d of %d maps: %w", index, len(q.pool), ErrInvalidIndex)
	}

	banned := q.pool[index-1]
	q.pool = slices.Delete(q.pool, index-1, index)
	q.current = ""
	q.notify()
	return banned, nil
}

func (q *Queue) Pool() []Map {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.pool)
}

// Current is the login holding the turn, if any.
func (q *Queue) Current() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Complete reports whether the pool reached the required size.
func (q *Queue) Complete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.complete()
}

func (q *Queue) complete() bool {
	return len(q.pool) <= q.required
}

func (q *Queue) notify() {
	close(q.changed)
	q.changed = make(chan struct{})
}
