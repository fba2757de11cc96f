/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sched provides cancellable scheduled tasks whose callbacks are run
// on their owner's event queue instead of on a timer goroutine.
package sched

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Post hands a callback to the owner's event queue. It must not block
// indefinitely once the owner has shut down.
type Post func(func())

// Scheduler creates tasks on a clock and delivers their callbacks via post.
type Scheduler struct {
	clock clockwork.Clock
	post  Post
}

func New(clock clockwork.Clock, post Post) *Scheduler {
	return &Scheduler{
		clock: clock,
		post:  post,
	}
}

func (s *Scheduler) Clock() clockwork.Clock { return s.clock }

// Task is a pending scheduled callback.
//
// Cancel must be called from the owner's event queue. Because the callback
// is also run there, a callback that was already queued when the task was
// cancelled sees the cancellation and does nothing.
type Task struct {
	stop      chan struct{}
	once      sync.Once
	cancelled bool
}

func newTask() *Task {
	return &Task{stop: make(chan struct{})}
}

func (t *Task) Cancel() {
	t.cancelled = true
	t.once.Do(func() { close(t.stop) })
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancelled }

func (t *Task) run(f func()) func() {
	return func() {
		if t.cancelled {
			return
		}
		f()
	}
}

// After runs f once, d from now.
func (s *Scheduler) After(d time.Duration, f func()) *Task {
	t := newTask()
	timer := s.clock.NewTimer(d)

	go func() {
		select {
		case <-timer.Chan():
			s.post(t.run(func() {
				t.once.Do(func() { close(t.stop) })
				f()
			}))
		case <-t.stop:
			stopAndDrainTimer(timer)
		}
	}()

	return t
}

// Every runs f every d until cancelled.
func (s *Scheduler) Every(d time.Duration, f func()) *Task {
	t := newTask()
	ticker := s.clock.NewTicker(d)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				s.post(t.run(f))
			case <-t.stop:
				return
			}
		}
	}()

	return t
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// Slot holds at most one task of a kind: either nothing or one pending task.
type Slot struct {
	task *Task
}

// Set cancels whatever the slot held and stores t.
func (s *Slot) Set(t *Task) {
	s.Cancel()
	s.task = t
}

// Cancel cancels the held task, if any, and empties the slot.
func (s *Slot) Cancel() {
	if s.task != nil {
		s.task.Cancel()
		s.task = nil
	}
}

// Clear empties the slot without cancelling, for tasks that have fired.
func (s *Slot) Clear() {
	s.task = nil
}

func (s *Slot) Pending() bool {
	return s.task != nil && !s.task.cancelled
}
