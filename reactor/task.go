//go:build linux
// +build linux

package reactor

import "fmt"

// Status is the result of polling a Task once.
type Status uint8

const (
	// Pending means the task parked itself and must be woken to make progress.
	Pending Status = iota
	// Complete means the task finished; the error returned alongside is its result.
	Complete
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Complete:
		return "Complete"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Task is a unit of cooperative work. Poll must not block. When it returns
// Pending it must have arranged for cx.Waker() to be woken once progress is
// possible, otherwise it is never polled again.
//
// A task is not polled again after it returned Complete.
type Task interface {
	Poll(cx *Context) (Status, error)
}

// TaskFunc adapts a function to a Task.
type TaskFunc func(cx *Context) (Status, error)

// Poll calls f(cx).
func (f TaskFunc) Poll(cx *Context) (Status, error) { return f(cx) }

// Context is handed to a task each time it is polled.
type Context struct {
	loop *Loop
	id   taskID
}

// Waker returns the waker of the task being polled.
func (cx *Context) Waker() Waker { return Waker{loop: cx.loop, id: cx.id} }

// Loop returns the loop polling the task.
func (cx *Context) Loop() *Loop { return cx.loop }

// Waker reschedules a parked task. The zero Waker is valid and does nothing.
// Wake must be called from the loop goroutine.
type Waker struct {
	loop *Loop
	id   taskID
}

// Wake queues the task for polling. Waking a task that already completed, or
// that is already queued, is a no-op.
func (w Waker) Wake() {
	if w.loop == nil {
		return
	}
	w.loop.wake(w.id)
}

// IsZero reports whether w refers to no task.
func (w Waker) IsZero() bool { return w.loop == nil }

// SelectTask completes as soon as either of its two tasks completes.
type SelectTask struct {
	arms   [2]Task
	winner int
}

// Select races a against b. The losing task is abandoned: it is never polled
// again.
func Select(a, b Task) *SelectTask {
	return &SelectTask{arms: [2]Task{a, b}, winner: -1}
}

// Poll polls both arms in order, first arm first.
func (s *SelectTask) Poll(cx *Context) (Status, error) {
	if s.winner >= 0 {
		return Complete, nil
	}
	for i, t := range s.arms {
		st, err := t.Poll(cx)
		if st == Complete {
			s.winner = i
			return Complete, err
		}
	}
	return Pending, nil
}

// Winner returns 0 or 1 for the arm that completed first, or -1 while the
// select is still pending.
func (s *SelectTask) Winner() int { return s.winner }

// JoinTask completes once all of its tasks completed, or as soon as one of
// them fails.
type JoinTask struct {
	tasks []Task
	done  []bool
}

// Join waits for all tasks.
func Join(tasks ...Task) *JoinTask {
	return &JoinTask{tasks: tasks, done: make([]bool, len(tasks))}
}

// Poll polls every task that has not completed yet.
func (j *JoinTask) Poll(cx *Context) (Status, error) {
	remaining := 0
	for i, t := range j.tasks {
		if j.done[i] {
			continue
		}
		st, err := t.Poll(cx)
		if st == Complete {
			j.done[i] = true
			if err != nil {
				return Complete, err
			}
			continue
		}
		remaining++
	}
	if remaining > 0 {
		return Pending, nil
	}
	return Complete, nil
}
