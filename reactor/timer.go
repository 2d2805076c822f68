//go:build linux
// +build linux

package reactor

import (
	"container/heap"
	"time"
)

// Timer is a task that completes once its deadline passed.
type Timer struct {
	loop    *Loop
	when    time.Time
	waker   Waker
	armed   bool
	fired   bool
	stopped bool
}

// After returns a timer task that completes d after its first poll.
func (l *Loop) After(d time.Duration) *Timer {
	return &Timer{loop: l, when: time.Now().Add(d)}
}

// Poll completes once the deadline passed.
func (t *Timer) Poll(cx *Context) (Status, error) {
	if t.fired {
		return Complete, nil
	}
	if !time.Now().Before(t.when) {
		t.fired = true
		return Complete, nil
	}
	t.waker = cx.Waker()
	if !t.armed {
		t.armed = true
		heap.Push(&t.loop.timers, t)
	}
	return Pending, nil
}

// Stop keeps the timer from waking its task. It reports whether the timer
// had not fired yet.
func (t *Timer) Stop() bool {
	t.stopped = true
	return !t.fired
}

// Deadline returns the time at which the timer fires.
func (t *Timer) Deadline() time.Time { return t.when }

type timerHeap []*Timer

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }
func (h timerHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*Timer))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// fireTimers wakes the tasks of every timer whose deadline is not after now.
func (l *Loop) fireTimers(now time.Time) {
	for len(l.timers) > 0 && !l.timers[0].when.After(now) {
		t := heap.Pop(&l.timers).(*Timer)
		if t.stopped {
			continue
		}
		t.fired = true
		t.waker.Wake()
	}
}

// nextTimeout returns the epoll timeout in milliseconds until the earliest
// timer, or -1 when no timer is pending.
func (l *Loop) nextTimeout(now time.Time) int {
	for len(l.timers) > 0 && l.timers[0].stopped {
		heap.Pop(&l.timers)
	}
	if len(l.timers) == 0 {
		return -1
	}
	d := l.timers[0].when.Sub(now)
	if d <= 0 {
		return 0
	}
	// Round up so the loop never wakes just before the deadline.
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	return ms
}
