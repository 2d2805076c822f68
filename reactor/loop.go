//go:build linux
// +build linux

package reactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eapache/queue"
)

var (
	// ErrReentrant is returned when BlockOn is called from inside a task.
	ErrReentrant = errors.New("reactor: loop is already running")

	// ErrClosed is returned by operations on a closed loop.
	ErrClosed = errors.New("reactor: loop closed")

	// ErrUnknownToken is returned when deregistering a token the loop does
	// not know about.
	ErrUnknownToken = errors.New("reactor: unknown token")
)

// Token identifies a registration with a Loop. Tokens are not reused while
// the loop is alive.
type Token uint32

// Ready is a set of readiness events reported for a registration.
type Ready uint8

const (
	Readable Ready = 1 << iota
	Writable
	Hangup
	Error
)

func (r Ready) String() string {
	if r == 0 {
		return "none"
	}
	s := ""
	for _, f := range []struct {
		bit  Ready
		name string
	}{{Readable, "readable"}, {Writable, "writable"}, {Hangup, "hangup"}, {Error, "error"}} {
		if r&f.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += f.name
	}
	return s
}

// Source receives readiness events for a registered descriptor. Ready is
// called on the loop goroutine.
type Source interface {
	Ready(r Ready)
}

type registration struct {
	fd   int
	src  Source
	last Ready
}

type taskID uint64

type taskState struct {
	task   Task
	queued bool
	join   *JoinHandle
}

// Loop is a single-goroutine cooperative scheduler. Its methods must be
// called from the goroutine running BlockOn, or while no BlockOn is in
// progress. Only the cancellation of the context given to BlockOn may come
// from another goroutine.
type Loop struct {
	poller  *poller
	regs    map[Token]*registration
	nextTok Token

	tasks  map[taskID]*taskState
	nextID taskID
	runq   *queue.Queue
	timers timerHeap

	running bool
	closed  bool
}

// New creates a loop backed by a fresh epoll instance.
func New() (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, err
	}
	return &Loop{
		poller:  p,
		regs:    make(map[Token]*registration),
		nextTok: wakeToken + 1,
		tasks:   make(map[taskID]*taskState),
		nextID:  1,
		runq:    queue.New(),
	}, nil
}

// Register enrolls fd with the loop. src is told about every readiness
// change until the token is deregistered.
func (l *Loop) Register(fd int, src Source) (Token, error) {
	if l.closed {
		return 0, ErrClosed
	}
	tok := l.nextTok
	if err := l.poller.add(fd, tok); err != nil {
		return 0, err
	}
	l.nextTok++
	if l.nextTok == wakeToken {
		l.nextTok++
	}
	l.regs[tok] = &registration{fd: fd, src: src}
	return tok, nil
}

// Deregister removes a registration. It must be called before the
// descriptor is closed: epoll keeps watching the open file description for
// as long as any duplicate of it is open.
func (l *Loop) Deregister(tok Token) error {
	reg, ok := l.regs[tok]
	if !ok {
		return fmt.Errorf("deregister %d: %w", tok, ErrUnknownToken)
	}
	delete(l.regs, tok)
	if l.closed {
		return nil
	}
	return l.poller.del(reg.fd)
}

// Readiness returns the last readiness delivered for tok. ok is false when
// tok is not registered.
func (l *Loop) Readiness(tok Token) (r Ready, ok bool) {
	reg, ok := l.regs[tok]
	if !ok {
		return 0, false
	}
	return reg.last, true
}

// Spawn schedules t to run on the loop. It makes progress only while
// BlockOn is running. The returned handle is itself a task that completes
// with t's result.
func (l *Loop) Spawn(t Task) *JoinHandle {
	h := &JoinHandle{}
	id := l.spawn(t)
	l.tasks[id].join = h
	return h
}

func (l *Loop) spawn(t Task) taskID {
	id := l.nextID
	l.nextID++
	l.tasks[id] = &taskState{task: t}
	l.wake(id)
	return id
}

func (l *Loop) wake(id taskID) {
	ts, ok := l.tasks[id]
	if !ok || ts.queued {
		return
	}
	ts.queued = true
	l.runq.Add(id)
}

// BlockOn runs the loop until t completes and returns its result. Tasks
// spawned before or during the call make progress alongside t.
//
// If ctx is done first, t is abandoned and ctx.Err() is returned.
func (l *Loop) BlockOn(ctx context.Context, t Task) error {
	if l.closed {
		return ErrClosed
	}
	if l.running {
		return ErrReentrant
	}
	l.running = true
	defer func() { l.running = false }()

	stop := context.AfterFunc(ctx, func() { _ = l.poller.wake() })
	defer stop()

	main := l.spawn(t)
	defer delete(l.tasks, main)

	for {
		l.fireTimers(time.Now())
		for l.runq.Length() > 0 {
			id := l.runq.Remove().(taskID)
			ts, ok := l.tasks[id]
			if !ok {
				continue
			}
			ts.queued = false
			st, err := l.poll(id, ts.task)
			if st != Complete {
				continue
			}
			delete(l.tasks, id)
			if id == main {
				return err
			}
			if ts.join != nil {
				ts.join.finish(err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.poller.wait(l.nextTimeout(time.Now()), l.dispatch); err != nil {
			return err
		}
	}
}

// poll runs one poll of a task, turning a panic into an error result.
func (l *Loop) poll(id taskID, t Task) (st Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			st, err = Complete, fmt.Errorf("reactor: task panicked: %v", r)
		}
	}()
	return t.Poll(&Context{loop: l, id: id})
}

func (l *Loop) dispatch(tok Token, r Ready) {
	reg, ok := l.regs[tok]
	if !ok {
		// Deregistered while the event was in flight.
		return
	}
	reg.last = r
	reg.src.Ready(r)
}

// Close releases the epoll instance. Registrations are dropped without
// touching their descriptors.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.poller.close()
}

// JoinHandle observes the result of a spawned task.
type JoinHandle struct {
	done  bool
	err   error
	waker Waker
}

func (h *JoinHandle) finish(err error) {
	h.done, h.err = true, err
	h.waker.Wake()
}

// Poll completes with the spawned task's result once it finished.
func (h *JoinHandle) Poll(cx *Context) (Status, error) {
	if h.done {
		return Complete, h.err
	}
	h.waker = cx.Waker()
	return Pending, nil
}

// Done reports whether the spawned task finished.
func (h *JoinHandle) Done() bool { return h.done }

// Err returns the spawned task's result, nil while it is still running.
func (h *JoinHandle) Err() error { return h.err }
