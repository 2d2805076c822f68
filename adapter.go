//go:build linux
// +build linux

package serial

import (
	"github.com/luhtfiimanal/go-nbserial/reactor"
)

// Scheduler is the event demultiplexer a Port enrolls its descriptor with.
// *reactor.Loop implements it.
type Scheduler interface {
	Register(fd int, src reactor.Source) (reactor.Token, error)
	Deregister(tok reactor.Token) error
}

// Readiness is the answer to a readiness poll.
type Readiness uint8

const (
	NotReady Readiness = iota
	Ready
)

func (r Readiness) String() string {
	if r == Ready {
		return "Ready"
	}
	return "NotReady"
}

// direction is the cached readiness of one direction of the port.
type direction uint8

const (
	// unknown: no event and no failed attempt yet. An attempt is allowed.
	unknown direction = iota
	ready
	notReady
)

// half tracks one direction and the task parked on it.
type half struct {
	state  direction
	waiter reactor.Waker
	// hup is sticky: once the line hung up or reported an error, an empty
	// attempt means end of stream rather than "nothing yet".
	hup bool
}

func (h *half) poll(cx *reactor.Context) Readiness {
	if h.state != notReady {
		return Ready
	}
	if cx != nil {
		h.waiter = cx.Waker()
	}
	return NotReady
}

// clear re-arms the direction after the raw port reported would-block.
func (h *half) clear() { h.state = notReady }

func (h *half) signal() {
	h.state = ready
	w := h.waiter
	h.waiter = reactor.Waker{}
	w.Wake()
}

// adapter couples a RawPort with its registration on a Scheduler and caches
// read and write readiness between attempts.
type adapter struct {
	raw   RawPort
	sched Scheduler
	tok   reactor.Token
	read  half
	write half
}

func register(raw RawPort, sched Scheduler) (*adapter, error) {
	a := &adapter{raw: raw, sched: sched}
	tok, err := sched.Register(raw.Fd(), a)
	if err != nil {
		return nil, err
	}
	a.tok = tok
	return a, nil
}

// Ready implements reactor.Source. Hangups and errors wake both directions
// so the next attempt surfaces the condition.
func (a *adapter) Ready(r reactor.Ready) {
	if r&(reactor.Hangup|reactor.Error) != 0 {
		a.read.hup = true
		a.write.hup = true
	}
	if r&(reactor.Readable|reactor.Hangup|reactor.Error) != 0 {
		a.read.signal()
	}
	if r&(reactor.Writable|reactor.Hangup|reactor.Error) != 0 {
		a.write.signal()
	}
}

func (a *adapter) pollReadReady(cx *reactor.Context) Readiness  { return a.read.poll(cx) }
func (a *adapter) pollWriteReady(cx *reactor.Context) Readiness { return a.write.poll(cx) }

// duplicate registers a duplicate of the raw port with sched.
func (a *adapter) duplicate(sched Scheduler) (*adapter, error) {
	raw, err := a.raw.Dup()
	if err != nil {
		return nil, err
	}
	d, err := register(raw, sched)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return d, nil
}

// close deregisters, releases the descriptor and wakes parked tasks so they
// observe the closed port.
func (a *adapter) close() error {
	err := a.sched.Deregister(a.tok)
	if cerr := a.raw.Close(); err == nil {
		err = cerr
	}
	a.read.signal()
	a.write.signal()
	return err
}
