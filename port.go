//go:build linux
// +build linux

package serial

import (
	"errors"
	"fmt"
	"io"

	"github.com/luhtfiimanal/go-nbserial/reactor"
)

// maxTimeoutRetries bounds how often one Read retries a spurious device
// timeout before giving up with ErrWouldBlock.
const maxTimeoutRetries = 1024

// Port is a non-blocking serial port registered with a Scheduler.
//
// Read, Write and Flush never block. When the device cannot make progress
// they return an error matching ErrWouldBlock, and the caller waits for
// PollReadReady or PollWriteReady to report Ready before trying again.
//
// A Port is not safe for use by multiple goroutines; it belongs to the
// goroutine running its scheduler. Use Duplicate to drive reads and writes
// from independent tasks.
type Port struct {
	a      *adapter
	closed bool
}

// Open opens cfg.Device with cfg.Settings and registers it with sched.
func Open(cfg Config, sched Scheduler) (*Port, error) {
	return OpenWithSettings(cfg.Device, cfg.Settings, sched)
}

// OpenWithSettings opens the tty at path, programs s and registers the
// descriptor with sched.
func OpenWithSettings(path string, s LineSettings, sched Scheduler) (*Port, error) {
	raw, err := OpenRaw(path, s)
	if err != nil {
		return nil, err
	}
	p, err := New(raw, sched)
	if err != nil {
		raw.Close()
		return nil, err
	}
	return p, nil
}

// New registers raw with sched. The Port takes ownership of raw and closes
// it on Close; on error raw is left open.
func New(raw RawPort, sched Scheduler) (*Port, error) {
	a, err := register(raw, sched)
	if err != nil {
		return nil, fmt.Errorf("register %v: %w", raw, err)
	}
	return &Port{a: a}, nil
}

// Read performs one non-blocking read.
//
// Device timeouts are retried on the spot. Would-block is returned to the
// caller and re-arms read readiness. Other errors are returned unchanged.
// A zero-length result with a nil error means nothing was available on this
// attempt; it also re-arms read readiness. After the line hung up an empty
// attempt fails with an error wrapping ErrHangup and io.EOF instead.
//
// When a device keeps timing out past an internal bound, Read gives up with
// ErrWouldBlock but leaves readiness Ready. That is the one would-block that
// does not mean "wait for readiness": retry after yielding to other tasks.
func (p *Port) Read(b []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	for attempt := 0; ; attempt++ {
		n, err := p.a.raw.Read(b)
		switch {
		case err == nil:
			if n == 0 {
				if p.a.read.hup {
					return 0, fmt.Errorf("read: %w: %w", ErrHangup, io.EOF)
				}
				p.a.read.clear()
			}
			return n, nil
		case IsWouldBlock(err):
			p.a.read.clear()
			return 0, asWouldBlock("read", err)
		case isTimeout(err):
			if attempt < maxTimeoutRetries {
				continue
			}
			// Readiness is left as is: the device may well have data.
			return 0, asWouldBlock("read", err)
		default:
			return n, err
		}
	}
}

// Write performs one non-blocking write. It may accept fewer bytes than
// len(b); the caller retries with the remainder.
func (p *Port) Write(b []byte) (int, error) {
	if p.closed {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	n, err := p.a.raw.Write(b)
	switch {
	case err == nil:
		return n, nil
	case IsWouldBlock(err):
		p.a.write.clear()
		return n, asWouldBlock("write", err)
	default:
		return n, err
	}
}

// Flush reports ErrWouldBlock while written bytes are still queued for
// transmission. It does not touch cached write readiness: the device may
// not signal again when its queue drains.
func (p *Port) Flush() error {
	if p.closed {
		return ErrClosed
	}
	err := p.a.raw.Flush()
	if IsWouldBlock(err) {
		return asWouldBlock("flush", err)
	}
	return err
}

// PollReadReady reports whether a read attempt may make progress. When it
// returns NotReady and cx is not nil, the task polled through cx is woken on
// the next read readiness event.
func (p *Port) PollReadReady(cx *reactor.Context) Readiness {
	return p.a.pollReadReady(cx)
}

// PollWriteReady is the write side counterpart of PollReadReady.
func (p *Port) PollWriteReady(cx *reactor.Context) Readiness {
	return p.a.pollWriteReady(cx)
}

// Duplicate returns a new Port on a duplicated descriptor for the same
// device, registered with sched independently of p. The duplicate shares
// termios and device queues with p; either one may be closed without
// affecting the other.
func (p *Port) Duplicate(sched Scheduler) (*Port, error) {
	if p.closed {
		return nil, ErrClosed
	}
	a, err := p.a.duplicate(sched)
	if err != nil {
		return nil, fmt.Errorf("duplicate %v: %w", p.a.raw, err)
	}
	return &Port{a: a}, nil
}

// Fd returns the underlying descriptor. The Port keeps ownership: do not
// close it, and do not use it after the Port is closed.
func (p *Port) Fd() int { return p.a.raw.Fd() }

func (p *Port) String() string { return "serial.Port{" + p.a.raw.String() + "}" }

// Close deregisters the port and closes its descriptor. Tasks parked on the
// port are woken and see ErrClosed. Closing twice is a no-op.
func (p *Port) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.a.close()
}

func asWouldBlock(op string, err error) error {
	if errors.Is(err, ErrWouldBlock) {
		return err
	}
	return &wouldBlock{op: op, cause: err}
}
