//go:build linux
// +build linux

package serial

import (
	"bytes"
	"errors"

	"github.com/luhtfiimanal/go-nbserial/reactor"
)

const defaultReadBuffer = 1024

// ReadTask drains a Port and hands every chunk to a handler.
//
// Each poll reads until the port reports would-block, so that no data is
// left behind when the task parks: readiness is edge-triggered and the
// scheduler would not wake the task for bytes that were already signalled.
//
// The task completes when the handler returns an error (ErrDone completes
// it successfully) or on the first fatal read error.
type ReadTask struct {
	port    *Port
	buf     []byte
	handler func(p []byte) error
}

// NewReadTask returns a task reading p with buf. A nil buf gets a 1 KiB
// buffer. The slice handed to handler is only valid during the call.
func NewReadTask(p *Port, buf []byte, handler func(chunk []byte) error) *ReadTask {
	if len(buf) == 0 {
		buf = make([]byte, defaultReadBuffer)
	}
	return &ReadTask{port: p, buf: buf, handler: handler}
}

// Poll implements reactor.Task.
func (t *ReadTask) Poll(cx *reactor.Context) (reactor.Status, error) {
	for {
		if t.port.PollReadReady(cx) == NotReady {
			return reactor.Pending, nil
		}
		n, err := t.port.Read(t.buf)
		switch Classify(err) {
		case OutcomeOK:
			if n == 0 {
				continue
			}
			if herr := t.handler(t.buf[:n]); herr != nil {
				if errors.Is(herr, ErrDone) {
					return reactor.Complete, nil
				}
				return reactor.Complete, herr
			}
		case OutcomeWouldBlock:
			return park(cx, t.port.PollReadReady(cx)), nil
		default:
			return reactor.Complete, err
		}
	}
}

// park returns Pending. If readiness was not re-armed by the failed attempt
// the task yields and asks to be polled again.
func park(cx *reactor.Context, r Readiness) reactor.Status {
	if r == Ready {
		cx.Waker().Wake()
	}
	return reactor.Pending
}

// DefaultDelimiter terminates lines for LineTask when none is given.
const DefaultDelimiter = "\r\n"

// LineTask reads delimiter-terminated lines from a Port. Lines are handed
// to the handler without the delimiter; a trailing partial line is kept
// until its delimiter arrives.
type LineTask struct {
	*ReadTask
	delim   []byte
	pending []byte
	onLine  func(line string) error
}

// NewLineTask returns a task calling onLine for every line read from p.
// An empty delim means DefaultDelimiter.
func NewLineTask(p *Port, delim string, onLine func(line string) error) *LineTask {
	if delim == "" {
		delim = DefaultDelimiter
	}
	t := &LineTask{delim: []byte(delim), onLine: onLine}
	t.ReadTask = NewReadTask(p, nil, t.feed)
	return t
}

func (t *LineTask) feed(chunk []byte) error {
	t.pending = append(t.pending, chunk...)
	for {
		idx := bytes.Index(t.pending, t.delim)
		if idx < 0 {
			return nil
		}
		line := string(t.pending[:idx])
		t.pending = t.pending[idx+len(t.delim):]
		if err := t.onLine(line); err != nil {
			return err
		}
	}
}

// Partial returns the bytes received after the last delimiter.
func (t *LineTask) Partial() []byte { return t.pending }

// WriteTask writes a whole buffer to a Port, retrying partial writes with
// the remainder and parking while the port is not writable.
type WriteTask struct {
	port    *Port
	data    []byte
	written int
}

// NewWriteTask returns a task writing data to p. data must not be modified
// until the task completed.
func NewWriteTask(p *Port, data []byte) *WriteTask {
	return &WriteTask{port: p, data: data}
}

// Poll implements reactor.Task.
func (t *WriteTask) Poll(cx *reactor.Context) (reactor.Status, error) {
	for t.written < len(t.data) {
		if t.port.PollWriteReady(cx) == NotReady {
			return reactor.Pending, nil
		}
		n, err := t.port.Write(t.data[t.written:])
		t.written += n
		switch Classify(err) {
		case OutcomeOK:
			if n == 0 {
				return park(cx, Ready), nil
			}
		case OutcomeWouldBlock:
			return park(cx, t.port.PollWriteReady(cx)), nil
		default:
			return reactor.Complete, err
		}
	}
	return reactor.Complete, nil
}

// Written returns the number of bytes accepted by the port so far.
func (t *WriteTask) Written() int { return t.written }
