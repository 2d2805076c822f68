//go:build linux
// +build linux

package serial

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock means the port cannot make progress without waiting.
	// It is control flow, not a failure: wait for readiness, then retry.
	// Errors returned by Read, Write and Flush wrap it together with the
	// underlying errno.
	ErrWouldBlock = errors.New("serial: would block")

	// ErrClosed is returned by operations on a closed Port.
	ErrClosed = errors.New("serial: port closed")

	// ErrHangup is wrapped by read errors once the line hung up: the device
	// was unplugged or the other end of a pseudo-terminal went away.
	ErrHangup = errors.New("serial: line hung up")

	// ErrUnsupportedSettings is wrapped by errors describing line settings
	// the tty layer cannot program.
	ErrUnsupportedSettings = errors.New("serial: unsupported line settings")

	// ErrDone may be returned by a ReadTask or LineTask handler to complete
	// the task successfully.
	ErrDone = errors.New("serial: done")
)

// Outcome classifies the error of a single Read, Write or Flush attempt.
type Outcome uint8

const (
	OutcomeFailure Outcome = iota
	OutcomeOK
	OutcomeWouldBlock
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeWouldBlock:
		return "WouldBlock"
	default:
		return "Failure"
	}
}

// Classify maps the error of a port operation to an Outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case IsWouldBlock(err):
		return OutcomeWouldBlock
	default:
		return OutcomeFailure
	}
}

// IsWouldBlock reports whether err means "not ready yet", either as
// ErrWouldBlock or as a raw EAGAIN from the OS.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, unix.EAGAIN)
}

// isTimeout reports whether a raw port error is a device-level timeout.
// Such timeouts are spurious for a non-blocking descriptor. EAGAIN also
// claims Timeout() on unix.Errno, so it is excluded first.
func isTimeout(err error) bool {
	if IsWouldBlock(err) {
		return false
	}
	if errors.Is(err, unix.ETIMEDOUT) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// wouldBlock wraps a raw would-block error so that callers can match
// ErrWouldBlock while the errno stays reachable.
type wouldBlock struct {
	op    string
	cause error
}

func (e *wouldBlock) Error() string {
	if e.cause == nil {
		return e.op + ": " + ErrWouldBlock.Error()
	}
	return e.op + ": " + ErrWouldBlock.Error() + ": " + e.cause.Error()
}

func (e *wouldBlock) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrWouldBlock}
	}
	return []error{ErrWouldBlock, e.cause}
}
