//go:build linux
// +build linux

package serial

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// RawPort is a serial device descriptor in non-blocking mode.
//
// Read, Write and Flush never block: when the device cannot make progress
// they fail with EAGAIN. Read may also fail with a device-level timeout
// (ETIMEDOUT, os.ErrDeadlineExceeded or any error whose Timeout method
// reports true) that does not mean the device is unready.
type RawPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Flush reports EAGAIN while written bytes are still queued for
	// transmission.
	Flush() error
	// Fd returns the descriptor to register for readiness events.
	Fd() int
	// Dup returns a second RawPort on a new descriptor for the same device.
	Dup() (RawPort, error)
	Close() error
	String() string
}

// tty is a RawPort on a Linux character device.
type tty struct {
	fd       int
	path     string
	settings LineSettings
	closed   bool
}

// OpenRaw opens the device at path in non-blocking mode and programs s into
// its termios. The line is put in raw mode: no echo, no canonical
// processing, no output post-processing.
func OpenRaw(path string, s LineSettings) (RawPort, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := configure(fd, s); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}
	return &tty{fd: fd, path: path, settings: s}, nil
}

func configure(fd int, s LineSettings) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, makeTermios(termios, s)); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// makeTermios returns a copy of base with raw mode and s applied.
func makeTermios(base *unix.Termios, s LineSettings) *unix.Termios {
	termios := *base

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL |
		unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	termios.Cflag |= unix.CREAD | unix.CLOCAL

	termios.Cflag |= charSizes[s.CharSize]

	switch s.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
		termios.Iflag |= unix.INPCK
	case ParityEven:
		termios.Cflag |= unix.PARENB
		termios.Iflag |= unix.INPCK
	default:
		termios.Iflag &^= unix.INPCK
	}

	if s.StopBits == StopBits2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch s.FlowControl {
	case FlowSoftware:
		termios.Iflag |= unix.IXON | unix.IXOFF
	case FlowHardware:
		termios.Cflag |= unix.CRTSCTS
	}

	baud := baudRates[s.BaudRate]
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	// Reads return whatever is queued, never wait for a byte count or timer.
	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = 0
	return &termios
}

func (t *tty) Read(p []byte) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Read(t.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		if n == 0 && len(p) > 0 && t.hungUp() {
			return 0, fmt.Errorf("read %s: %w: %w", t.path, ErrHangup, unix.EIO)
		}
		return n, nil
	}
}

// hungUp reports whether the line is in hangup, which a tty signals with
// empty reads.
func (t *tty) hungUp() bool {
	fds := []unix.PollFd{{Fd: int32(t.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, 0)
	return err == nil && n > 0 && fds[0].Revents&(unix.POLLHUP|unix.POLLERR) != 0
}

func (t *tty) Write(p []byte) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	for {
		n, err := unix.Write(t.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func (t *tty) Flush() error {
	if t.closed {
		return ErrClosed
	}
	queued, err := unix.IoctlGetInt(t.fd, unix.TIOCOUTQ)
	if err != nil {
		return fmt.Errorf("output queue: %w", err)
	}
	if queued > 0 {
		return unix.EAGAIN
	}
	return nil
}

func (t *tty) Fd() int { return t.fd }

// Dup duplicates the descriptor. Both descriptors share one open file
// description, so termios and the device queues are common to them.
func (t *tty) Dup() (RawPort, error) {
	if t.closed {
		return nil, ErrClosed
	}
	fd, err := unix.FcntlInt(uintptr(t.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("dup %s: %w", t.path, err)
	}
	return &tty{fd: fd, path: t.path, settings: t.settings}, nil
}

func (t *tty) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return unix.Close(t.fd)
}

func (t *tty) String() string {
	return fmt.Sprintf("tty{path: %s, fd: %d, settings: %v}", t.path, t.fd, t.settings)
}
