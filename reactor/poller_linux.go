//go:build linux
// +build linux

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// wakeToken identifies the eventfd used to interrupt epoll_wait.
const wakeToken Token = 0

const maxEvents = 128

// poller is an edge-triggered epoll instance plus an eventfd that other
// goroutines may signal to interrupt a wait.
type poller struct {
	epfd   int
	wakefd int
	events [maxEvents]unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	p := &poller{epfd: epfd, wakefd: wakefd}
	if err := p.add(wakefd, wakeToken); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

// add registers fd for read and write readiness, edge-triggered.
func (p *poller) add(fd int, tok Token) error {
	ev := unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLET,
		Fd:     int32(tok),
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (p *poller) del(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

// wait blocks for up to timeoutMs (-1 blocks indefinitely) and hands every
// event to fn. A signal interrupting the wait is reported as no events.
func (p *poller) wait(timeoutMs int, fn func(tok Token, r Ready)) error {
	n, err := unix.EpollWait(p.epfd, p.events[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		tok := Token(uint32(ev.Fd))
		if tok == wakeToken {
			p.drainWake()
			continue
		}
		var r Ready
		if ev.Events&unix.EPOLLIN != 0 {
			r |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			r |= Writable
		}
		if ev.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0 {
			r |= Hangup
		}
		if ev.Events&unix.EPOLLERR != 0 {
			r |= Error
		}
		fn(tok, r)
	}
	return nil
}

// wake interrupts a concurrent or the next wait. Safe from any goroutine.
func (p *poller) wake() error {
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wakefd, buf[:])
	if errors.Is(err, unix.EAGAIN) {
		// Counter saturated, a wakeup is pending anyway.
		return nil
	}
	return err
}

func (p *poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakefd, buf[:]); err != nil {
			return
		}
	}
}

func (p *poller) close() error {
	err := unix.Close(p.wakefd)
	if cerr := unix.Close(p.epfd); err == nil {
		err = cerr
	}
	return err
}
