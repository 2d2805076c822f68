//go:build linux
// +build linux

package serial

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/luhtfiimanal/go-nbserial/reactor"
)

// openPTY returns the master side of a fresh pseudo-terminal and the path of
// its slave, which plays the serial device.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	master, slave := openPTYPair(t)
	return master, slave.Name()
}

func openPTYPair(t *testing.T) (master, slave *os.File) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() { master.Close(); slave.Close() })
	return master, slave
}

func openPort(t *testing.T, path string, loop *reactor.Loop) *Port {
	t.Helper()
	p, err := OpenWithSettings(path, DefaultSettings(), loop)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

// echo sends everything the device writes straight back to it.
func echo(master *os.File) {
	buf := make([]byte, 256)
	for {
		n, err := master.Read(buf)
		if err != nil {
			return
		}
		if _, err := master.Write(buf[:n]); err != nil {
			return
		}
	}
}

// readN completes once n bytes were read from p.
func readN(p *Port, n int, got *[]byte) *ReadTask {
	return NewReadTask(p, nil, func(chunk []byte) error {
		*got = append(*got, chunk...)
		if len(*got) >= n {
			return ErrDone
		}
		return nil
	})
}

// sequence runs tasks one after the other.
func sequence(tasks ...reactor.Task) reactor.Task {
	return reactor.TaskFunc(func(cx *reactor.Context) (reactor.Status, error) {
		for len(tasks) > 0 {
			st, err := tasks[0].Poll(cx)
			if st == reactor.Pending {
				return reactor.Pending, nil
			}
			if err != nil {
				return reactor.Complete, err
			}
			tasks = tasks[1:]
		}
		return reactor.Complete, nil
	})
}

func TestPort_BasicRead(t *testing.T) {
	master, path := openPTY(t)
	loop := newLoop(t)
	p := openPort(t, path, loop)

	_, err := master.Write([]byte("hello\n"))
	require.NoError(t, err)

	var line string
	task := NewLineTask(p, "\n", func(l string) error {
		line = l
		return ErrDone
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, loop.BlockOn(ctx, task))
	require.Equal(t, "hello", line)
}

func TestPort_Write(t *testing.T) {
	master, path := openPTY(t)
	loop := newLoop(t)
	p := openPort(t, path, loop)

	msg := "testline\r\n"
	task := NewWriteTask(p, []byte(msg))
	require.NoError(t, loop.BlockOn(context.Background(), task))
	require.Equal(t, len(msg), task.Written())

	buf := make([]byte, len(msg))
	_, err := io.ReadFull(master, buf)
	require.NoError(t, err)
	require.Equal(t, msg, string(buf))
}

func TestPort_DuplicateLoopback(t *testing.T) {
	master, path := openPTY(t)
	go echo(master)

	loop := newLoop(t)
	writer := openPort(t, path, loop)
	reader, err := writer.Duplicate(loop)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	var got []byte
	race := reactor.Select(readN(reader, 4, &got), loop.After(5*time.Second))
	err = loop.BlockOn(context.Background(), reactor.Join(NewWriteTask(writer, []byte("1234")), race))
	require.NoError(t, err)
	require.Equal(t, 0, race.Winner(), "timed out waiting for loopback data")
	require.Equal(t, "1234", string(got))
}

func TestPort_RoundTripInChunks(t *testing.T) {
	master, path := openPTY(t)
	go echo(master)

	loop := newLoop(t)
	writer := openPort(t, path, loop)
	reader, err := writer.Duplicate(loop)
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })

	want := make([]byte, 2000)
	for i := range want {
		want[i] = byte('a' + i%26)
	}
	var writes []reactor.Task
	for off, size := 0, 1; off < len(want); size = size*3 + 1 {
		end := min(off+size, len(want))
		writes = append(writes, NewWriteTask(writer, want[off:end]))
		off = end
	}

	var got []byte
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = loop.BlockOn(ctx, reactor.Join(sequence(writes...), readN(reader, len(want), &got)))
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got), "byte stream reordered or corrupted")
}

func TestPort_CloseWakesParkedReader(t *testing.T) {
	_, path := openPTY(t)
	loop := newLoop(t)
	p := openPort(t, path, loop)

	read := NewReadTask(p, nil, func([]byte) error { return nil })
	timer := loop.After(20 * time.Millisecond)
	closer := reactor.TaskFunc(func(cx *reactor.Context) (reactor.Status, error) {
		if st, _ := timer.Poll(cx); st == reactor.Pending {
			return reactor.Pending, nil
		}
		return reactor.Complete, p.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := loop.BlockOn(ctx, reactor.Join(read, closer))
	require.ErrorIs(t, err, ErrClosed)
}

func TestPort_ErrorPropagation(t *testing.T) {
	master, path := openPTY(t)
	loop := newLoop(t)
	p := openPort(t, path, loop)

	// Simulate device disconnect by closing master
	require.NoError(t, master.Close())

	task := NewReadTask(p, nil, func([]byte) error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := loop.BlockOn(ctx, task)
	require.Error(t, err)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	require.NotErrorIs(t, err, ErrWouldBlock)
}

func TestPort_Hangup(t *testing.T) {
	_, slave := openPTYPair(t)
	loop := newLoop(t)
	p := openPort(t, slave.Name(), loop)

	if err := unix.IoctlSetInt(int(slave.Fd()), unix.TIOCVHANGUP, 0); err != nil {
		t.Skipf("TIOCVHANGUP not permitted: %v", err)
	}

	task := NewReadTask(p, nil, func([]byte) error { return nil })
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := loop.BlockOn(ctx, task)
	require.ErrorIs(t, err, ErrHangup)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
}

// Pseudo-terminals force CS8 and drop parity, so only what a pty keeps is
// checked here; the full bit layout is covered by TestMakeTermios.
func TestPort_AppliesSettings(t *testing.T) {
	_, path := openPTY(t)
	loop := newLoop(t)

	s := LineSettings{BaudRate: 9600, CharSize: 7, Parity: ParityEven, StopBits: StopBits2, FlowControl: FlowHardware}
	p, err := OpenWithSettings(path, s, loop)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	termios, err := unix.IoctlGetTermios(p.Fd(), unix.TCGETS)
	require.NoError(t, err)
	assert.NotZero(t, termios.Cflag&unix.CSTOPB)
	assert.NotZero(t, termios.Cflag&unix.CRTSCTS)
	assert.Zero(t, termios.Lflag&(unix.ECHO|unix.ICANON|unix.ISIG|unix.IEXTEN))
	assert.Zero(t, termios.Oflag&unix.OPOST)

	flags, err := unix.FcntlInt(uintptr(p.Fd()), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)
}

func TestPort_FlushAndDescribe(t *testing.T) {
	_, path := openPTY(t)
	loop := newLoop(t)
	p := openPort(t, path, loop)

	require.NoError(t, p.Flush())
	assert.Positive(t, p.Fd())
	assert.Contains(t, p.String(), path)
}

func TestOpenWithSettings_Errors(t *testing.T) {
	loop := newLoop(t)

	_, err := OpenWithSettings("/nonexistent/ttyX", DefaultSettings(), loop)
	require.ErrorIs(t, err, unix.ENOENT)

	_, err = OpenWithSettings("/dev/null", DefaultSettings(), loop)
	require.ErrorIs(t, err, unix.ENOTTY)

	_, err = Open(Config{Device: "/dev/null", Settings: LineSettings{}}, loop)
	require.ErrorIs(t, err, ErrUnsupportedSettings)
}
