//go:build linux
// +build linux

package serial

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeWouldBlock, Classify(ErrWouldBlock))
	assert.Equal(t, OutcomeWouldBlock, Classify(unix.EAGAIN))
	assert.Equal(t, OutcomeWouldBlock, Classify(asWouldBlock("read", unix.EAGAIN)))
	assert.Equal(t, OutcomeFailure, Classify(unix.EIO))
	assert.Equal(t, OutcomeFailure, Classify(ErrClosed))

	assert.Equal(t, "OK", OutcomeOK.String())
	assert.Equal(t, "WouldBlock", OutcomeWouldBlock.String())
	assert.Equal(t, "Failure", OutcomeFailure.String())
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(unix.ETIMEDOUT))
	assert.True(t, isTimeout(os.ErrDeadlineExceeded))
	assert.True(t, isTimeout(&os.PathError{Op: "read", Path: "/dev/ttyS0", Err: unix.ETIMEDOUT}))

	// unix.EAGAIN.Timeout() is true, but would-block is not a device timeout.
	assert.False(t, isTimeout(unix.EAGAIN))
	assert.False(t, isTimeout(ErrWouldBlock))
	assert.False(t, isTimeout(unix.EIO))
	assert.False(t, isTimeout(errors.New("other")))
}

func TestWouldBlockError(t *testing.T) {
	err := asWouldBlock("write", unix.EAGAIN)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.ErrorIs(t, err, unix.EAGAIN)
	assert.Equal(t, "write: serial: would block: "+unix.EAGAIN.Error(), err.Error())

	// Already semantic errors pass through untouched.
	wrapped := fmt.Errorf("custom: %w", ErrWouldBlock)
	assert.Same(t, wrapped, asWouldBlock("read", wrapped))
}
