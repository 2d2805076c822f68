// Package serial provides a Linux-only, non-blocking serial port for
// single-goroutine cooperative schedulers.
//
// A Port couples a tty opened in non-blocking mode with a registration on a
// Scheduler (the reactor package ships one built on epoll). Read and Write
// never block: they either transfer bytes, fail with an error matching
// ErrWouldBlock, or fail for real. Device-level timeouts are retried inside
// Read and never reach the caller.
//
// Features:
//   - Raw termios configuration: baud rate, char size, parity, stop bits, flow control
//   - Edge-triggered readiness cached per direction, re-armed on would-block
//   - Duplicated ports with independent registrations for separate reader and writer tasks
//   - Drivers for draining reads, line framing and whole-buffer writes
//   - PTY-based tests
//
// This package does **not** support Windows.
//
// Example usage:
//
//	loop, err := reactor.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	port, err := serial.Open(serial.Config{
//	    Device:   "/dev/ttyUSB0",
//	    Settings: serial.DefaultSettings(),
//	}, loop)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	lines := serial.NewLineTask(port, "\r\n", func(line string) error {
//	    fmt.Println("Received:", line)
//	    return nil
//	})
//	if err := loop.BlockOn(ctx, lines); err != nil {
//	    log.Println("Read error:", err)
//	}
package serial
