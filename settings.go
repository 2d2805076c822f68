//go:build linux
// +build linux

package serial

import (
	"fmt"

	bugst "go.bug.st/serial"
	"golang.org/x/sys/unix"
)

// Parity and StopBits share their values with go.bug.st/serial, so settings
// can be moved between the two packages without translation.
type (
	Parity   = bugst.Parity
	StopBits = bugst.StopBits
)

const (
	ParityNone = bugst.NoParity
	ParityOdd  = bugst.OddParity
	ParityEven = bugst.EvenParity

	StopBits1 = bugst.OneStopBit
	StopBits2 = bugst.TwoStopBits
)

// FlowControl selects how the line is throttled.
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowSoftware
	FlowHardware
)

func (f FlowControl) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowSoftware:
		return "software"
	case FlowHardware:
		return "hardware"
	default:
		return fmt.Sprintf("FlowControl(%d)", int(f))
	}
}

// LineSettings is the line configuration programmed into the tty on open.
type LineSettings struct {
	BaudRate    int
	CharSize    int // data bits, 5 to 8
	Parity      Parity
	StopBits    StopBits
	FlowControl FlowControl
}

// DefaultSettings returns 115200 baud, 8N1, no flow control.
func DefaultSettings() LineSettings {
	return LineSettings{
		BaudRate:    115200,
		CharSize:    8,
		Parity:      ParityNone,
		StopBits:    StopBits1,
		FlowControl: FlowNone,
	}
}

// Validate reports whether the tty layer can program s. The returned error
// wraps ErrUnsupportedSettings.
func (s LineSettings) Validate() error {
	if _, ok := baudRates[s.BaudRate]; !ok {
		return fmt.Errorf("%w: baud rate %d", ErrUnsupportedSettings, s.BaudRate)
	}
	if _, ok := charSizes[s.CharSize]; !ok {
		return fmt.Errorf("%w: char size %d", ErrUnsupportedSettings, s.CharSize)
	}
	switch s.Parity {
	case ParityNone, ParityOdd, ParityEven:
	default:
		return fmt.Errorf("%w: parity %d", ErrUnsupportedSettings, s.Parity)
	}
	switch s.StopBits {
	case StopBits1, StopBits2:
	default:
		return fmt.Errorf("%w: stop bits %d", ErrUnsupportedSettings, s.StopBits)
	}
	switch s.FlowControl {
	case FlowNone, FlowSoftware, FlowHardware:
	default:
		return fmt.Errorf("%w: flow control %v", ErrUnsupportedSettings, s.FlowControl)
	}
	return nil
}

func (s LineSettings) String() string {
	p := "N"
	switch s.Parity {
	case ParityOdd:
		p = "O"
	case ParityEven:
		p = "E"
	}
	stop := 1
	if s.StopBits == StopBits2 {
		stop = 2
	}
	return fmt.Sprintf("%d %d%s%d flow=%v", s.BaudRate, s.CharSize, p, stop, s.FlowControl)
}

// Config names a device and the settings to open it with.
type Config struct {
	Device   string
	Settings LineSettings
}

var baudRates = map[int]uint32{
	1200:    unix.B1200,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	3000000: unix.B3000000,
	4000000: unix.B4000000,
}

var charSizes = map[int]uint32{
	5: unix.CS5,
	6: unix.CS6,
	7: unix.CS7,
	8: unix.CS8,
}
