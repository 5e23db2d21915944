// Package serial opens the link to a board.
package serial

import (
	"io"
)

// Port is a byte link to a board. Native serial devices, pipes and test
// doubles all satisfy it.
type Port interface {
	io.ReadWriteCloser

	// Flush pushes out any buffered output.
	Flush() error
}

// Config holds serial port configuration.
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud is ignored by USB CDC devices.
	Baud int

	// ReadTimeout in milliseconds. Zero blocks, which the host transport
	// expects: a timed-out read ends its read loop.
	ReadTimeout int
}

// DefaultConfig returns a blocking configuration at 250000 baud.
func DefaultConfig(device string) *Config {
	return &Config{
		Device: device,
		Baud:   250000,
	}
}

// pipePort adapts an io.ReadWriteCloser with no buffering of its own.
type pipePort struct {
	io.ReadWriteCloser
}

func (pipePort) Flush() error { return nil }

// Wrap turns any ReadWriteCloser, such as one end of a net.Pipe or a
// child process's stdio, into a Port.
func Wrap(rwc io.ReadWriteCloser) Port {
	if p, ok := rwc.(Port); ok {
		return p
	}
	return pipePort{rwc}
}
