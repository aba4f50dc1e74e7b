package transport

import "time"

// Transport is a bidirectional byte channel to a Build HAT, exposing
// received bytes as complete lines.
// Implemented by SerialPort and PipeEnd.
type Transport interface {
	// Write sends raw bytes to the HAT.
	Write(p []byte) error

	// ReadLine returns the next complete received line with its
	// terminator and trailing whitespace stripped. It returns
	// (nil, nil) when the timeout expires before a full line arrives.
	ReadLine(timeout time.Duration) ([]byte, error)

	// AssertReset drives the HAT reset line. True is the run level;
	// false drops the line, which resets the HAT and discards any
	// firmware held only in RAM.
	AssertReset(asserted bool) error

	// Close releases the transport. Blocked and future reads return
	// ErrClosed.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*SerialPort)(nil)
	_ Transport = (*PipeEnd)(nil)
)
