package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport: closed")

// ResetFunc drives the HAT reset line, typically a GPIO pin on the host.
type ResetFunc func(asserted bool) error

// SerialConfig holds serial port parameters.
type SerialConfig struct {
	// Device is the serial device path.
	Device string

	// BaudRate is the UART speed. The Build HAT always runs at 115200.
	BaudRate int

	// ReadPoll bounds each blocking read against the port so that
	// ReadLine timeouts and Close are honored promptly.
	ReadPoll time.Duration

	// Reset drives the HAT reset line. When nil, AssertReset is a
	// no-op and the HAT is expected to be running already.
	Reset ResetFunc
}

// DefaultSerialConfig returns the parameters for a Raspberry Pi with a
// Build HAT on the primary UART.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:   "/dev/serial0",
		BaudRate: 115200,
		ReadPoll: 100 * time.Millisecond,
	}
}

// SerialPort is a Transport over a real UART device.
type SerialPort struct {
	port  serial.Port
	poll  time.Duration
	reset ResetFunc

	mu     sync.Mutex
	buf    lineBuffer
	closed bool
}

// OpenSerial opens the serial device described by cfg.
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadPoll == 0 {
		cfg.ReadPoll = 100 * time.Millisecond
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(cfg.ReadPoll); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialPort{port: port, poll: cfg.ReadPoll, reset: cfg.Reset}, nil
}

// Write sends raw bytes, retrying until the full buffer is on the wire.
func (s *SerialPort) Write(p []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// ReadLine returns the next complete line, or (nil, nil) after timeout.
func (s *SerialPort) ReadLine(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	chunk := make([]byte, 512)
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrClosed
		}
		if line, ok := s.buf.Next(); ok {
			s.mu.Unlock()
			return line, nil
		}
		s.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, nil
		}

		// Read blocks for at most the poll interval.
		n, err := s.port.Read(chunk)
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, fmt.Errorf("serial read: %w", err)
		}
		if n > 0 {
			s.mu.Lock()
			s.buf.Feed(chunk[:n])
			s.mu.Unlock()
		}
	}
}

// AssertReset drives the configured reset line.
func (s *SerialPort) AssertReset(asserted bool) error {
	if s.reset == nil {
		return nil
	}
	return s.reset(asserted)
}

// Close closes the serial device. Safe to call more than once.
func (s *SerialPort) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.port.Close()
}
