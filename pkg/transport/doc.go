// Package transport provides the byte transport under the Build HAT
// line protocol.
//
// The transport layer handles:
//   - Serial port I/O at 115200 baud, 8N1
//   - Line assembly from the raw byte stream
//   - The hardware reset line used to restart the HAT
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      ASCII command lines       │
//	├────────────────────────────────┤
//	│    CR/LF line assembly         │
//	├────────────────────────────────┤
//	│      UART 115200 8N1           │
//	└────────────────────────────────┘
//
// # Implementations
//
// SerialPort wraps a real UART device via go.bug.st/serial. Pipe provides
// an in-memory pair of connected ends for tests and simulation.
//
// # Timeouts
//
// ReadLine takes an explicit timeout and returns (nil, nil) when it
// expires with no complete line available. Callers poll in a loop and
// decide for themselves when silence becomes an error.
package transport
