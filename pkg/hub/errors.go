package hub

import "errors"

// Hub errors.
var (
	// ErrNotReady is returned for commands submitted before the boot
	// sequence reached Ready. Nothing is written to the wire.
	ErrNotReady = errors.New("hub not ready")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hub closed")

	// ErrTimeout is returned when a command's reply did not arrive in
	// time. A reply arriving later is discarded, never mis-attributed.
	ErrTimeout = errors.New("command timeout")

	// ErrCommandFailed wraps the HAT's Error reply text.
	ErrCommandFailed = errors.New("command failed")

	// ErrDeviceDetached is returned when the device a command or wait
	// was addressed to unplugged before completion.
	ErrDeviceDetached = errors.New("device detached")

	// ErrTransport wraps fatal serial errors.
	ErrTransport = errors.New("transport error")

	// ErrFirmwareLoad wraps failures of the bootloader upload sequence.
	ErrFirmwareLoad = errors.New("firmware load failed")

	// ErrPortOutOfRange is returned for port indexes outside 0..3.
	ErrPortOutOfRange = errors.New("port out of range")

	// ErrNoDevice is returned when an operation needs a connected
	// device and the port is empty.
	ErrNoDevice = errors.New("no device on port")
)
