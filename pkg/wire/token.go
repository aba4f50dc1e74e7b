package wire

// Kind classifies a decoded protocol line.
type Kind uint8

const (
	// KindUnrecognized is any line that matches no known protocol shape.
	KindUnrecognized Kind = iota

	// KindCommandEcho is the firmware's echo of a command line.
	KindCommandEcho

	// KindNumericReply is a line consisting solely of numeric fields,
	// optionally suffixed with a unit (e.g. "7.5 V" from vin).
	KindNumericReply

	// KindErrorReply is an explicit error line from the firmware.
	KindErrorReply

	// KindPortAttach reports a device connecting to a port.
	KindPortAttach

	// KindPortDetach reports a device leaving a port.
	KindPortDetach

	// KindPortValue is a sensor value update for a (port, mode) pair.
	KindPortValue

	// KindRampDone reports completion of a positional ramp on a port.
	KindRampDone

	// KindPulseDone reports completion of a timed pulse on a port.
	KindPulseDone

	// KindFirmwareBanner is the "Firmware version: ..." line.
	KindFirmwareBanner

	// KindBootloaderBanner is the "BuildHAT bootloader version ..." line.
	KindBootloaderBanner

	// KindReadyBanner is the "Done initialising ports" line emitted once
	// the firmware has booted and scanned its ports.
	KindReadyBanner

	// KindPrompt is the bootloader's "BHBL>" prompt.
	KindPrompt
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUnrecognized:
		return "UNRECOGNIZED"
	case KindCommandEcho:
		return "COMMAND_ECHO"
	case KindNumericReply:
		return "NUMERIC_REPLY"
	case KindErrorReply:
		return "ERROR_REPLY"
	case KindPortAttach:
		return "PORT_ATTACH"
	case KindPortDetach:
		return "PORT_DETACH"
	case KindPortValue:
		return "PORT_VALUE"
	case KindRampDone:
		return "RAMP_DONE"
	case KindPulseDone:
		return "PULSE_DONE"
	case KindFirmwareBanner:
		return "FIRMWARE_BANNER"
	case KindBootloaderBanner:
		return "BOOTLOADER_BANNER"
	case KindReadyBanner:
		return "READY_BANNER"
	case KindPrompt:
		return "PROMPT"
	default:
		return "UNKNOWN"
	}
}

// Token is one classified protocol line. Only the fields relevant to the
// Kind are populated; Raw always carries the original line.
type Token struct {
	// Kind is the line classification.
	Kind Kind

	// Raw is the original line text.
	Raw string

	// Port is the port index for port-scoped tokens (0..3).
	Port int

	// DeviceType is the hub-assigned device type ID (KindPortAttach).
	DeviceType int

	// Active reports whether the attached device is active (KindPortAttach).
	Active bool

	// Mode is the streaming mode index (KindPortValue). For combi updates
	// this is the combi slot number, not a single mode index.
	Mode int

	// Combi reports whether a value update came from a combi mode
	// (P<n>C<m> header) rather than a single mode (P<n>M<m>).
	Combi bool

	// Values holds the decoded numeric fields (KindNumericReply,
	// KindPortValue).
	Values []float64

	// Text carries kind-specific text: the command for KindCommandEcho,
	// the message for KindErrorReply, the version string for
	// KindFirmwareBanner.
	Text string
}
