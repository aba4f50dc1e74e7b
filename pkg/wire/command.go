package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is one outgoing protocol line, without its CR terminator.
type Command struct {
	text string
}

// Raw builds a command from literal text.
func Raw(text string) Command {
	return Command{text: text}
}

// String returns the command text as it appears on the wire (without CR).
func (c Command) String() string {
	return c.text
}

// Bytes returns the CR-terminated frame to transmit.
func (c Command) Bytes() []byte {
	return append([]byte(c.text), '\r')
}

// IsZero reports whether the command is empty.
func (c Command) IsZero() bool {
	return c.text == ""
}

// Hub-level commands.

// Version requests the firmware version banner.
func Version() Command { return Raw("version") }

// Vin requests the input voltage reading.
func Vin() Command { return Raw("vin") }

// List requests a port enumeration; the firmware answers with attach
// notifications for every populated port.
func List() Command { return Raw("list") }

// LEDMode sets the HAT LED mode (-1 voltage, 0 off, 1 orange, 2 green, 3 both).
func LEDMode(mode int) Command { return Raw(fmt.Sprintf("ledmode %d", mode)) }

// ClearFaults clears latched motor faults.
func ClearFaults() Command { return Raw("clear_faults") }

// Bootloader commands used during the firmware upload handshake.

// Clear erases any partially loaded firmware image.
func Clear() Command { return Raw("clear") }

// Load announces a firmware image of the given length and checksum; the
// image bytes follow between STX and ETX.
func Load(length int, checksum uint32) Command {
	return Raw(fmt.Sprintf("load %d %d", length, checksum))
}

// Signature announces a firmware signature of the given length.
func Signature(length int) Command {
	return Raw(fmt.Sprintf("signature %d", length))
}

// Reboot restarts the HAT into the freshly loaded firmware.
func Reboot() Command { return Raw("reboot") }

// PortBuilder accumulates a port-scoped command chain
// ("port N ; verb args ; ...").
type PortBuilder struct {
	port  int
	parts []string
}

// Port starts a command chain addressed to the given port.
func Port(port int) *PortBuilder {
	return &PortBuilder{port: port}
}

func (b *PortBuilder) add(part string) *PortBuilder {
	b.parts = append(b.parts, part)
	return b
}

// Select starts streaming the given single mode.
func (b *PortBuilder) Select(mode int) *PortBuilder {
	return b.add(fmt.Sprintf("select %d", mode))
}

// Deselect stops any streaming mode.
func (b *PortBuilder) Deselect() *PortBuilder {
	return b.add("select")
}

// SelectRate sets the streaming update interval in milliseconds.
func (b *PortBuilder) SelectRate(ms int) *PortBuilder {
	return b.add(fmt.Sprintf("selrate %d", ms))
}

// Combi configures combi slot num from the given mode indices. Each mode
// contributes its dataset 0, matching the firmware's "<mode> 0" pairs.
// With no modes the slot is deconfigured.
func (b *PortBuilder) Combi(num int, modes ...int) *PortBuilder {
	if len(modes) == 0 {
		return b.add(fmt.Sprintf("combi %d", num))
	}
	pairs := make([]string, len(modes))
	for i, m := range modes {
		pairs[i] = fmt.Sprintf("%d 0", m)
	}
	return b.add(fmt.Sprintf("combi %d %s", num, strings.Join(pairs, " ")))
}

// PWM switches the port to direct PWM drive.
func (b *PortBuilder) PWM() *PortBuilder {
	return b.add("pwm")
}

// Set applies a constant setpoint.
func (b *PortBuilder) Set(v float64) *PortBuilder {
	return b.add("set " + ftoa(v))
}

// SetRamp drives the setpoint from one value to another over the given
// duration in seconds.
func (b *PortBuilder) SetRamp(from, to, seconds float64) *PortBuilder {
	return b.add(fmt.Sprintf("set ramp %s %s %s 0", ftoa(from), ftoa(to), ftoa(seconds)))
}

// SetPulse applies a setpoint for the given duration in seconds.
func (b *PortBuilder) SetPulse(v, seconds float64) *PortBuilder {
	return b.add(fmt.Sprintf("set pulse %s 0.0 %s 0", ftoa(v), ftoa(seconds)))
}

// PLimit sets the port power limit (0 to 1).
func (b *PortBuilder) PLimit(v float64) *PortBuilder {
	return b.add("plimit " + ftoa(v))
}

// PortPLimit sets the port-level power limit (0 to 1).
func (b *PortBuilder) PortPLimit(v float64) *PortBuilder {
	return b.add("port_plimit " + ftoa(v))
}

// Coast releases the motor drive.
func (b *PortBuilder) Coast() *PortBuilder {
	return b.add("coast")
}

// On powers the port.
func (b *PortBuilder) On() *PortBuilder {
	return b.add("on")
}

// Off powers the port down.
func (b *PortBuilder) Off() *PortBuilder {
	return b.add("off")
}

// Write1 sends a raw device message as lowercase hex bytes.
func (b *PortBuilder) Write1(data []byte) *PortBuilder {
	hexed := make([]string, len(data))
	for i, h := range data {
		hexed[i] = strconv.FormatUint(uint64(h), 16)
	}
	return b.add("write1 " + strings.Join(hexed, " "))
}

// PWMParams sets the PWM drive thresholds (both 0 to 1).
func (b *PortBuilder) PWMParams(pwmthresh, minpwm float64) *PortBuilder {
	return b.add(fmt.Sprintf("pwmparams %s %s", ftoa(pwmthresh), ftoa(minpwm)))
}

// Append adds a literal chain segment, for verbs without a dedicated
// builder method (pid presets and the like).
func (b *PortBuilder) Append(part string) *PortBuilder {
	return b.add(part)
}

// Build assembles the chain into a Command.
func (b *PortBuilder) Build() Command {
	parts := append([]string{fmt.Sprintf("port %d", b.port)}, b.parts...)
	return Raw(strings.Join(parts, " ; "))
}

// ftoa formats a float the way the firmware expects: shortest decimal
// representation, no exponent for typical magnitudes.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
