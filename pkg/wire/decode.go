package wire

import (
	"strconv"
	"strings"
)

// Protocol line markers, reproduced byte for byte from the HAT firmware.
const (
	firmwareBannerPrefix   = "Firmware version: "
	bootloaderBannerPrefix = "BuildHAT bootloader version"
	readyBanner            = "Done initialising ports"
	promptMarker           = "BHBL>"
	errorPrefix            = "Error"

	attachActiveMarker  = ": connected to active ID"
	attachPassiveMarker = ": connected to passive ID"
	detachMarker        = ": disconnected"
	detachTimeoutMarker = ": timeout during data phase: disconnecting"
	detachEmptyMarker   = ": no device detected"
	rampDoneMarker      = ": ramp done"
	pulseDoneMarker     = ": pulse done"
)

// commandVerbs is the set of first tokens that identify a line as the echo
// of a host command.
var commandVerbs = map[string]struct{}{
	"port": {}, "vin": {}, "version": {}, "list": {}, "ledmode": {},
	"clear_faults": {}, "clear": {}, "load": {}, "signature": {},
	"reboot": {}, "echo": {}, "debug": {}, "set": {}, "select": {},
	"selrate": {}, "combi": {}, "pwm": {}, "plimit": {}, "port_plimit": {},
	"coast": {}, "off": {}, "on": {}, "write1": {}, "write2": {},
	"pid": {}, "pid_diff": {}, "pwmparams": {}, "bias": {}, "help": {},
}

// Decode classifies one incoming line. It is total: lines that match no
// known shape are returned as KindUnrecognized, never an error.
func Decode(line string) Token {
	tok := Token{Kind: KindUnrecognized, Raw: line, Port: -1, Mode: -1}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return tok
	}

	// Port-scoped lines: "P<n>: ..." and "P<n>C<m>: ..." / "P<n>M<m>: ...".
	if len(trimmed) >= 3 && trimmed[0] == 'P' && trimmed[1] >= '0' && trimmed[1] <= '3' {
		port := int(trimmed[1] - '0')
		rest := trimmed[2:]
		switch {
		case rest[0] == ':':
			if t, ok := decodePortStatus(tok, port, rest); ok {
				return t
			}
		case rest[0] == 'C' || rest[0] == 'M':
			if t, ok := decodePortValue(tok, port, rest); ok {
				return t
			}
		}
	}

	switch {
	case strings.HasPrefix(trimmed, firmwareBannerPrefix):
		tok.Kind = KindFirmwareBanner
		tok.Text = trimmed[len(firmwareBannerPrefix):]
		return tok
	case strings.HasPrefix(trimmed, bootloaderBannerPrefix):
		tok.Kind = KindBootloaderBanner
		tok.Text = trimmed
		return tok
	case strings.HasPrefix(trimmed, readyBanner):
		tok.Kind = KindReadyBanner
		return tok
	case strings.HasPrefix(trimmed, promptMarker):
		tok.Kind = KindPrompt
		return tok
	case strings.HasPrefix(trimmed, errorPrefix):
		tok.Kind = KindErrorReply
		tok.Text = trimmed
		return tok
	}

	if verb, _, _ := strings.Cut(trimmed, " "); verb != "" {
		if _, ok := commandVerbs[verb]; ok {
			tok.Kind = KindCommandEcho
			tok.Text = trimmed
			return tok
		}
	}

	if values, ok := parseNumericFields(trimmed); ok {
		tok.Kind = KindNumericReply
		tok.Values = values
		return tok
	}

	return tok
}

// decodePortStatus handles "P<n>: ..." status lines.
func decodePortStatus(tok Token, port int, rest string) (Token, bool) {
	tok.Port = port
	switch {
	case strings.HasPrefix(rest, attachActiveMarker), strings.HasPrefix(rest, attachPassiveMarker):
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return tok, false
		}
		id, err := strconv.ParseInt(fields[len(fields)-1], 16, 32)
		if err != nil {
			return tok, false
		}
		tok.Kind = KindPortAttach
		tok.DeviceType = int(id)
		tok.Active = strings.HasPrefix(rest, attachActiveMarker)
		return tok, true
	case strings.HasPrefix(rest, detachMarker),
		strings.HasPrefix(rest, detachTimeoutMarker),
		strings.HasPrefix(rest, detachEmptyMarker):
		tok.Kind = KindPortDetach
		return tok, true
	case strings.HasPrefix(rest, rampDoneMarker):
		tok.Kind = KindRampDone
		return tok, true
	case strings.HasPrefix(rest, pulseDoneMarker):
		tok.Kind = KindPulseDone
		return tok, true
	}
	return tok, false
}

// decodePortValue handles "P<n>C<m>: values" and "P<n>M<m>: values" lines.
func decodePortValue(tok Token, port int, rest string) (Token, bool) {
	header, payload, found := strings.Cut(rest, ":")
	if !found || len(header) < 2 {
		return tok, false
	}
	mode, err := strconv.Atoi(header[1:])
	if err != nil || mode < 0 {
		return tok, false
	}
	values, ok := parseNumericFields(payload)
	if !ok || len(values) == 0 {
		return tok, false
	}
	tok.Kind = KindPortValue
	tok.Port = port
	tok.Mode = mode
	tok.Combi = header[0] == 'C'
	tok.Values = values
	return tok, true
}

// parseNumericFields parses a whitespace-separated list of numbers.
// A trailing unit suffix (e.g. " V" from vin) is tolerated.
func parseNumericFields(s string) ([]float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, false
	}
	// Drop a single trailing non-numeric unit token.
	if _, err := strconv.ParseFloat(fields[len(fields)-1], 64); err != nil && len(fields) > 1 {
		fields = fields[:len(fields)-1]
	}
	values := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}
