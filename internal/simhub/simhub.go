package simhub

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CDarius/buildhat-go/pkg/firmware"
	"github.com/CDarius/buildhat-go/pkg/transport"
)

// Mode is the program currently answering on the simulated HAT.
type Mode uint8

const (
	// ModeFirmware - the HAT runs its firmware.
	ModeFirmware Mode = iota
	// ModeBootloader - only the bootloader answers.
	ModeBootloader
)

// Device describes one scripted device plugged into a simulated port.
type Device struct {
	// Port is the port index, 0 to 3.
	Port int

	// Type is the device type ID.
	Type int

	// Active marks devices that speak the serial protocol and emit a
	// detail block on attach.
	Active bool

	// Detail is the detail block emitted after the attach line, one
	// element per line, without the final established line. Ignored
	// for passive devices.
	Detail []string
}

// Sim is a scripted HAT peer. Create one with New, drive the host side
// through the returned transport end.
type Sim struct {
	end *transport.PipeEnd

	mu              sync.Mutex
	mode            Mode
	firmwareVersion int64
	vin             float64
	devices         map[int]Device
	commands        []string
	scripts         []scriptRule
	failNext        string
	mute            int // commands to leave unanswered
	expectBlob      bool
	blobChecksum    uint32
	blobLen         int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// scriptRule replays lines when a received command contains match.
type scriptRule struct {
	match string
	lines []string
}

// Config sets up the simulated HAT's initial state.
type Config struct {
	// Mode is the initial answering program.
	Mode Mode

	// FirmwareVersion is the build stamp reported by the firmware.
	FirmwareVersion int64

	// Vin is the reported input voltage.
	Vin float64

	// Devices are plugged in from the start.
	Devices []Device
}

// New starts a simulated HAT and returns it with the host-side
// transport end to hand to a hub.
func New(cfg Config) (*Sim, *transport.PipeEnd) {
	host, hat := transport.NewPipe()
	if cfg.Vin == 0 {
		cfg.Vin = 7.5
	}
	if cfg.FirmwareVersion == 0 {
		cfg.FirmwareVersion = 1737564117
	}
	s := &Sim{
		end:             hat,
		mode:            cfg.Mode,
		firmwareVersion: cfg.FirmwareVersion,
		vin:             cfg.Vin,
		devices:         make(map[int]Device),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, d := range cfg.Devices {
		s.devices[d.Port] = d
	}
	hat.OnReset(s.onReset)
	go s.run()
	return s, host
}

// Close stops the simulator.
func (s *Sim) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.end.Close()
	})
	<-s.done
}

// Commands returns every command line received so far.
func (s *Sim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// LastCommand returns the most recent command line.
func (s *Sim) LastCommand() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.commands) == 0 {
		return "", false
	}
	return s.commands[len(s.commands)-1], true
}

// Script replays the given lines whenever a received command contains
// match.
func (s *Sim) Script(match string, lines ...string) {
	s.mu.Lock()
	s.scripts = append(s.scripts, scriptRule{match: match, lines: lines})
	s.mu.Unlock()
}

// FailNext answers the next command with an Error line instead of its
// normal reply.
func (s *Sim) FailNext(message string) {
	s.mu.Lock()
	s.failNext = message
	s.mu.Unlock()
}

// MuteFor leaves the next n commands unanswered, simulating a stalled
// HAT.
func (s *Sim) MuteFor(n int) {
	s.mu.Lock()
	s.mute = n
	s.mu.Unlock()
}

// Attach plugs a device in: the attach notification goes out
// immediately, followed by the detail block for active devices.
func (s *Sim) Attach(d Device) {
	s.mu.Lock()
	s.devices[d.Port] = d
	s.mu.Unlock()
	s.announce(d)
}

// Detach unplugs the device on a port.
func (s *Sim) Detach(port int) {
	s.mu.Lock()
	delete(s.devices, port)
	s.mu.Unlock()
	s.emit(fmt.Sprintf("P%d: disconnected", port))
}

// EmitValue sends a single-mode telemetry line.
func (s *Sim) EmitValue(port, mode int, values ...float64) {
	s.emit(fmt.Sprintf("P%dM%d: %s", port, mode, joinValues(values)))
}

// EmitCombiValue sends a combi-mode telemetry line.
func (s *Sim) EmitCombiValue(port, combi int, values ...float64) {
	s.emit(fmt.Sprintf("P%dC%d: %s", port, combi, joinValues(values)))
}

// EmitRampDone reports a finished ramp on a port.
func (s *Sim) EmitRampDone(port int) {
	s.emit(fmt.Sprintf("P%d: ramp done", port))
}

// EmitPulseDone reports a finished pulse on a port.
func (s *Sim) EmitPulseDone(port int) {
	s.emit(fmt.Sprintf("P%d: pulse done", port))
}

// EmitLine sends a raw line, for scripting shapes the helpers don't
// cover.
func (s *Sim) EmitLine(line string) {
	s.emit(line)
}

// onReset tracks the host driving the reset line. Releasing reset
// drops RAM-loaded firmware, so the bootloader answers afterwards.
func (s *Sim) onReset(asserted bool) {
	if asserted {
		return
	}
	s.mu.Lock()
	s.mode = ModeBootloader
	s.mu.Unlock()
}

func (s *Sim) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		raw, err := s.end.ReadLine(10 * time.Millisecond)
		if err != nil {
			return
		}
		if len(raw) == 0 {
			continue
		}
		s.handle(string(raw))
	}
}

func (s *Sim) handle(line string) {
	s.mu.Lock()
	if s.expectBlob {
		s.expectBlob = false
		expectedSum := s.blobChecksum
		expectedLen := s.blobLen
		s.mu.Unlock()
		s.handleBlob(line, expectedLen, expectedSum)
		return
	}
	s.commands = append(s.commands, line)

	if s.mute > 0 {
		s.mute--
		s.mu.Unlock()
		return
	}
	if s.failNext != "" {
		msg := s.failNext
		s.failNext = ""
		s.mu.Unlock()
		s.emit(line) // echo
		s.emit("Error: " + msg)
		return
	}

	var replay []string
	for _, rule := range s.scripts {
		if strings.Contains(line, rule.match) {
			replay = append(replay, rule.lines...)
		}
	}
	mode := s.mode
	s.mu.Unlock()

	// The HAT echoes every command line.
	s.emit(line)

	if mode == ModeBootloader {
		s.handleBootloader(line)
	} else {
		s.handleFirmware(line)
	}

	for _, l := range replay {
		s.emit(l)
	}
}

func (s *Sim) handleFirmware(line string) {
	verb, _, _ := strings.Cut(line, " ")
	switch verb {
	case "version":
		s.mu.Lock()
		v := s.firmwareVersion
		s.mu.Unlock()
		s.emit(fmt.Sprintf("Firmware version: %d 2025-01-22T16:41:57+00:00", v))
	case "vin":
		s.mu.Lock()
		v := s.vin
		s.mu.Unlock()
		s.emit(fmt.Sprintf("%.1f V", v))
	case "list":
		s.mu.Lock()
		devices := make([]Device, 0, len(s.devices))
		for _, d := range s.devices {
			devices = append(devices, d)
		}
		s.mu.Unlock()
		for _, d := range devices {
			s.announce(d)
		}
	case "ledmode", "clear_faults", "port", "echo", "debug":
		// Accepted silently.
	default:
		s.emit("Error: unknown command")
	}
}

func (s *Sim) handleBootloader(line string) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "version":
		s.emit("BuildHAT bootloader version 1637109413 2021-11-16T23:56:53+00:00")
		s.emit("BHBL>")
	case "clear":
		s.emit("BHBL>")
	case "load":
		fields := strings.Fields(rest)
		if len(fields) == 2 {
			length, _ := strconv.Atoi(fields[0])
			sum, _ := strconv.ParseUint(fields[1], 10, 32)
			s.mu.Lock()
			s.expectBlob = true
			s.blobLen = length
			s.blobChecksum = uint32(sum)
			s.mu.Unlock()
		}
	case "signature":
		s.mu.Lock()
		s.expectBlob = true
		s.blobLen, _ = strconv.Atoi(strings.TrimSpace(rest))
		s.blobChecksum = 0
		s.mu.Unlock()
	case "reboot":
		s.mu.Lock()
		s.mode = ModeFirmware
		devices := make([]Device, 0, len(s.devices))
		for _, d := range s.devices {
			devices = append(devices, d)
		}
		s.mu.Unlock()
		s.emit("Done initialising ports")
		for _, d := range devices {
			s.announce(d)
		}
	default:
		s.emit("BHBL>")
	}
}

// handleBlob verifies an STX/ETX framed upload and answers the prompt.
func (s *Sim) handleBlob(line string, wantLen int, wantSum uint32) {
	payload := []byte(line)
	if len(payload) >= 2 && payload[0] == 0x02 && payload[len(payload)-1] == 0x03 {
		payload = payload[1 : len(payload)-1]
	}
	if wantLen != len(payload) {
		s.emit("Error: length mismatch")
		return
	}
	if wantSum != 0 && firmware.Checksum(payload) != wantSum {
		s.emit("Error: checksum mismatch")
		return
	}
	s.emit("BHBL>")
}

// announce emits the attach notification and, for active devices, the
// detail block.
func (s *Sim) announce(d Device) {
	if d.Active {
		s.emit(fmt.Sprintf("P%d: connected to active ID %X", d.Port, d.Type))
		for _, l := range d.Detail {
			s.emit(l)
		}
		s.emit(fmt.Sprintf("P%d: established serial communication with active ID %X", d.Port, d.Type))
	} else {
		s.emit(fmt.Sprintf("P%d: connected to passive ID %X", d.Port, d.Type))
	}
}

func (s *Sim) emit(line string) {
	_ = s.end.Write([]byte(line + "\r\n"))
}

func joinValues(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
