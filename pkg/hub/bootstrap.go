package hub

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/CDarius/buildhat-go/pkg/firmware"
	"github.com/CDarius/buildhat-go/pkg/log"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// BootState is the boot sequence state.
type BootState uint8

const (
	// BootIdle - hub created but not started.
	BootIdle BootState = iota

	// BootProbing - waiting for an answer to the version probe.
	BootProbing

	// BootLoading - uploading firmware through the bootloader.
	BootLoading

	// BootAwaitingReady - waiting for the ready banner after reboot.
	BootAwaitingReady

	// BootDiscovering - draining attach notifications.
	BootDiscovering

	// BootReady - the HAT accepts commands.
	BootReady

	// BootFailed - the boot sequence gave up.
	BootFailed
)

// String returns the state name.
func (s BootState) String() string {
	switch s {
	case BootIdle:
		return "IDLE"
	case BootProbing:
		return "PROBING"
	case BootLoading:
		return "LOADING"
	case BootAwaitingReady:
		return "AWAITING_READY"
	case BootDiscovering:
		return "DISCOVERING"
	case BootReady:
		return "READY"
	case BootFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Control bytes framing the firmware image on the wire.
const (
	asciiSTX = 0x02
	asciiETX = 0x03
)

// bootstrap brings the HAT to the Ready state. It runs synchronously
// before the dispatcher goroutine starts, so it reads the transport
// directly.
func (h *Hub) bootstrap() error {
	h.setBootState(BootProbing, "")

	// Hold the reset line at its run level.
	if err := h.tr.AssertReset(true); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// The first command after opening the UART goes unanswered, a
	// quirk of the HAT firmware. Burn a probe and drop its output.
	if err := h.writeCommand(wire.Version()); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	for i := 0; i < 3; i++ {
		if _, err := h.tr.ReadLine(h.cfg.ReadPoll); err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
	}

	state, hatVersion, err := h.probeVersion()
	if err != nil {
		h.setBootState(BootFailed, err.Error())
		return err
	}

	loaded := false
	switch state {
	case probeBootloader:
		if err := h.loadFirmware(); err != nil {
			h.setBootState(BootFailed, err.Error())
			return err
		}
		loaded = true
	case probeOutdated:
		// Reset drops the RAM-loaded firmware and lands in the
		// bootloader.
		if err := h.resetPulse(); err != nil {
			h.setBootState(BootFailed, err.Error())
			return err
		}
		if err := h.loadFirmware(); err != nil {
			h.setBootState(BootFailed, err.Error())
			return err
		}
		loaded = true
	case probeCurrent:
		h.version = hatVersion
	}

	if err := h.writeCommand(wire.LEDMode(int(h.cfg.LED))); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	h.setBootState(BootDiscovering, "")
	if err := h.discover(loaded); err != nil {
		h.setBootState(BootFailed, err.Error())
		return err
	}

	h.setBootState(BootReady, "")
	return nil
}

// probeState is the outcome of the version probe.
type probeState int

const (
	probeCurrent probeState = iota
	probeOutdated
	probeBootloader
)

// probeVersion sends a version command and classifies the answer.
func (h *Hub) probeVersion() (probeState, int64, error) {
	if err := h.writeCommand(wire.Version()); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var want int64 = -1
	if h.supplier != nil {
		img, err := h.supplier.Image()
		if err == nil {
			want = img.Version
		}
	}

	deadline := time.Now().Add(h.cfg.BannerTimeout)
	attempts := 10
	for attempts > 0 && time.Now().Before(deadline) {
		raw, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		attempts--
		if len(raw) == 0 {
			continue
		}
		line := string(raw)
		h.traceLine(log.DirectionIn, log.LayerTransport, line, "")

		tok := wire.Decode(line)
		switch tok.Kind {
		case wire.KindCommandEcho:
			attempts++ // the echo doesn't count as an answer
		case wire.KindFirmwareBanner:
			stamp, err := parseVersionStamp(tok.Text)
			if err != nil {
				return 0, 0, err
			}
			if want >= 0 && stamp != want {
				return probeOutdated, stamp, nil
			}
			return probeCurrent, stamp, nil
		case wire.KindBootloaderBanner:
			return probeBootloader, 0, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: no answer to version probe", ErrNotReady)
}

// parseVersionStamp extracts the build stamp from the firmware banner
// payload ("1737564117 2025-01-22T16:41:57+00:00").
func parseVersionStamp(text string) (int64, error) {
	field, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	stamp, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed firmware banner %q: %w", text, err)
	}
	return stamp, nil
}

// resetPulse restarts the HAT: low 10ms, high 10ms, low, then a settle
// delay while the bootloader comes up.
func (h *Hub) resetPulse() error {
	if err := h.tr.AssertReset(false); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := h.tr.AssertReset(true); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := h.tr.AssertReset(false); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

// loadFirmware drives the bootloader upload handshake.
func (h *Hub) loadFirmware() error {
	if h.supplier == nil {
		return fmt.Errorf("%w: HAT is in bootloader mode and no firmware supplier is configured", ErrFirmwareLoad)
	}
	img, err := h.supplier.Image()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}

	h.setBootState(BootLoading, "")

	if err := h.writeCommand(wire.Clear()); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	if err := h.awaitPrompt(); err != nil {
		return err
	}

	sum := firmware.Checksum(img.Firmware)
	if err := h.writeCommand(wire.Load(len(img.Firmware), sum)); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := h.writeFramed(img.Firmware); err != nil {
		return err
	}
	if err := h.awaitPrompt(); err != nil {
		return err
	}

	if err := h.writeCommand(wire.Signature(len(img.Signature))); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := h.writeFramed(img.Signature); err != nil {
		return err
	}
	if err := h.awaitPrompt(); err != nil {
		return err
	}

	h.setBootState(BootAwaitingReady, "")
	if err := h.writeCommand(wire.Reboot()); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	if err := h.awaitLine(func(line string) bool {
		return wire.Decode(line).Kind == wire.KindReadyBanner
	}, h.cfg.RebootTimeout); err != nil {
		return fmt.Errorf("%w: ready banner not seen after reboot: %v", ErrFirmwareLoad, err)
	}

	h.version = img.Version
	return nil
}

// writeFramed sends a payload between STX and ETX markers.
func (h *Hub) writeFramed(payload []byte) error {
	if err := h.write([]byte{asciiSTX}); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	if err := h.write(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	if err := h.write([]byte{asciiETX, '\r'}); err != nil {
		return fmt.Errorf("%w: %v", ErrFirmwareLoad, err)
	}
	return nil
}

// awaitPrompt waits for the bootloader prompt.
func (h *Hub) awaitPrompt() error {
	err := h.awaitLine(func(line string) bool {
		return wire.Decode(line).Kind == wire.KindPrompt
	}, h.cfg.PromptTimeout)
	if err != nil {
		return fmt.Errorf("%w: bootloader prompt not seen: %v", ErrFirmwareLoad, err)
	}
	return nil
}

// awaitLine reads until accept matches a line or the timeout expires.
func (h *Hub) awaitLine(accept func(string) bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		raw, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if len(raw) == 0 {
			continue
		}
		line := string(raw)
		h.traceLine(log.DirectionIn, log.LayerTransport, line, "")
		if accept(line) {
			return nil
		}
	}
	return ErrTimeout
}

// discover drains the HAT's attach notifications so that ports are
// populated before Start returns. A freshly flashed HAT needs up to
// ten seconds to enumerate its devices; an already-running one answers
// a list command promptly.
func (h *Hub) discover(afterLoad bool) error {
	if afterLoad {
		h.drainFor(h.cfg.DiscoverySettle)
		return nil
	}

	if err := h.writeCommand(wire.List()); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	// Wait for the first line, then keep going until the HAT falls
	// silent.
	deadline := time.Now().Add(h.cfg.CommandTimeout)
	for time.Now().Before(deadline) {
		raw, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if len(raw) == 0 {
			continue
		}
		h.dispatchLine(string(raw))
		break
	}
	h.drainUntilIdle()
	return nil
}

// drainFor dispatches everything that arrives within the window.
func (h *Hub) drainFor(window time.Duration) {
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		raw, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil {
			return
		}
		if len(raw) == 0 {
			continue
		}
		h.dispatchLine(string(raw))
	}
}

// drainUntilIdle dispatches lines until one poll interval passes with
// nothing received.
func (h *Hub) drainUntilIdle() {
	for {
		raw, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil || raw == nil {
			return
		}
		if len(raw) == 0 {
			continue
		}
		h.dispatchLine(string(raw))
	}
}
