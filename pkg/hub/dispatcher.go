package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CDarius/buildhat-go/pkg/log"
	"github.com/CDarius/buildhat-go/pkg/transport"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// doneKey identifies a completion wait (ramp done / pulse done).
type doneKey struct {
	port int
	kind wire.Kind
}

// readLoop runs on its own goroutine after bootstrap. It owns all
// reads from the transport and all dispatch state mutation.
func (h *Hub) readLoop() {
	defer close(h.readerDone)
	for {
		select {
		case <-h.stop:
			return
		default:
		}

		line, err := h.tr.ReadLine(h.cfg.ReadPoll)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return
			}
			select {
			case <-h.stop:
				return
			default:
			}
			h.traceError(log.LayerTransport, err, "read loop")
			h.channel.close()
			return
		}
		if len(line) == 0 {
			continue
		}
		h.dispatchLine(string(line))
	}
}

// dispatchLine processes one received line, in strict arrival order.
func (h *Hub) dispatchLine(line string) {
	h.traceLine(log.DirectionIn, log.LayerTransport, line, "")

	// An in-progress attach detail block captures lines first.
	if port, ok := h.registry.collecting(); ok {
		consumed, completed := h.registry.feedDetail(port, line)
		if completed != nil {
			h.tracePortState(port, PortConnecting.String(), PortConnected.String(), "detail block complete")
			h.notifyAttach(*completed)
		}
		if consumed {
			return
		}
	}

	tok := wire.Decode(line)
	h.traceLine(log.DirectionIn, log.LayerWire, line, tok.Kind.String())

	switch tok.Kind {
	case wire.KindPortAttach:
		h.handleAttach(tok)
	case wire.KindPortDetach:
		h.handleDetach(tok)
	case wire.KindPortValue:
		h.handleValue(tok)
	case wire.KindRampDone:
		h.completeWait(doneKey{port: tok.Port, kind: wire.KindRampDone}, nil)
	case wire.KindPulseDone:
		h.completeWait(doneKey{port: tok.Port, kind: wire.KindPulseDone}, nil)
	case wire.KindCommandEcho:
		// The HAT echoes every command; nothing to do.
	default:
		// Reply-class tokens, banners and unrecognized lines go to
		// the pending command, if any matches.
		h.channel.deliver(tok)
	}
}

// handleAttach processes a device attach notification.
func (h *Hub) handleAttach(tok wire.Token) {
	if tok.Port < 0 || tok.Port >= NumPorts {
		return
	}
	info := h.registry.attach(tok.Port, tok.DeviceType, tok.Active)
	h.tracePortState(tok.Port, PortEmpty.String(), info.State.String(),
		fmt.Sprintf("attach type %#x", tok.DeviceType))
	if info.State == PortConnected {
		h.notifyAttach(info)
	}
}

// handleDetach processes a device detach notification.
func (h *Hub) handleDetach(tok wire.Token) {
	if tok.Port < 0 || tok.Port >= NumPorts {
		return
	}
	info, had := h.registry.detach(tok.Port)
	if !had {
		return
	}
	h.tracePortState(tok.Port, info.State.String(), PortEmpty.String(), "detach")

	// A command addressed to the vanished device can never complete.
	h.channel.failDetached(tok.Port)

	// Completion waiters on this port fail as well.
	h.failWaits(tok.Port)

	// Subscription streams end; the last value stays readable.
	h.store.closePort(tok.Port)

	h.notifyDetach(info)
}

// handleValue routes a telemetry line into the value store. Combi
// updates are decomposed into one value per member mode.
func (h *Hub) handleValue(tok wire.Token) {
	if tok.Port < 0 || tok.Port >= NumPorts {
		return
	}
	now := time.Now()
	if !tok.Combi {
		h.store.publish(Value{Port: tok.Port, Mode: tok.Mode, Values: tok.Values, At: now})
		return
	}

	modes, ok := h.registry.comboModes(tok.Port, tok.Mode)
	if !ok || len(modes) != len(tok.Values) {
		h.traceError(log.LayerWire,
			fmt.Errorf("combi %d update with %d values has no matching descriptor", tok.Mode, len(tok.Values)),
			tok.Raw)
		return
	}
	for i, mode := range modes {
		h.store.publish(Value{Port: tok.Port, Mode: mode, Values: []float64{tok.Values[i]}, At: now})
	}
}

// AwaitCompletion blocks until the HAT reports the given completion on
// the port (wire.KindRampDone or wire.KindPulseDone), the device
// detaches, or the context ends.
func (h *Hub) AwaitCompletion(ctx context.Context, port int, kind wire.Kind) error {
	if port < 0 || port >= NumPorts {
		return fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	key := doneKey{port: port, kind: kind}
	ch := make(chan error, 1)

	h.doneMu.Lock()
	h.doneWaits[key] = append(h.doneWaits[key], ch)
	h.doneMu.Unlock()

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		h.removeWait(key, ch)
		return ctx.Err()
	case <-h.stop:
		h.removeWait(key, ch)
		return ErrClosed
	}
}

// completeWait releases every waiter for a completion event.
func (h *Hub) completeWait(key doneKey, err error) {
	h.doneMu.Lock()
	waiters := h.doneWaits[key]
	delete(h.doneWaits, key)
	h.doneMu.Unlock()
	for _, ch := range waiters {
		ch <- err
	}
}

// failWaits fails every completion waiter on a port.
func (h *Hub) failWaits(port int) {
	err := fmt.Errorf("%w: port %d", ErrDeviceDetached, port)
	h.completeWait(doneKey{port: port, kind: wire.KindRampDone}, err)
	h.completeWait(doneKey{port: port, kind: wire.KindPulseDone}, err)
}

// removeWait unregisters one waiter channel.
func (h *Hub) removeWait(key doneKey, ch chan error) {
	h.doneMu.Lock()
	waiters := h.doneWaits[key]
	for i, candidate := range waiters {
		if candidate == ch {
			h.doneWaits[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(h.doneWaits[key]) == 0 {
		delete(h.doneWaits, key)
	}
	h.doneMu.Unlock()
}
