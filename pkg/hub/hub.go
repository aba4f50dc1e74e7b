package hub

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/CDarius/buildhat-go/pkg/firmware"
	"github.com/CDarius/buildhat-go/pkg/log"
	"github.com/CDarius/buildhat-go/pkg/transport"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// Hub drives one Build HAT over a Transport. Construct with New,
// bring up with Start, release with Close.
type Hub struct {
	cfg      Config
	tr       transport.Transport
	trace    log.Logger
	supplier firmware.Supplier
	session  string

	channel  *commandChannel
	registry *portRegistry
	store    *valueStore

	// Boot
	bootMu    sync.RWMutex
	bootState BootState
	version   int64
	ready     bool

	// Completion waiters (ramp done / pulse done)
	doneMu    sync.Mutex
	doneWaits map[doneKey][]chan error

	// Lifecycle
	stop       chan struct{}
	readerDone chan struct{}
	readerUp   atomic.Bool
	closeOnce  sync.Once

	// Callbacks, invoked outside all locks
	cbMu     sync.RWMutex
	onAttach func(PortInfo)
	onDetach func(PortInfo)
}

// Option configures a Hub.
type Option func(*Hub)

// WithFirmware provides the firmware image flashed when the HAT is
// found in bootloader mode or running a different build.
func WithFirmware(s firmware.Supplier) Option {
	return func(h *Hub) { h.supplier = s }
}

// WithTrace captures the protocol conversation.
func WithTrace(l log.Logger) Option {
	return func(h *Hub) { h.trace = l }
}

// New creates a Hub on the given transport. The transport is owned by
// the hub from here on; Close closes it.
func New(cfg Config, tr transport.Transport, opts ...Option) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	h := &Hub{
		cfg:        cfg,
		tr:         tr,
		trace:      log.NoopLogger{},
		session:    uuid.NewString(),
		channel:    newCommandChannel(),
		registry:   newPortRegistry(),
		store:      newValueStore(),
		doneWaits:  make(map[doneKey][]chan error),
		stop:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Start runs the boot sequence and then starts the dispatcher. It
// blocks until the HAT is Ready (including a firmware flash when
// needed) or the boot fails.
func (h *Hub) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.bootstrap(); err != nil {
		return err
	}

	h.bootMu.Lock()
	h.ready = true
	h.bootMu.Unlock()

	h.readerUp.Store(true)
	go h.readLoop()
	return nil
}

// Close stops the dispatcher and closes the transport. Safe to call
// more than once.
func (h *Hub) Close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.stop)
		h.channel.close()
		err = h.tr.Close()
		// The reader goroutine only exists after a successful Start.
		if h.readerUp.Load() {
			<-h.readerDone
		}
	})
	return err
}

// Session returns the hub's trace session ID.
func (h *Hub) Session() string {
	return h.session
}

// BootState returns the current boot sequence state.
func (h *Hub) BootState() BootState {
	h.bootMu.RLock()
	defer h.bootMu.RUnlock()
	return h.bootState
}

// FirmwareVersion returns the build stamp of the running firmware.
func (h *Hub) FirmwareVersion() int64 {
	h.bootMu.RLock()
	defer h.bootMu.RUnlock()
	return h.version
}

// Noise returns the number of received lines that matched no consumer.
func (h *Hub) Noise() uint64 {
	return h.channel.noiseCount()
}

// OnAttach registers a callback invoked when a device becomes usable
// on a port. The callback runs on the dispatcher goroutine; it must
// not block.
func (h *Hub) OnAttach(fn func(PortInfo)) {
	h.cbMu.Lock()
	h.onAttach = fn
	h.cbMu.Unlock()
}

// OnDetach registers a callback invoked when a device leaves a port.
func (h *Hub) OnDetach(fn func(PortInfo)) {
	h.cbMu.Lock()
	h.onDetach = fn
	h.cbMu.Unlock()
}

// Port returns a snapshot of one port.
func (h *Hub) Port(port int) (PortInfo, error) {
	if port < 0 || port >= NumPorts {
		return PortInfo{}, fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	return h.registry.snapshot(port), nil
}

// Ports returns a snapshot of all four ports.
func (h *Hub) Ports() [NumPorts]PortInfo {
	var out [NumPorts]PortInfo
	for i := range out {
		out[i] = h.registry.snapshot(i)
	}
	return out
}

// Latest returns the most recent value for a (port, mode) pair.
func (h *Hub) Latest(port, mode int) (Value, bool) {
	return h.store.Latest(port, mode)
}

// Subscribe returns an update stream for a (port, mode) pair. The
// stream ends when the device detaches or the subscription is closed.
func (h *Hub) Subscribe(port, mode int) (*Subscription, error) {
	if port < 0 || port >= NumPorts {
		return nil, fmt.Errorf("%w: %d", ErrPortOutOfRange, port)
	}
	return h.store.Subscribe(port, mode), nil
}

// Send submits a fire-and-forget command.
func (h *Hub) Send(ctx context.Context, cmd wire.Command) error {
	_, err := h.Submit(ctx, cmd, ReplySpec{Kind: ReplyNone}, -1)
	return err
}

// Submit serializes a command onto the wire and waits for its reply
// per spec. port associates the command with a device port so that a
// detach fails it promptly; pass -1 for hub-level commands.
func (h *Hub) Submit(ctx context.Context, cmd wire.Command, spec ReplySpec, port int) ([]wire.Token, error) {
	if !h.isReady() {
		return nil, ErrNotReady
	}
	return h.channel.run(ctx, h.writeTraced(cmd), cmd, spec, port, h.cfg.CommandTimeout)
}

// Vin reads the voltage on the HAT's power jack.
func (h *Hub) Vin(ctx context.Context) (float64, error) {
	spec := ReplySpec{
		Kind: ReplySingle,
		Match: func(tok wire.Token) bool {
			return tok.Kind == wire.KindNumericReply && len(tok.Values) == 1
		},
	}
	tokens, err := h.Submit(ctx, wire.Vin(), spec, -1)
	if err != nil {
		return 0, err
	}
	return tokens[0].Values[0], nil
}

// Version asks the running firmware for its build stamp.
func (h *Hub) Version(ctx context.Context) (int64, error) {
	spec := ReplySpec{
		Kind: ReplySingle,
		Match: func(tok wire.Token) bool {
			return tok.Kind == wire.KindFirmwareBanner
		},
	}
	tokens, err := h.Submit(ctx, wire.Version(), spec, -1)
	if err != nil {
		return 0, err
	}
	return parseVersionStamp(tokens[0].Text)
}

// SetLEDMode changes the HAT status LED behavior.
func (h *Hub) SetLEDMode(ctx context.Context, mode LEDMode) error {
	return h.Send(ctx, wire.LEDMode(int(mode)))
}

// ClearFaults clears latched motor faults.
func (h *Hub) ClearFaults(ctx context.Context) error {
	return h.Send(ctx, wire.ClearFaults())
}

// List asks the HAT to re-announce every populated port. The answers
// arrive as ordinary attach notifications on the dispatcher.
func (h *Hub) List(ctx context.Context) error {
	return h.Send(ctx, wire.List())
}

func (h *Hub) isReady() bool {
	h.bootMu.RLock()
	defer h.bootMu.RUnlock()
	return h.ready
}

// write sends raw bytes without tracing. Used for firmware payloads.
func (h *Hub) write(p []byte) error {
	return h.tr.Write(p)
}

// writeCommand traces and sends one command line.
func (h *Hub) writeCommand(cmd wire.Command) error {
	h.traceLine(log.DirectionOut, log.LayerTransport, cmd.String(), "")
	return h.tr.Write(cmd.Bytes())
}

// writeTraced adapts writeCommand to the command channel's write
// boundary.
func (h *Hub) writeTraced(cmd wire.Command) func([]byte) error {
	return func(p []byte) error {
		h.traceLine(log.DirectionOut, log.LayerTransport, cmd.String(), "")
		return h.tr.Write(p)
	}
}

// notifyAttach fires the attach callback.
func (h *Hub) notifyAttach(info PortInfo) {
	h.cbMu.RLock()
	fn := h.onAttach
	h.cbMu.RUnlock()
	if fn != nil {
		fn(info)
	}
}

// notifyDetach fires the detach callback.
func (h *Hub) notifyDetach(info PortInfo) {
	h.cbMu.RLock()
	fn := h.onDetach
	h.cbMu.RUnlock()
	if fn != nil {
		fn(info)
	}
}

// setBootState records a boot state transition and traces it.
func (h *Hub) setBootState(state BootState, reason string) {
	h.bootMu.Lock()
	old := h.bootState
	h.bootState = state
	h.bootMu.Unlock()
	h.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: h.session,
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityBoot,
			OldState: old.String(),
			NewState: state.String(),
			Reason:   reason,
		},
	})
}

// traceLine records one protocol line.
func (h *Hub) traceLine(dir log.Direction, layer log.Layer, text, kind string) {
	h.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: h.session,
		Direction: dir,
		Layer:     layer,
		Category:  log.CategoryLine,
		Line:      &log.LineEvent{Text: text, Kind: kind},
	})
}

// tracePortState records a port lifecycle transition.
func (h *Hub) tracePortState(port int, oldState, newState, reason string) {
	p := port
	h.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: h.session,
		Layer:     log.LayerHub,
		Category:  log.CategoryState,
		Port:      &p,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityPort,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

// traceError records an error event.
func (h *Hub) traceError(layer log.Layer, err error, context string) {
	h.trace.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: h.session,
		Layer:     layer,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context},
	})
}
