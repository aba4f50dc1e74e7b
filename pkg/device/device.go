package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

var (
	// ErrNotConnected - the port has no usable device.
	ErrNotConnected = errors.New("no device connected on port")

	// ErrWrongDevice - the attached device is of a different type than
	// the wrapper expects.
	ErrWrongDevice = errors.New("device type mismatch")

	// ErrOutOfRange - a parameter is outside its allowed range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrNoReading - the device has not reported a value yet.
	ErrNoReading = errors.New("no reading available")
)

// defaultUpdateInterval is the streaming rate in milliseconds applied
// when a read mode is selected.
const defaultUpdateInterval = 50

// Device is the behavior common to all typed wrappers.
type Device interface {
	// Port returns the port index the device sits on.
	Port() int

	// Type returns the attached device type.
	Type() Type

	// Off powers the device down.
	Off(ctx context.Context) error
}

// Open returns the wrapper matching the device attached to the port.
// Unrecognized types get a Generic wrapper.
func Open(ctx context.Context, h *hub.Hub, port int) (Device, error) {
	info, err := h.Port(port)
	if err != nil {
		return nil, err
	}
	if info.State != hub.PortConnected {
		return nil, fmt.Errorf("%w: port %d", ErrNotConnected, port)
	}

	typ := Type(info.DeviceType)
	switch {
	case typ.IsMotor() && info.Active:
		return NewActiveMotor(ctx, h, port)
	case typ.IsMotor():
		return NewPassiveMotor(ctx, h, port)
	case typ == TypeSpikeColorSensor:
		return NewColorSensor(ctx, h, port)
	case typ == TypeColorAndDistanceSensor:
		return NewColorDistanceSensor(ctx, h, port)
	case typ == TypeSpikeUltrasonicDistance:
		return NewDistanceSensor(ctx, h, port)
	case typ == TypeSpike3x3ColorLightMatrix:
		return NewLightMatrix(ctx, h, port)
	}

	base, _, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	return &Generic{base: base}, nil
}

// base carries the hub handle and port identity shared by all
// wrappers.
type base struct {
	hub  *hub.Hub
	port int
	typ  Type
	rate int
}

func newBase(h *hub.Hub, port int) (base, hub.PortInfo, error) {
	info, err := h.Port(port)
	if err != nil {
		return base{}, info, err
	}
	if info.State != hub.PortConnected {
		return base{}, info, fmt.Errorf("%w: port %d", ErrNotConnected, port)
	}
	return base{
		hub:  h,
		port: port,
		typ:  Type(info.DeviceType),
		rate: defaultUpdateInterval,
	}, info, nil
}

// Port returns the port index.
func (b *base) Port() int { return b.port }

// Type returns the attached device type.
func (b *base) Type() Type { return b.typ }

// On powers the port at full limit.
func (b *base) On(ctx context.Context) error {
	return b.hub.Send(ctx, wire.Port(b.port).PortPLimit(1).On().Build())
}

// Off powers the port down.
func (b *base) Off(ctx context.Context) error {
	return b.hub.Send(ctx, wire.Port(b.port).Off().Build())
}

// Write1 sends a raw message to the device.
func (b *base) Write1(ctx context.Context, data []byte) error {
	return b.hub.Send(ctx, wire.Port(b.port).Write1(data).Build())
}

// SetPowerLimit caps the port drive power, 0 to 1.
func (b *base) SetPowerLimit(ctx context.Context, limit float64) error {
	if limit < 0 || limit > 1 {
		return fmt.Errorf("%w: power limit %v not in 0 to 1", ErrOutOfRange, limit)
	}
	return b.hub.Send(ctx, wire.Port(b.port).PortPLimit(limit).Build())
}

// SetUpdateInterval sets the streaming rate in milliseconds used when
// a read mode is selected.
func (b *base) SetUpdateInterval(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("%w: update interval %d", ErrOutOfRange, ms)
	}
	b.rate = ms
	return nil
}

// selectMode starts streaming a single mode at the configured rate.
func (b *base) selectMode(ctx context.Context, mode int) error {
	return b.hub.Send(ctx, wire.Port(b.port).Select(mode).SelectRate(b.rate).Build())
}

// deselect stops streaming.
func (b *base) deselect(ctx context.Context) error {
	return b.hub.Send(ctx, wire.Port(b.port).Deselect().Build())
}

// connected reports whether the device is still attached.
func (b *base) connected() bool {
	info, err := b.hub.Port(b.port)
	return err == nil && info.State == hub.PortConnected && Type(info.DeviceType) == b.typ
}

// readOne waits for the next update of the given mode carrying the
// expected number of fields. Updates of other shapes are skipped.
func (b *base) readOne(ctx context.Context, mode, fields int) ([]float64, error) {
	sub, err := b.hub.Subscribe(b.port, mode)
	if err != nil {
		return nil, err
	}
	defer sub.Close()

	for {
		select {
		case v, open := <-sub.Values():
			if !open {
				return nil, fmt.Errorf("%w: port %d", ErrNotConnected, b.port)
			}
			if len(v.Values) == fields {
				return v.Values, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// latestInt returns the most recent value of a mode as an int.
func (b *base) latestInt(mode int) (int, bool) {
	v, ok := b.hub.Latest(b.port, mode)
	if !ok || len(v.Values) == 0 {
		return 0, false
	}
	return int(v.Values[0]), true
}

// Generic wraps a device with no dedicated wrapper. It exposes the
// shared primitives only.
type Generic struct {
	base
}

// ftoa formats floats the way the firmware parses them.
func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
