package device

import (
	"context"
	"fmt"
	"time"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// PassiveMotor drives a plain DC motor (train motors and the like)
// through direct PWM. Passive motors have no encoder and report
// nothing back.
type PassiveMotor struct {
	base

	defaultSpeed float64
	actualSpeed  float64
}

// NewPassiveMotor wraps the passive motor on the given port. The motor
// is stopped and its power limit raised to full as part of setup.
func NewPassiveMotor(ctx context.Context, h *hub.Hub, port int) (*PassiveMotor, error) {
	b, info, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if !b.typ.IsMotor() || info.Active {
		return nil, fmt.Errorf("%w: %s on port %d is not a passive motor", ErrWrongDevice, b.typ, port)
	}

	m := &PassiveMotor{base: b, defaultSpeed: 0.3}
	if err := m.Stop(ctx); err != nil {
		return nil, err
	}
	if err := m.SetPowerLimit(ctx, 1); err != nil {
		return nil, err
	}
	return m, nil
}

// DefaultSpeed returns the speed used by Start with no explicit speed.
func (m *PassiveMotor) DefaultSpeed() float64 { return m.defaultSpeed }

// SetDefaultSpeed sets the speed used by Start with no explicit speed,
// 0 to 1.
func (m *PassiveMotor) SetDefaultSpeed(speed float64) error {
	if speed < 0 || speed > 1 {
		return fmt.Errorf("%w: speed %v not in 0 to 1", ErrOutOfRange, speed)
	}
	m.defaultSpeed = speed
	return nil
}

// Start runs the motor at the given speed, -1 to 1.
func (m *PassiveMotor) Start(ctx context.Context, speed float64) error {
	if speed < -1 || speed > 1 {
		return fmt.Errorf("%w: speed %v not in -1 to 1", ErrOutOfRange, speed)
	}
	if !m.connected() {
		return fmt.Errorf("%w: port %d", ErrNotConnected, m.port)
	}
	if m.actualSpeed == speed {
		return nil
	}
	if err := m.hub.Send(ctx, wire.Port(m.port).PWM().Set(speed).Build()); err != nil {
		return err
	}
	m.actualSpeed = speed
	return nil
}

// StartDefault runs the motor at the default speed.
func (m *PassiveMotor) StartDefault(ctx context.Context) error {
	return m.Start(ctx, m.defaultSpeed)
}

// RunForDuration runs the motor at the given speed for the duration
// and blocks until the firmware reports the pulse finished.
func (m *PassiveMotor) RunForDuration(ctx context.Context, d time.Duration, speed float64) error {
	if speed < -1 || speed > 1 {
		return fmt.Errorf("%w: speed %v not in -1 to 1", ErrOutOfRange, speed)
	}
	if !m.connected() {
		return fmt.Errorf("%w: port %d", ErrNotConnected, m.port)
	}
	cmd := wire.Port(m.port).PWM().SetPulse(speed, d.Seconds()).Build()
	if err := m.hub.Send(ctx, cmd); err != nil {
		return err
	}
	m.actualSpeed = speed
	err := m.hub.AwaitCompletion(ctx, m.port, wire.KindPulseDone)
	m.actualSpeed = 0
	return err
}

// Stop stops the motor.
func (m *PassiveMotor) Stop(ctx context.Context) error {
	if err := m.Off(ctx); err != nil {
		return err
	}
	m.actualSpeed = 0
	return nil
}

// SetPWMParams sets the PWM drive thresholds, both 0 to 1.
func (m *PassiveMotor) SetPWMParams(ctx context.Context, pwmthresh, minpwm float64) error {
	if pwmthresh < 0 || pwmthresh > 1 {
		return fmt.Errorf("%w: pwmthresh %v not in 0 to 1", ErrOutOfRange, pwmthresh)
	}
	if minpwm < 0 || minpwm > 1 {
		return fmt.Errorf("%w: minpwm %v not in 0 to 1", ErrOutOfRange, minpwm)
	}
	return m.hub.Send(ctx, wire.Port(m.port).PWMParams(pwmthresh, minpwm).Build())
}
