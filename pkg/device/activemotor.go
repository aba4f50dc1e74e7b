package device

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// SpeedUnit is the unit of speed arguments to the run operations.
type SpeedUnit uint8

const (
	// UnitRPM - revolutions per minute.
	UnitRPM SpeedUnit = iota
	// UnitDGS - degrees per second.
	UnitDGS
)

// String returns the unit name.
func (u SpeedUnit) String() string {
	switch u {
	case UnitRPM:
		return "RPM"
	case UnitDGS:
		return "DGS"
	default:
		return "unknown"
	}
}

// Direction selects how an absolute angle target is approached.
type Direction uint8

const (
	// Shortest - whichever way is closer.
	Shortest Direction = iota
	// Clockwise rotation only.
	Clockwise
	// CounterClockwise rotation only.
	CounterClockwise
)

// ActiveMotor drives an encoder motor: positional ramps, timed pulses
// and continuous runs with PID control, plus position and speed
// telemetry decoded from the motor's combi mode.
type ActiveMotor struct {
	base

	speedMode int
	posMode   int
	aposMode  int

	defaultSpeed    float64
	speedUnit       SpeedUnit
	posTolerance    int
	releaseAfterRun bool
	reverseFactor   int
	posOffset       int

	speedPID    [3]float64
	positionPID [3]float64
}

// NewActiveMotor wraps the encoder motor on the given port. Setup
// stops the drive, raises the power limit and selects the motor's
// first combi mode so that speed and position stream continuously.
func NewActiveMotor(ctx context.Context, h *hub.Hub, port int) (*ActiveMotor, error) {
	b, info, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if !b.typ.IsMotor() || !info.Active {
		return nil, fmt.Errorf("%w: %s on port %d is not an encoder motor", ErrWrongDevice, b.typ, port)
	}

	m := &ActiveMotor{
		base:            b,
		speedMode:       -1,
		posMode:         -1,
		aposMode:        -1,
		defaultSpeed:    240,
		speedUnit:       UnitRPM,
		posTolerance:    5,
		releaseAfterRun: true,
		reverseFactor:   1,
		speedPID:        [3]float64{0, 2.5, 0},
		positionPID:     [3]float64{5, 0, 0.1},
	}
	if info.Modes != nil {
		if md, ok := info.Modes.ModeByName("SPEED"); ok {
			m.speedMode = md.Index
		}
		if md, ok := info.Modes.ModeByName("POS"); ok {
			m.posMode = md.Index
		}
		if md, ok := info.Modes.ModeByName("APOS"); ok {
			m.aposMode = md.Index
		}
	}

	if err := m.Off(ctx); err != nil {
		return nil, err
	}
	// The firmware default limit of 0.1 barely moves a motor.
	if err := m.SetPowerLimit(ctx, 0.7); err != nil {
		return nil, err
	}

	if info.Modes != nil {
		if combo, ok := info.Modes.Combo(0); ok {
			cmd := wire.Port(port).
				Combi(0, combo.Modes...).
				Select(0).
				SelectRate(m.rate).
				Build()
			if err := h.Send(ctx, cmd); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// SetSpeedUnit sets the unit of speed arguments.
func (m *ActiveMotor) SetSpeedUnit(unit SpeedUnit) { m.speedUnit = unit }

// SetDefaultSpeed sets the speed used when a run operation gets speed
// zero.
func (m *ActiveMotor) SetDefaultSpeed(speed float64) { m.defaultSpeed = speed }

// SetPositionTolerance sets the acceptable distance in degrees from a
// ramp target. A finished ramp outside the tolerance is retried.
func (m *ActiveMotor) SetPositionTolerance(degrees int) { m.posTolerance = degrees }

// SetReleaseAfterRun controls whether the motor coasts after a
// blocking run, so it can be turned by hand.
func (m *ActiveMotor) SetReleaseAfterRun(release bool) { m.releaseAfterRun = release }

// SetReverseDirection flips the rotation and position counting
// direction.
func (m *ActiveMotor) SetReverseDirection(reverse bool) {
	if reverse {
		m.reverseFactor = -1
	} else {
		m.reverseFactor = 1
	}
}

// SetSpeedPID sets the PID constants used for continuous and timed
// runs.
func (m *ActiveMotor) SetSpeedPID(p, i, d float64) { m.speedPID = [3]float64{p, i, d} }

// SetPositionPID sets the PID constants used for positional ramps.
func (m *ActiveMotor) SetPositionPID(p, i, d float64) { m.positionPID = [3]float64{p, i, d} }

// HasAbsolutePosition reports whether the motor provides an absolute
// position mode.
func (m *ActiveMotor) HasAbsolutePosition() bool { return m.aposMode >= 0 }

// Speed returns the last reported speed in degrees per second.
func (m *ActiveMotor) Speed() (int, bool) {
	if m.speedMode < 0 {
		return 0, false
	}
	raw, ok := m.latestInt(m.speedMode)
	if !ok {
		return 0, false
	}
	return raw * 10 * m.reverseFactor, true
}

// Position returns the last reported position in degrees, adjusted by
// SetPosition offsets.
func (m *ActiveMotor) Position() (int, bool) {
	if m.posMode < 0 {
		return 0, false
	}
	raw, ok := m.latestInt(m.posMode)
	if !ok {
		return 0, false
	}
	return (raw + m.posOffset) * m.reverseFactor, true
}

// SetPosition presets the current position to the given degree value.
func (m *ActiveMotor) SetPosition(degrees int) error {
	if m.posMode < 0 {
		return fmt.Errorf("%w: motor reports no position", ErrNoReading)
	}
	raw, ok := m.latestInt(m.posMode)
	if !ok {
		return fmt.Errorf("%w: position", ErrNoReading)
	}
	m.posOffset = degrees/m.reverseFactor - raw
	return nil
}

// AbsolutePosition returns the last reported absolute position, -180
// to 180 degrees.
func (m *ActiveMotor) AbsolutePosition() (int, error) {
	if m.aposMode < 0 {
		return 0, fmt.Errorf("%w: motor provides no absolute position", ErrNoReading)
	}
	raw, ok := m.latestInt(m.aposMode)
	if !ok {
		return 0, fmt.Errorf("%w: absolute position", ErrNoReading)
	}
	return raw * m.reverseFactor, nil
}

// Start runs the motor continuously at the given speed in the
// configured unit. Speed zero uses the default speed.
func (m *ActiveMotor) Start(ctx context.Context, speed float64) error {
	if !m.connected() {
		return fmt.Errorf("%w: port %d", ErrNotConnected, m.port)
	}
	if speed == 0 {
		speed = m.defaultSpeed
	}
	speed = m.normalizeSpeed(speed * float64(m.reverseFactor))
	speed, pid := m.speedCommand(speed)
	cmd := wire.Port(m.port).
		Select(0).
		SelectRate(m.rate).
		Append(pid).
		Set(speed).
		Build()
	return m.hub.Send(ctx, cmd)
}

// RunForDuration runs the motor for the given time and blocks until
// the firmware reports the pulse finished.
func (m *ActiveMotor) RunForDuration(ctx context.Context, d time.Duration, speed float64) error {
	if !m.connected() {
		return fmt.Errorf("%w: port %d", ErrNotConnected, m.port)
	}
	if speed == 0 {
		speed = m.defaultSpeed
	}
	norm := m.normalizeSpeed(speed * float64(m.reverseFactor))
	norm, pid := m.speedCommand(norm)
	cmd := wire.Port(m.port).
		Select(0).
		SelectRate(m.rate).
		Append(pid).
		SetPulse(norm, d.Seconds()).
		Build()
	if err := m.hub.Send(ctx, cmd); err != nil {
		return err
	}
	if err := m.hub.AwaitCompletion(ctx, m.port, wire.KindPulseDone); err != nil {
		return err
	}
	if m.releaseAfterRun {
		return m.Coast(ctx)
	}
	return nil
}

// RunForRotations turns the motor by the given number of rotations.
func (m *ActiveMotor) RunForRotations(ctx context.Context, rotations, speed float64) error {
	return m.RunForDegrees(ctx, rotations*360, speed)
}

// RunForDegrees turns the motor by the given angle and blocks until
// the positional ramp finishes.
func (m *ActiveMotor) RunForDegrees(ctx context.Context, degrees, speed float64) error {
	if speed == 0 {
		speed = m.defaultSpeed
	}
	degrees *= float64(m.reverseFactor)

	mul := 1.0
	if speed < 0 {
		speed = -speed
		mul = -1
	}
	raw, _ := m.rawPosition()
	pos := float64(raw)
	newpos := (degrees*mul + pos) / 360
	pos /= 360
	return m.runRamp(ctx, pos, newpos, speed)
}

// RunToPosition turns the motor to the given position in degrees and
// blocks until the positional ramp finishes.
func (m *ActiveMotor) RunToPosition(ctx context.Context, position, speed float64) error {
	if speed == 0 {
		speed = m.defaultSpeed
	}
	target := position*float64(m.reverseFactor) - float64(m.posOffset)

	mul := 1.0
	if speed < 0 {
		speed = -speed
		mul = -1
	}
	raw, _ := m.rawPosition()
	pos := float64(raw)
	newpos := target * mul / 360
	pos /= 360
	return m.runRamp(ctx, pos, newpos, speed)
}

// RunToAbsoluteAngle turns the motor to an absolute angle, -180 to 180
// degrees, approaching it in the given direction.
func (m *ActiveMotor) RunToAbsoluteAngle(ctx context.Context, angle int, speed float64, direction Direction) error {
	if angle < -180 || angle > 180 {
		return fmt.Errorf("%w: angle %d not in -180 to 180", ErrOutOfRange, angle)
	}
	if speed == 0 {
		speed = m.defaultSpeed
	}

	raw, _ := m.rawPosition()
	pos := raw
	apos := pos
	if m.aposMode >= 0 {
		if v, ok := m.latestInt(m.aposMode); ok {
			apos = v
		}
	}

	// Go's % keeps the dividend's sign, so fold into [0,360) first.
	diff := ((angle-apos+180)%360+360)%360 - 180
	newpos := float64(pos+diff) / 360
	v1 := (angle - apos) % 360
	if v1 < 0 {
		v1 += 360
	}
	v2 := (apos - angle) % 360
	if v2 < 0 {
		v2 += 360
	}
	mul := 1
	if diff > 0 {
		mul = -1
	}
	other := v1
	if abs(diff) == v1 {
		other = v2
	}
	lo, hi := diff, mul*other
	if lo > hi {
		lo, hi = hi, lo
	}
	switch direction {
	case Shortest:
	case Clockwise:
		newpos = float64(pos+hi) / 360
	case CounterClockwise:
		newpos = float64(pos+lo) / 360
	default:
		return fmt.Errorf("%w: direction %d", ErrOutOfRange, direction)
	}

	return m.runRamp(ctx, float64(pos)/360, newpos, math.Abs(speed))
}

// Coast releases the motor drive.
func (m *ActiveMotor) Coast(ctx context.Context) error {
	return m.hub.Send(ctx, wire.Port(m.port).Coast().Build())
}

// Stop stops the motor by coasting it.
func (m *ActiveMotor) Stop(ctx context.Context) error {
	return m.Coast(ctx)
}

// Off stops the drive by zeroing the PWM output.
func (m *ActiveMotor) Off(ctx context.Context) error {
	return m.PWM(ctx, 0)
}

// PWM drives the motor directly, bypassing the PID, -1 to 1.
func (m *ActiveMotor) PWM(ctx context.Context, v float64) error {
	if v < -1 || v > 1 {
		return fmt.Errorf("%w: pwm %v not in -1 to 1", ErrOutOfRange, v)
	}
	return m.hub.Send(ctx, wire.Port(m.port).PWM().Set(v).Build())
}

// SetPWMParams sets the PWM drive thresholds, both 0 to 1.
func (m *ActiveMotor) SetPWMParams(ctx context.Context, pwmthresh, minpwm float64) error {
	if pwmthresh < 0 || pwmthresh > 1 {
		return fmt.Errorf("%w: pwmthresh %v not in 0 to 1", ErrOutOfRange, pwmthresh)
	}
	if minpwm < 0 || minpwm > 1 {
		return fmt.Errorf("%w: minpwm %v not in 0 to 1", ErrOutOfRange, minpwm)
	}
	return m.hub.Send(ctx, wire.Port(m.port).PWMParams(pwmthresh, minpwm).Build())
}

// runRamp drives a positional ramp from pos to newpos, both in decimal
// rotations, at the given positive speed in the configured unit. It
// retries until the final position lands within the tolerance.
func (m *ActiveMotor) runRamp(ctx context.Context, pos, newpos, speed float64) error {
	if !m.connected() {
		return fmt.Errorf("%w: port %d", ErrNotConnected, m.port)
	}
	norm := m.normalizeSpeed(speed)
	if norm == 0 {
		return fmt.Errorf("%w: speed must not be zero", ErrOutOfRange)
	}

	for {
		dur := math.Abs((newpos - pos) / norm)
		kp, ki, kd := m.positionPID[0], m.positionPID[1], m.positionPID[2]
		pid := fmt.Sprintf("pid %d 0 1 s4 0.0027777778 0 %s %s %s 3 0.001",
			m.port, ftoa(kp), ftoa(ki), ftoa(kd))
		cmd := wire.Port(m.port).
			Select(0).
			SelectRate(m.rate).
			Append(pid).
			SetRamp(pos, newpos, dur).
			Build()
		if err := m.hub.Send(ctx, cmd); err != nil {
			return err
		}
		if err := m.hub.AwaitCompletion(ctx, m.port, wire.KindRampDone); err != nil {
			return err
		}

		raw, ok := m.rawPosition()
		if !ok {
			break
		}
		targetDeg := int(newpos * 360)
		if abs(targetDeg-raw) <= m.posTolerance {
			break
		}
		pos = float64(raw) / 360
	}

	if m.releaseAfterRun {
		return m.Coast(ctx)
	}
	return nil
}

// speedCommand converts a normalized speed into the setpoint actually
// sent, paired with the PID preset for this motor flavor. Motors
// without an absolute position mode run a fixed PID on deca-degrees
// per second.
func (m *ActiveMotor) speedCommand(norm float64) (float64, string) {
	if m.aposMode >= 0 {
		kp, ki, kd := m.speedPID[0], m.speedPID[1], m.speedPID[2]
		return norm, fmt.Sprintf("pid_diff %d 0 5 s2 0.0027777778 1 %s %s %s .4 0.01",
			m.port, ftoa(kp), ftoa(ki), ftoa(kd))
	}
	return norm * 36, fmt.Sprintf("pid %d 0 0 s1 1 0 0.003 0.01 0 100 0.01", m.port)
}

// normalizeSpeed converts from the configured unit to revolutions per
// second.
func (m *ActiveMotor) normalizeSpeed(speed float64) float64 {
	switch m.speedUnit {
	case UnitDGS:
		return speed / 360
	default:
		return speed / 60
	}
}

// rawPosition returns the last reported encoder position in degrees.
func (m *ActiveMotor) rawPosition() (int, bool) {
	if m.posMode < 0 {
		return 0, false
	}
	return m.latestInt(m.posMode)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
