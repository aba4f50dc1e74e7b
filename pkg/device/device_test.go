package device_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CDarius/buildhat-go/internal/simhub"
	"github.com/CDarius/buildhat-go/pkg/device"
	"github.com/CDarius/buildhat-go/pkg/hub"
)

const eventually = 3 * time.Second
const tick = 10 * time.Millisecond

func testConfig() hub.Config {
	cfg := hub.DefaultConfig()
	cfg.CommandTimeout = 2 * time.Second
	cfg.DiscoverySettle = 100 * time.Millisecond
	cfg.ReadPoll = 20 * time.Millisecond
	cfg.LED = hub.LEDOff
	return cfg
}

func startHub(t *testing.T) (*hub.Hub, *simhub.Sim) {
	t.Helper()
	sim, end := simhub.New(simhub.Config{})
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() {
		h.Close()
		sim.Close()
	})
	return h, sim
}

func attach(t *testing.T, h *hub.Hub, sim *simhub.Sim, d simhub.Device) {
	t.Helper()
	sim.Attach(d)
	require.Eventually(t, func() bool {
		p, err := h.Port(d.Port)
		return err == nil && p.State == hub.PortConnected
	}, eventually, tick)
}

// encoderMotorDetail describes a SPIKE medium angular motor: power,
// speed, position and absolute position modes, streamed together
// through combi slot 0.
func encoderMotorDetail() []string {
	return []string{
		"type 30",
		"  nmodes =3",
		"  nview  =3",
		"  baud   =115200",
		"  hwver  =00000004",
		"  swver  =10000000",
		"  M0 POWER SI = PCT",
		"    format count=1 type=0 chars=4 dp=0",
		"    RAW: 00000000 00000064    PCT: 00000000 00000064    SI: 00000000 00000064",
		"  M1 SPEED SI = PCT",
		"    format count=1 type=0 chars=4 dp=0",
		"    RAW: 00000000 00000064    PCT: 00000000 00000064    SI: 00000000 00000064",
		"  M2 POS SI = DEG",
		"    format count=1 type=2 chars=11 dp=0",
		"    RAW: 00000000 00000168    PCT: 00000000 00000064    SI: 00000000 00000168",
		"  M3 APOS SI = DEG",
		"    format count=1 type=1 chars=3 dp=0",
		"    RAW: 00000000 000000B4    PCT: 00000000 000000C8    SI: 00000000 000000B4",
		"  C0: M1+M2+M3",
		"  speed PID: 00000BB8 00000064 00002328 00000438",
		"  position PID: 00002EE0 000003E8 00013880 00000000",
	}
}

func hasCommand(sim *simhub.Sim, want string) func() bool {
	return func() bool {
		for _, c := range sim.Commands() {
			if c == want {
				return true
			}
		}
		return false
	}
}

// awaitRun waits for a blocking run to finish, re-sending the done
// notification so the waiter cannot miss it.
func awaitRun(t *testing.T, errCh <-chan error, kick func()) {
	t.Helper()
	deadline := time.After(eventually)
	for {
		kick()
		select {
		case err := <-errCh:
			require.NoError(t, err)
			return
		case <-deadline:
			t.Fatal("run did not finish")
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// pump emits a value line repeatedly until the returned stop function
// is called, so a subscriber joining at any point sees it.
func pump(sim *simhub.Sim, port, mode int, values ...float64) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sim.EmitValue(port, mode, values...)
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

func TestOpenPicksWrapperByType(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()

	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})
	attach(t, h, sim, simhub.Device{Port: 1, Type: 0x02})
	attach(t, h, sim, simhub.Device{Port: 2, Type: 0x08})

	d, err := device.Open(ctx, h, 0)
	require.NoError(t, err)
	assert.IsType(t, &device.ActiveMotor{}, d)

	d, err = device.Open(ctx, h, 1)
	require.NoError(t, err)
	assert.IsType(t, &device.PassiveMotor{}, d)

	d, err = device.Open(ctx, h, 2)
	require.NoError(t, err)
	assert.IsType(t, &device.Generic{}, d)

	_, err = device.Open(ctx, h, 3)
	require.ErrorIs(t, err, device.ErrNotConnected)
}

func TestPassiveMotorCommands(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 1, Type: 0x02})

	m, err := device.NewPassiveMotor(ctx, h, 1)
	require.NoError(t, err)
	assert.Equal(t, device.TypeSystemTrainMotor, m.Type())

	require.Eventually(t, hasCommand(sim, "port 1 ; off"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 1 ; port_plimit 1"), eventually, tick)

	require.NoError(t, m.Start(ctx, 0.5))
	require.Eventually(t, hasCommand(sim, "port 1 ; pwm ; set 0.5"), eventually, tick)

	// Starting again at the same speed sends nothing new.
	before := len(sim.Commands())
	require.NoError(t, m.Start(ctx, 0.5))
	assert.Equal(t, before, len(sim.Commands()))

	require.NoError(t, m.Stop(ctx))

	require.Error(t, m.Start(ctx, 1.5))
}

func TestPassiveMotorRunForDuration(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 1, Type: 0x02})

	m, err := device.NewPassiveMotor(ctx, h, 1)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunForDuration(ctx, 1500*time.Millisecond, 0.4)
	}()

	require.Eventually(t, hasCommand(sim, "port 1 ; pwm ; set pulse 0.4 0.0 1.5 0"), eventually, tick)
	awaitRun(t, errCh, func() { sim.EmitPulseDone(1) })
}

func TestActiveMotorSetup(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)
	assert.True(t, m.HasAbsolutePosition())

	require.Eventually(t, hasCommand(sim, "port 0 ; pwm ; set 0"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 0 ; port_plimit 0.7"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 0 ; combi 0 1 0 2 0 3 0 ; select 0 ; selrate 50"), eventually, tick)
}

func TestActiveMotorTelemetry(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)

	sim.EmitCombiValue(0, 0, 5, 90, 45)
	require.Eventually(t, func() bool {
		_, ok := m.Position()
		return ok
	}, eventually, tick)

	speed, ok := m.Speed()
	require.True(t, ok)
	assert.Equal(t, 50, speed)

	pos, ok := m.Position()
	require.True(t, ok)
	assert.Equal(t, 90, pos)

	apos, err := m.AbsolutePosition()
	require.NoError(t, err)
	assert.Equal(t, 45, apos)

	// Preset the position and read it back adjusted.
	require.NoError(t, m.SetPosition(0))
	pos, ok = m.Position()
	require.True(t, ok)
	assert.Equal(t, 0, pos)
}

func TestActiveMotorStart(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)

	// 60 RPM is one revolution per second.
	require.NoError(t, m.Start(ctx, 60))
	want := "port 0 ; select 0 ; selrate 50 ; pid_diff 0 0 5 s2 0.0027777778 1 0 2.5 0 .4 0.01 ; set 1"
	require.Eventually(t, hasCommand(sim, want), eventually, tick)
}

func TestActiveMotorRunForDegrees(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunForDegrees(ctx, 360, 240)
	}()

	// From rest: one rotation at four revolutions per second.
	want := "port 0 ; select 0 ; selrate 50 ; pid 0 0 1 s4 0.0027777778 0 5 0 0.1 3 0.001 ; set ramp 0 1 0.25 0"
	require.Eventually(t, hasCommand(sim, want), eventually, tick)
	awaitRun(t, errCh, func() { sim.EmitRampDone(0) })

	// Release after run coasts the motor.
	require.Eventually(t, hasCommand(sim, "port 0 ; coast"), eventually, tick)
}

func TestActiveMotorRunToAbsoluteAngleWrap(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)

	// At rest on position 0 with the shaft reading 90 degrees absolute.
	sim.EmitCombiValue(0, 0, 0, 0, 90)
	require.Eventually(t, func() bool {
		_, err := m.AbsolutePosition()
		return err == nil
	}, eventually, tick)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunToAbsoluteAngle(ctx, -180, 240, device.Shortest)
	}()

	// The shortest path from 90 to -180 wraps: a quarter rotation
	// forward, not three quarters back.
	want := "port 0 ; select 0 ; selrate 50 ; pid 0 0 1 s4 0.0027777778 0 5 0 0.1 3 0.001 ; set ramp 0 0.25 0.0625 0"
	require.Eventually(t, hasCommand(sim, want), eventually, tick)
	awaitRun(t, errCh, func() {
		sim.EmitCombiValue(0, 0, 0, 90, -180)
		sim.EmitRampDone(0)
	})
	require.Eventually(t, hasCommand(sim, "port 0 ; coast"), eventually, tick)
}

func TestActiveMotorRunForDuration(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x30, Active: true, Detail: encoderMotorDetail()})

	m, err := device.NewActiveMotor(ctx, h, 0)
	require.NoError(t, err)
	m.SetReleaseAfterRun(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunForDuration(ctx, 2*time.Second, 120)
	}()

	want := "port 0 ; select 0 ; selrate 50 ; pid_diff 0 0 5 s2 0.0027777778 1 0 2.5 0 .4 0.01 ; set pulse 2 0.0 2 0"
	require.Eventually(t, hasCommand(sim, want), eventually, tick)
	awaitRun(t, errCh, func() { sim.EmitPulseDone(0) })
}

func TestColorSensorReflectedLight(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 2, Type: 0x3D, Active: true})

	s, err := device.NewColorSensor(ctx, h, 2)
	require.NoError(t, err)
	require.Eventually(t, hasCommand(sim, "port 2 ; select 0 ; selrate 50"), eventually, tick)

	require.NoError(t, s.SetSamples(1))
	stop := pump(sim, 2, 1, 42)
	defer stop()

	v, err := s.ReflectedLight(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	// The illumination was turned on for the read.
	assert.True(t, hasCommand(sim, "port 2 ; port_plimit 1 ; set -1")())
	assert.True(t, hasCommand(sim, "port 2 ; select 1 ; selrate 50")())
}

func TestColorSensorRGBI(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 2, Type: 0x3D, Active: true})

	s, err := device.NewColorSensor(ctx, h, 2)
	require.NoError(t, err)
	require.NoError(t, s.SetSamples(1))

	stop := pump(sim, 2, 5, 512, 1024, 256, 1024)
	defer stop()

	r, g, b, i, err := s.ColorRGBI(ctx)
	require.NoError(t, err)
	assert.Equal(t, 127, r)
	assert.Equal(t, 255, g)
	assert.Equal(t, 63, b)
	assert.Equal(t, 255, i)

	c, err := s.Color(ctx)
	require.NoError(t, err)
	assert.Equal(t, device.ColorYellow, c)
}

func TestDistanceSensor(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 3, Type: 0x3E, Active: true})

	s, err := device.NewDistanceSensor(ctx, h, 3)
	require.NoError(t, err)
	require.Eventually(t, hasCommand(sim, "port 3 ; set -1"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 3 ; select 0 ; selrate 50"), eventually, tick)

	_, err = s.Distance()
	require.ErrorIs(t, err, device.ErrNoReading)

	sim.EmitValue(3, 0, 123)
	require.Eventually(t, func() bool {
		d, err := s.Distance()
		return err == nil && d == 123
	}, eventually, tick)

	require.NoError(t, s.Eyes(ctx, 70))
	require.Eventually(t, hasCommand(sim, "port 3 ; write1 c5 46 46 46 46"), eventually, tick)

	require.NoError(t, s.Eyes(ctx, 1, 2, 3, 4))
	require.Eventually(t, hasCommand(sim, "port 3 ; write1 c5 1 2 3 4"), eventually, tick)

	require.Error(t, s.Eyes(ctx, 1, 2))
	require.Error(t, s.Eyes(ctx, 150))
}

func TestColorDistanceSensor(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 1, Type: 0x25, Active: true})

	s, err := device.NewColorDistanceSensor(ctx, h, 1)
	require.NoError(t, err)

	// Setup leaves the LED dark.
	require.Eventually(t, hasCommand(sim, "port 1 ; select 5 ; selrate 50"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 1 ; write1 c5 0"), eventually, tick)

	stop := pump(sim, 1, 1, 7)
	v, err := s.Proximity(ctx)
	stop()
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	require.NoError(t, s.SetLight(ctx, device.ColorRed))
	require.Eventually(t, hasCommand(sim, "port 1 ; write1 c5 9"), eventually, tick)
}

func TestLightMatrix(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 0, Type: 0x40, Active: true})

	m, err := device.NewLightMatrix(ctx, h, 0)
	require.NoError(t, err)
	require.Eventually(t, hasCommand(sim, "port 0 ; plimit 1 ; set -1"), eventually, tick)
	require.Eventually(t, hasCommand(sim, "port 0 ; select 2 ; selrate 50"), eventually, tick)

	require.NoError(t, m.DisplayLevelBar(ctx, 5))
	require.Eventually(t, hasCommand(sim, "port 0 ; write1 c0 5"), eventually, tick)

	require.NoError(t, m.DisplaySingleColor(ctx, device.MatrixRed))
	require.Eventually(t, hasCommand(sim, "port 0 ; write1 c1 9"), eventually, tick)

	require.NoError(t, m.FillPixels(device.MatrixGreen, 10))
	require.NoError(t, m.DisplayPixels(ctx))
	require.Eventually(t, hasCommand(sim, "port 0 ; write1 c2 a6 a6 a6 a6 a6 a6 a6 a6 a6"), eventually, tick)

	require.NoError(t, m.SetTransition(ctx, device.TransitionFade))
	require.Eventually(t, hasCommand(sim, "port 0 ; write1 c3 2"), eventually, tick)

	require.Error(t, m.SetPixel(3, 0, device.MatrixRed, 5))
	require.Error(t, m.SetPixel(0, 0, device.MatrixRed, 11))
}

func TestWrongDeviceType(t *testing.T) {
	h, sim := startHub(t)
	ctx := context.Background()
	attach(t, h, sim, simhub.Device{Port: 1, Type: 0x02})

	_, err := device.NewColorSensor(ctx, h, 1)
	require.ErrorIs(t, err, device.ErrWrongDevice)
	_, err = device.NewActiveMotor(ctx, h, 1)
	require.ErrorIs(t, err, device.ErrWrongDevice)
}
