package hub_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CDarius/buildhat-go/internal/simhub"
	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/log"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

const eventually = 3 * time.Second
const tick = 10 * time.Millisecond

func testConfig() hub.Config {
	cfg := hub.DefaultConfig()
	cfg.CommandTimeout = 2 * time.Second
	cfg.PromptTimeout = 2 * time.Second
	cfg.RebootTimeout = 2 * time.Second
	cfg.BannerTimeout = 2 * time.Second
	cfg.DiscoverySettle = 150 * time.Millisecond
	cfg.ReadPoll = 20 * time.Millisecond
	cfg.LED = hub.LEDOff
	return cfg
}

func startHub(t *testing.T, cfg hub.Config, simCfg simhub.Config, opts ...hub.Option) (*hub.Hub, *simhub.Sim) {
	t.Helper()
	sim, end := simhub.New(simCfg)
	h, err := hub.New(cfg, end, opts...)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() {
		h.Close()
		sim.Close()
	})
	return h, sim
}

// motorDetail is the detail block of an encoder motor with three modes
// and one combi slot.
func motorDetail() []string {
	return []string{
		"type 4B",
		"  nmodes =2",
		"  nview  =2",
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
		"  C0: M1+M2",
		"  speed PID: 00000BB8 00000064 00002328 00000438",
		"  position PID: 00002EE0 000003E8 00013880 00000000",
	}
}

func TestStartRunningFirmware(t *testing.T) {
	h, _ := startHub(t, testConfig(), simhub.Config{FirmwareVersion: 1737564117})

	assert.Equal(t, hub.BootReady, h.BootState())
	assert.EqualValues(t, 1737564117, h.FirmwareVersion())
	for i, p := range h.Ports() {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, hub.PortEmpty, p.State)
	}
	assert.NotEmpty(t, h.Session())
}

func TestStartDiscoversBootDevices(t *testing.T) {
	h, _ := startHub(t, testConfig(), simhub.Config{
		Devices: []simhub.Device{{Port: 3, Type: 0x02}},
	})

	p, err := h.Port(3)
	require.NoError(t, err)
	assert.Equal(t, hub.PortConnected, p.State)
	assert.Equal(t, 0x02, p.DeviceType)
	assert.False(t, p.Active)
}

func TestVin(t *testing.T) {
	h, _ := startHub(t, testConfig(), simhub.Config{Vin: 8.2})

	v, err := h.Vin(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 8.2, v, 0.001)
}

func TestVersionQuery(t *testing.T) {
	h, _ := startHub(t, testConfig(), simhub.Config{FirmwareVersion: 1700000001})

	v, err := h.Version(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1700000001, v)
}

func TestCommandErrorReply(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	sim.FailNext("bad mode")
	_, err := h.Vin(context.Background())
	require.ErrorIs(t, err, hub.ErrCommandFailed)
	assert.Contains(t, err.Error(), "bad mode")

	// The channel recovers for the next command.
	_, err = h.Vin(context.Background())
	require.NoError(t, err)
}

func TestCommandTimeoutLateReplyIsNoise(t *testing.T) {
	cfg := testConfig()
	cfg.CommandTimeout = 250 * time.Millisecond
	h, sim := startHub(t, cfg, simhub.Config{})

	sim.MuteFor(1)
	_, err := h.Vin(context.Background())
	require.ErrorIs(t, err, hub.ErrTimeout)

	// The answer arriving after the timeout satisfies nothing.
	sim.EmitLine("8.0 V")
	require.Eventually(t, func() bool {
		return h.Noise() >= 1
	}, eventually, tick)
}

func TestSubmitBeforeStart(t *testing.T) {
	sim, end := simhub.New(simhub.Config{})
	defer sim.Close()
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Vin(context.Background())
	require.ErrorIs(t, err, hub.ErrNotReady)
}

func TestCloseBeforeStart(t *testing.T) {
	sim, end := simhub.New(simhub.Config{})
	defer sim.Close()
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return without a prior Start")
	}
}

func TestCloseAfterFailedStart(t *testing.T) {
	sim, end := simhub.New(simhub.Config{Mode: simhub.ModeBootloader})
	defer sim.Close()
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)

	// Bootloader with no firmware supplier fails the boot.
	require.Error(t, h.Start(context.Background()))

	done := make(chan error, 1)
	go func() { done <- h.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after a failed Start")
	}
}

func TestPortOutOfRange(t *testing.T) {
	h, _ := startHub(t, testConfig(), simhub.Config{})

	_, err := h.Port(4)
	require.ErrorIs(t, err, hub.ErrPortOutOfRange)
	_, err = h.Subscribe(-1, 0)
	require.ErrorIs(t, err, hub.ErrPortOutOfRange)
}

func TestPassiveAttachAndDetach(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	attached := make(chan hub.PortInfo, 1)
	detached := make(chan hub.PortInfo, 1)
	h.OnAttach(func(info hub.PortInfo) { attached <- info })
	h.OnDetach(func(info hub.PortInfo) { detached <- info })

	sim.Attach(simhub.Device{Port: 1, Type: 0x01})

	select {
	case info := <-attached:
		assert.Equal(t, 1, info.Index)
		assert.Equal(t, hub.PortConnected, info.State)
		assert.Equal(t, 0x01, info.DeviceType)
		assert.False(t, info.Active)
	case <-time.After(eventually):
		t.Fatal("attach callback not invoked")
	}

	sub, err := h.Subscribe(1, 0)
	require.NoError(t, err)

	sim.EmitValue(1, 0, 50)
	select {
	case v := <-sub.Values():
		assert.Equal(t, []float64{50}, v.Values)
	case <-time.After(eventually):
		t.Fatal("no value received")
	}

	sim.Detach(1)

	select {
	case info := <-detached:
		assert.Equal(t, 1, info.Index)
	case <-time.After(eventually):
		t.Fatal("detach callback not invoked")
	}

	// The stream ends but the last reading stays observable.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-sub.Values():
			return !open
		default:
			return false
		}
	}, eventually, tick)

	v, ok := h.Latest(1, 0)
	require.True(t, ok)
	assert.Equal(t, []float64{50}, v.Values)

	p, err := h.Port(1)
	require.NoError(t, err)
	assert.Equal(t, hub.PortEmpty, p.State)
}

func TestActiveAttachCollectsDetail(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	sim.Attach(simhub.Device{Port: 0, Type: 0x4B, Active: true, Detail: motorDetail()})

	require.Eventually(t, func() bool {
		p, _ := h.Port(0)
		return p.State == hub.PortConnected && p.Modes != nil
	}, eventually, tick)

	p, err := h.Port(0)
	require.NoError(t, err)
	assert.True(t, p.Active)
	assert.Equal(t, 0x4B, p.DeviceType)

	modes := p.Modes
	assert.Equal(t, 0x4B, modes.Type)
	assert.Equal(t, 3, modes.ModeCount)
	assert.Equal(t, 2, modes.ViewCount)
	assert.Equal(t, 115200, modes.Baud)
	require.Len(t, modes.Modes, 3)

	power := modes.Modes[0]
	assert.Equal(t, "POWER", power.Name)
	assert.Equal(t, "PCT", power.Unit)
	assert.Equal(t, 1, power.Format.Count)
	assert.InDelta(t, 100, power.Raw.Max, 0.001)

	pos, ok := modes.ModeByName("POS")
	require.True(t, ok)
	assert.Equal(t, 2, pos.Index)
	assert.Equal(t, "DEG", pos.Unit)
	assert.Equal(t, 2, pos.Format.DataType)

	combo, ok := modes.Combo(0)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, combo.Modes)

	assert.EqualValues(t, 0xBB8, modes.SpeedPID[0])
	assert.EqualValues(t, 0x2EE0, modes.PositionPID[0])
}

func TestCombiValueDecomposition(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	sim.Attach(simhub.Device{Port: 0, Type: 0x4B, Active: true, Detail: motorDetail()})
	require.Eventually(t, func() bool {
		p, _ := h.Port(0)
		return p.State == hub.PortConnected && p.Modes != nil
	}, eventually, tick)

	// Combi slot 0 is M1+M2; one update fans out to both modes.
	sim.EmitCombiValue(0, 0, 17, 42)

	require.Eventually(t, func() bool {
		_, ok := h.Latest(0, 2)
		return ok
	}, eventually, tick)

	speed, ok := h.Latest(0, 1)
	require.True(t, ok)
	assert.Equal(t, []float64{17}, speed.Values)

	pos, ok := h.Latest(0, 2)
	require.True(t, ok)
	assert.Equal(t, []float64{42}, pos.Values)
}

func TestSubscriptionKeepsLatestOnly(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	sim.Attach(simhub.Device{Port: 2, Type: 0x01})
	sub, err := h.Subscribe(2, 0)
	require.NoError(t, err)
	defer sub.Close()

	sim.EmitValue(2, 0, 1)
	sim.EmitValue(2, 0, 2)
	sim.EmitValue(2, 0, 3)

	// Without a reader only the newest update survives.
	require.Eventually(t, func() bool {
		v, ok := h.Latest(2, 0)
		return ok && v.Values[0] == 3
	}, eventually, tick)

	v := <-sub.Values()
	assert.Equal(t, []float64{3}, v.Values)
}

func TestAwaitCompletionRampDone(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})
	sim.Attach(simhub.Device{Port: 0, Type: 0x4B, Active: true, Detail: motorDetail()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.AwaitCompletion(context.Background(), 0, wire.KindRampDone)
	}()

	time.Sleep(50 * time.Millisecond)
	sim.EmitRampDone(0)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(eventually):
		t.Fatal("completion not delivered")
	}
}

func TestAwaitCompletionFailsOnDetach(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})
	sim.Attach(simhub.Device{Port: 1, Type: 0x4B, Active: true, Detail: motorDetail()})

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.AwaitCompletion(context.Background(), 1, wire.KindPulseDone)
	}()

	time.Sleep(50 * time.Millisecond)
	sim.Detach(1)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, hub.ErrDeviceDetached)
	case <-time.After(eventually):
		t.Fatal("completion wait not failed")
	}
}

func TestDetachFailsPendingCommand(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})
	sim.Attach(simhub.Device{Port: 2, Type: 0x01})

	errCh := make(chan error, 1)
	go func() {
		spec := hub.ReplySpec{
			Kind:  hub.ReplySingle,
			Match: func(wire.Token) bool { return false },
		}
		_, err := h.Submit(context.Background(), wire.Port(2).Coast().Build(), spec, 2)
		errCh <- err
	}()

	// The command must be on the wire before the unplug.
	require.Eventually(t, func() bool {
		for _, c := range sim.Commands() {
			if c == "port 2 ; coast" {
				return true
			}
		}
		return false
	}, eventually, tick)

	sim.Detach(2)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, hub.ErrDeviceDetached)
	case <-time.After(eventually):
		t.Fatal("pending command not failed")
	}
}

func TestSendRecordsCommand(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	require.NoError(t, h.SetLEDMode(context.Background(), hub.LEDOrange))
	require.NoError(t, h.ClearFaults(context.Background()))

	require.Eventually(t, func() bool {
		var sawLED, sawFaults bool
		for _, c := range sim.Commands() {
			switch c {
			case "ledmode 1":
				sawLED = true
			case "clear_faults":
				sawFaults = true
			}
		}
		return sawLED && sawFaults
	}, eventually, tick)
}

func TestListReannouncesDevices(t *testing.T) {
	h, sim := startHub(t, testConfig(), simhub.Config{})

	// Plug in silently by scripting state only, then ask for a listing.
	sim.Attach(simhub.Device{Port: 0, Type: 0x3D, Active: true, Detail: nil})
	require.Eventually(t, func() bool {
		p, _ := h.Port(0)
		return p.State != hub.PortEmpty
	}, eventually, tick)

	require.NoError(t, h.List(context.Background()))
	require.Eventually(t, func() bool {
		p, _ := h.Port(0)
		return p.State == hub.PortConnected && p.DeviceType == 0x3D
	}, eventually, tick)
}

// captureLogger records trace events for inspection.
type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *captureLogger) Log(ev log.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *captureLogger) snapshot() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestTraceRecordsBootAndLines(t *testing.T) {
	trace := &captureLogger{}
	h, _ := startHub(t, testConfig(), simhub.Config{}, hub.WithTrace(trace))

	_, err := h.Vin(context.Background())
	require.NoError(t, err)

	var sawReady, sawVinOut bool
	for _, ev := range trace.snapshot() {
		assert.Equal(t, h.Session(), ev.SessionID)
		if ev.StateChange != nil && ev.StateChange.NewState == "READY" {
			sawReady = true
		}
		if ev.Line != nil && ev.Direction == log.DirectionOut && ev.Line.Text == "vin" {
			sawVinOut = true
		}
	}
	assert.True(t, sawReady, "boot state transition to READY not traced")
	assert.True(t, sawVinOut, "outgoing vin command not traced")
}

func TestCloseIsIdempotent(t *testing.T) {
	sim, end := simhub.New(simhub.Config{})
	defer sim.Close()
	h, err := hub.New(testConfig(), end)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Close())
	assert.NoError(t, h.Close())

	_, err = h.Vin(context.Background())
	require.Error(t, err)
}
