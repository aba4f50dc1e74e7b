package hub

import "sync"

// PortState is the lifecycle state of one HAT port.
type PortState uint8

const (
	// PortEmpty - nothing plugged in.
	PortEmpty PortState = iota

	// PortConnecting - an active device attached and its detail block
	// is still being collected.
	PortConnecting

	// PortConnected - the device is usable.
	PortConnected
)

// String returns the state name.
func (s PortState) String() string {
	switch s {
	case PortEmpty:
		return "EMPTY"
	case PortConnecting:
		return "CONNECTING"
	case PortConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// PortInfo is a snapshot of one port.
type PortInfo struct {
	// Index is the port number, 0 to 3.
	Index int

	// State is the lifecycle state.
	State PortState

	// DeviceType is the attached device's type ID. Zero unless the
	// port is Connecting or Connected.
	DeviceType int

	// Active reports whether the device speaks the serial protocol
	// (motors with encoders, sensors) rather than plain PWM.
	Active bool

	// Modes is the collected detail block. Nil for passive devices
	// and while collection is in progress.
	Modes *ModeInfo
}

// portSlot is the registry's mutable record for one port.
type portSlot struct {
	state      PortState
	deviceType int
	active     bool
	modes      *ModeInfo
	collector  *detailCollector
}

// portRegistry tracks the four ports. All mutation happens on the
// dispatcher goroutine; snapshots may be taken from anywhere.
type portRegistry struct {
	mu    sync.RWMutex
	ports [NumPorts]portSlot
}

func newPortRegistry() *portRegistry {
	return &portRegistry{}
}

// snapshot returns the current state of a port.
func (r *portRegistry) snapshot(port int) PortInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot := r.ports[port]
	return PortInfo{
		Index:      port,
		State:      slot.state,
		DeviceType: slot.deviceType,
		Active:     slot.active,
		Modes:      slot.modes,
	}
}

// attach records a device attach. Active devices enter Connecting and
// start detail collection; passive devices are Connected immediately.
// The returned snapshot reflects the new state.
func (r *portRegistry) attach(port, deviceType int, active bool) PortInfo {
	r.mu.Lock()
	slot := &r.ports[port]
	slot.deviceType = deviceType
	slot.active = active
	slot.modes = nil
	if active {
		slot.state = PortConnecting
		slot.collector = newDetailCollector(port)
	} else {
		slot.state = PortConnected
		slot.collector = nil
	}
	info := PortInfo{
		Index:      port,
		State:      slot.state,
		DeviceType: slot.deviceType,
		Active:     slot.active,
	}
	r.mu.Unlock()
	return info
}

// detach clears a port. had reports whether a device was present; the
// returned snapshot describes the device that left.
func (r *portRegistry) detach(port int) (PortInfo, bool) {
	r.mu.Lock()
	slot := &r.ports[port]
	had := slot.state != PortEmpty
	info := PortInfo{
		Index:      port,
		State:      slot.state,
		DeviceType: slot.deviceType,
		Active:     slot.active,
		Modes:      slot.modes,
	}
	*slot = portSlot{}
	r.mu.Unlock()
	return info, had
}

// collecting returns the port whose detail block is being collected,
// or false when no collection is in progress.
func (r *portRegistry) collecting() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := range r.ports {
		if r.ports[i].collector != nil {
			return i, true
		}
	}
	return -1, false
}

// feedDetail hands a line to the collecting port. consumed reports
// whether the line belonged to the detail block; completed is non-nil
// when the port just became Connected (either the block finished or a
// foreign line ended it early).
func (r *portRegistry) feedDetail(port int, line string) (consumed bool, completed *PortInfo) {
	r.mu.Lock()
	slot := &r.ports[port]
	if slot.collector == nil {
		r.mu.Unlock()
		return false, nil
	}

	consumed, done := slot.collector.consume(line)
	if consumed && !done {
		r.mu.Unlock()
		return true, nil
	}

	// Block finished, or a foreign line aborted it. Either way the
	// port becomes usable with whatever was gathered.
	info := slot.collector.info
	slot.collector = nil
	slot.state = PortConnected
	if info.ModeCount > 0 || done {
		slot.modes = &info
	}
	snap := PortInfo{
		Index:      port,
		State:      slot.state,
		DeviceType: slot.deviceType,
		Active:     slot.active,
		Modes:      slot.modes,
	}
	r.mu.Unlock()
	return consumed, &snap
}

// comboModes resolves a combi slot into its single-mode indexes.
func (r *portRegistry) comboModes(port, combo int) ([]int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slot := &r.ports[port]
	if slot.modes == nil {
		return nil, false
	}
	c, ok := slot.modes.Combo(combo)
	if !ok {
		return nil, false
	}
	return c.Modes, true
}
