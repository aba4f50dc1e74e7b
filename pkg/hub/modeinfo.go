package hub

import (
	"fmt"
	"strconv"
	"strings"
)

// ModeFormat describes the wire format of one mode's data.
type ModeFormat struct {
	// Count is the number of datasets the mode reports.
	Count int

	// DataType is the dataset type (0 byte, 1 short, 2 int, 3 float).
	DataType int

	// Chars is the character width of a printed dataset.
	Chars int

	// Decimals is the decimal precision of a printed dataset.
	Decimals int
}

// ModeRange is a min/max pair of one value scaling.
type ModeRange struct {
	Min float64
	Max float64
}

// Mode is one device mode from the attach detail block.
type Mode struct {
	// Index is the mode number used in select/combi commands.
	Index int

	// Name is the firmware's mode name (POWER, SPEED, POS, ...).
	Name string

	// Unit is the SI unit label (PCT, DEG, CM, ...).
	Unit string

	// Format is the data format.
	Format ModeFormat

	// Raw, Pct and SI are the value scalings.
	Raw ModeRange
	Pct ModeRange
	SI  ModeRange
}

// ComboMode is one pre-defined combi mode from the detail block
// ("C0: M1+M2+M3").
type ComboMode struct {
	// Index is the combi slot number.
	Index int

	// Modes are the single-mode indexes combined, in report order.
	Modes []int
}

// ModeInfo is the decoded detail block an active device announces
// after attach.
type ModeInfo struct {
	// Type is the device type ID.
	Type int

	// ModeCount is the number of modes (nmodes plus one).
	ModeCount int

	// ViewCount is the firmware's nview value.
	ViewCount int

	// Baud is the device link speed.
	Baud int

	// HardwareVersion and SoftwareVersion are the device's version words.
	HardwareVersion uint32
	SoftwareVersion uint32

	// Modes are the decoded mode descriptors.
	Modes []Mode

	// Combos are the pre-defined combi modes, possibly empty.
	Combos []ComboMode

	// SpeedPID and PositionPID are the motor preset constants, zero
	// for non-motor devices.
	SpeedPID    [4]uint32
	PositionPID [4]uint32
}

// Combo returns the combi descriptor for the given slot.
func (m *ModeInfo) Combo(index int) (ComboMode, bool) {
	for _, c := range m.Combos {
		if c.Index == index {
			return c, true
		}
	}
	return ComboMode{}, false
}

// ModeByName returns the mode with the given firmware name.
func (m *ModeInfo) ModeByName(name string) (Mode, bool) {
	for _, mode := range m.Modes {
		if mode.Name == name {
			return mode, true
		}
	}
	return Mode{}, false
}

// collectStep is the position in the detail block grammar.
type collectStep int

const (
	stepType collectStep = iota
	stepNModes
	stepNView
	stepBaud
	stepHwVer
	stepSwVer
	stepModeName
	stepFormat
	stepRanges
	stepTrailer
)

// detailCollector consumes the line sequence an active device emits
// after its attach notification:
//
//	type 4B
//	  nmodes =5
//	  nview  =3
//	  baud   =115200
//	  hwver  =00000004
//	  swver  =10000000
//	  M0 POWER SI = PCT
//	    format count=1 type=0 chars=4 dp=0
//	    RAW: 00000000 00000064    PCT: ...    SI: ...
//	  ...
//	  C0: M1+M2+M3
//	  speed PID: 00000BB8 00000064 00002328 00000438
//	  position PID: 00002EE0 000003E8 00013880 00000000
//	P0: established serial communication with active ID 4B
//
// The block ends at the established line. A line that fits nowhere in
// the grammar aborts collection; the caller re-dispatches it normally.
type detailCollector struct {
	port    int
	step    collectStep
	info    ModeInfo
	modeIdx int
}

func newDetailCollector(port int) *detailCollector {
	return &detailCollector{port: port}
}

// consume feeds one line. consumed reports whether the line belongs to
// the block; done reports that the block is complete. A not-consumed
// line also ends collection with whatever was gathered.
func (c *detailCollector) consume(line string) (consumed, done bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return true, false
	}
	if strings.HasPrefix(trimmed, fmt.Sprintf("P%d: established serial communication", c.port)) {
		return true, true
	}

	switch c.step {
	case stepType:
		v, ok := cutHex(trimmed, "type ")
		if !ok {
			return false, false
		}
		c.info.Type = int(v)
		c.step = stepNModes
	case stepNModes:
		v, ok := cutInt(trimmed, "nmodes =")
		if !ok {
			return false, false
		}
		c.info.ModeCount = v + 1
		c.step = stepNView
	case stepNView:
		v, ok := cutInt(trimmed, "nview")
		if !ok {
			return false, false
		}
		c.info.ViewCount = v
		c.step = stepBaud
	case stepBaud:
		v, ok := cutInt(trimmed, "baud")
		if !ok {
			return false, false
		}
		c.info.Baud = v
		c.step = stepHwVer
	case stepHwVer:
		v, ok := cutHex(trimmed, "hwver")
		if !ok {
			return false, false
		}
		c.info.HardwareVersion = uint32(v)
		c.step = stepSwVer
	case stepSwVer:
		v, ok := cutHex(trimmed, "swver")
		if !ok {
			return false, false
		}
		c.info.SoftwareVersion = uint32(v)
		if c.info.ModeCount > 0 {
			c.step = stepModeName
		} else {
			c.step = stepTrailer
		}
	case stepModeName:
		mode, ok := parseModeName(trimmed)
		if !ok || mode.Index != c.modeIdx {
			return false, false
		}
		c.info.Modes = append(c.info.Modes, mode)
		c.step = stepFormat
	case stepFormat:
		format, ok := parseModeFormat(trimmed)
		if !ok {
			return false, false
		}
		c.info.Modes[len(c.info.Modes)-1].Format = format
		c.step = stepRanges
	case stepRanges:
		raw, pct, si, ok := parseModeRanges(trimmed)
		if !ok {
			return false, false
		}
		last := &c.info.Modes[len(c.info.Modes)-1]
		last.Raw, last.Pct, last.SI = raw, pct, si
		c.modeIdx++
		if c.modeIdx < c.info.ModeCount {
			c.step = stepModeName
		} else {
			c.step = stepTrailer
		}
	case stepTrailer:
		switch {
		case strings.HasPrefix(trimmed, "C"):
			combo, ok := parseComboMode(trimmed)
			if !ok {
				return false, false
			}
			c.info.Combos = append(c.info.Combos, combo)
		case strings.HasPrefix(trimmed, "speed PID:"):
			pid, ok := parsePIDWords(trimmed[len("speed PID:"):])
			if !ok {
				return false, false
			}
			c.info.SpeedPID = pid
		case strings.HasPrefix(trimmed, "position PID:"):
			pid, ok := parsePIDWords(trimmed[len("position PID:"):])
			if !ok {
				return false, false
			}
			c.info.PositionPID = pid
		default:
			return false, false
		}
	}
	return true, false
}

// cutInt parses "<prefix><spaces>=?<decimal>" forms like "nmodes =5".
func cutInt(line, prefix string) (int, bool) {
	if !strings.HasPrefix(line, strings.TrimRight(prefix, " =")) {
		return 0, false
	}
	rest := strings.TrimPrefix(line, strings.TrimRight(prefix, " ="))
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "="))
	v, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return v, true
}

// cutHex is cutInt for hexadecimal values.
func cutHex(line, prefix string) (uint64, bool) {
	if !strings.HasPrefix(line, strings.TrimRight(prefix, " =")) {
		return 0, false
	}
	rest := strings.TrimPrefix(line, strings.TrimRight(prefix, " ="))
	rest = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "="))
	v, err := strconv.ParseUint(rest, 16, 32)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseModeName parses "M0 POWER SI = PCT" and "M5 COL O SI = IDX"
// forms. The unit part is optional.
func parseModeName(line string) (Mode, bool) {
	if len(line) < 2 || line[0] != 'M' {
		return Mode{}, false
	}
	head, rest, found := strings.Cut(line, " ")
	if !found {
		return Mode{}, false
	}
	index, err := strconv.Atoi(head[1:])
	if err != nil {
		return Mode{}, false
	}
	mode := Mode{Index: index}
	if name, unit, hasUnit := strings.Cut(rest, " SI = "); hasUnit {
		mode.Name = strings.TrimSpace(name)
		mode.Unit = strings.TrimSpace(unit)
	} else {
		mode.Name = strings.TrimSpace(rest)
	}
	if mode.Name == "" {
		return Mode{}, false
	}
	return mode, true
}

// parseModeFormat parses "format count=1 type=0 chars=4 dp=0".
func parseModeFormat(line string) (ModeFormat, bool) {
	if !strings.HasPrefix(line, "format ") {
		return ModeFormat{}, false
	}
	var format ModeFormat
	for _, field := range strings.Fields(line[len("format "):]) {
		key, val, found := strings.Cut(field, "=")
		if !found {
			return ModeFormat{}, false
		}
		v, err := strconv.Atoi(val)
		if err != nil {
			return ModeFormat{}, false
		}
		switch key {
		case "count":
			format.Count = v
		case "type":
			format.DataType = v
		case "chars":
			format.Chars = v
		case "dp":
			format.Decimals = v
		}
	}
	return format, true
}

// parseModeRanges parses
// "RAW: 00000000 00000064    PCT: 00000000 00000064    SI: 00000000 00000064".
func parseModeRanges(line string) (raw, pct, si ModeRange, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 9 || fields[0] != "RAW:" || fields[3] != "PCT:" || fields[6] != "SI:" {
		return raw, pct, si, false
	}
	// The words are two's-complement, so FFFFFF9C reads back as -100.
	parse := func(lo, hi string) (ModeRange, bool) {
		min, err := strconv.ParseUint(lo, 16, 32)
		if err != nil {
			return ModeRange{}, false
		}
		max, err := strconv.ParseUint(hi, 16, 32)
		if err != nil {
			return ModeRange{}, false
		}
		return ModeRange{Min: float64(int32(min)), Max: float64(int32(max))}, true
	}
	if raw, ok = parse(fields[1], fields[2]); !ok {
		return raw, pct, si, false
	}
	if pct, ok = parse(fields[4], fields[5]); !ok {
		return raw, pct, si, false
	}
	if si, ok = parse(fields[7], fields[8]); !ok {
		return raw, pct, si, false
	}
	return raw, pct, si, true
}

// parseComboMode parses "C0: M1+M2+M3".
func parseComboMode(line string) (ComboMode, bool) {
	head, rest, found := strings.Cut(line, ":")
	if !found || len(head) < 2 || head[0] != 'C' {
		return ComboMode{}, false
	}
	index, err := strconv.Atoi(head[1:])
	if err != nil {
		return ComboMode{}, false
	}
	combo := ComboMode{Index: index}
	for _, part := range strings.Split(strings.TrimSpace(rest), "+") {
		part = strings.TrimSpace(part)
		if len(part) < 2 || part[0] != 'M' {
			return ComboMode{}, false
		}
		mode, err := strconv.Atoi(part[1:])
		if err != nil {
			return ComboMode{}, false
		}
		combo.Modes = append(combo.Modes, mode)
	}
	if len(combo.Modes) == 0 {
		return ComboMode{}, false
	}
	return combo, true
}

// parsePIDWords parses four 32-bit hex words.
func parsePIDWords(rest string) ([4]uint32, bool) {
	var pid [4]uint32
	fields := strings.Fields(rest)
	if len(fields) != 4 {
		return pid, false
	}
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 32)
		if err != nil {
			return pid, false
		}
		pid[i] = uint32(v)
	}
	return pid, true
}
