// Package interactive provides the command prompt of buildhat-console.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/CDarius/buildhat-go/pkg/device"
	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// commandTimeout bounds every prompt-issued operation.
const commandTimeout = 10 * time.Second

// Console handles the interactive prompt.
type Console struct {
	h  *hub.Hub
	rl *readline.Instance

	// Open device wrappers, one per port. Cleared on detach so a
	// swapped device gets a fresh wrapper. Detach notifications
	// arrive on the hub's reader goroutine.
	mu      sync.Mutex
	devices map[int]device.Device
}

// New creates the console around a started hub.
func New(h *hub.Hub) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "buildhat> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	c := &Console{
		h:       h,
		rl:      rl,
		devices: make(map[int]device.Device),
	}
	h.OnAttach(func(info hub.PortInfo) {
		kind := "passive"
		if info.Active {
			kind = "active"
		}
		fmt.Fprintf(rl.Stdout(), "P%d: %s (%s) attached\n",
			info.Index, TypeName(info.DeviceType), kind)
	})
	h.OnDetach(func(info hub.PortInfo) {
		c.mu.Lock()
		delete(c.devices, info.Index)
		c.mu.Unlock()
		fmt.Fprintf(rl.Stdout(), "P%d: device detached\n", info.Index)
	})
	return c, nil
}

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// TypeName returns the display name of a device type ID.
func TypeName(typ int) string {
	return device.Type(typ).String()
}

// Run starts the command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "status":
			c.cmdStatus()

		case "ports", "ls":
			c.cmdPorts()

		case "vin":
			c.cmdVin(ctx)

		case "version":
			c.cmdVersion(ctx)

		case "led":
			c.cmdLED(ctx, args)

		case "clearfaults":
			c.cmdClearFaults(ctx)

		case "list":
			c.cmdList(ctx)

		case "raw":
			c.cmdRaw(ctx, args)

		case "value", "v":
			c.cmdValue(args)

		case "watch", "w":
			c.cmdWatch(ctx, args)

		case "motor", "m":
			c.cmdMotor(ctx, args)

		case "distance", "d":
			c.cmdDistance(ctx, args)

		case "color":
			c.cmdColor(ctx, args)

		case "eyes":
			c.cmdEyes(ctx, args)

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Build HAT Commands:
  Hub:
    status                - Show hub state and counters
    ports                 - List the four ports
    vin                   - Read the input voltage
    version               - Read the firmware version
    led <mode>            - Set the LEDs (-1 voltage, 0 off, 1 orange, 2 green, 3 both)
    clearfaults           - Clear latched motor faults
    list                  - Re-enumerate connected devices
    raw <text>            - Send a raw firmware command

  Telemetry:
    value <port> <mode>   - Show the last value of a mode
    watch <port> <mode> [n] - Stream n values of a mode (default 5)

  Devices:
    motor <port> start [speed] - Run a motor (RPM for encoder motors, -1..1 passive)
    motor <port> stop          - Stop a motor
    motor <port> run <deg> [speed] - Turn an encoder motor by an angle
    motor <port> pos           - Show encoder position and speed
    distance <port>            - Read the ultrasonic distance sensor
    color <port>               - Read the color sensor
    eyes <port> <brightness>   - Light the distance sensor eyes, 0..100

    quit                  - Exit the console`)
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "Boot state:       %s\n", c.h.BootState())
	fmt.Fprintf(out, "Firmware version: %d\n", c.h.FirmwareVersion())
	fmt.Fprintf(out, "Session:          %s\n", c.h.Session())
	fmt.Fprintf(out, "Noise lines:      %d\n", c.h.Noise())
}

func (c *Console) cmdPorts() {
	out := c.rl.Stdout()
	for _, info := range c.h.Ports() {
		switch info.State {
		case hub.PortEmpty:
			fmt.Fprintf(out, "P%d: empty\n", info.Index)
		case hub.PortConnecting:
			fmt.Fprintf(out, "P%d: connecting\n", info.Index)
		default:
			kind := "passive"
			if info.Active {
				kind = "active"
			}
			fmt.Fprintf(out, "P%d: %s (%s, type %02X)\n",
				info.Index, TypeName(info.DeviceType), kind, info.DeviceType)
			if info.Modes != nil {
				for _, m := range info.Modes.Modes {
					fmt.Fprintf(out, "      M%d %s %s\n", m.Index, m.Name, m.Unit)
				}
			}
		}
	}
}

func (c *Console) cmdVin(ctx context.Context) {
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	v, err := c.h.Vin(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%.1f V\n", v)
}

func (c *Console) cmdVersion(ctx context.Context) {
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	v, err := c.h.Version(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Firmware version %d\n", v)
}

func (c *Console) cmdLED(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: led <mode>")
		return
	}
	mode, err := strconv.Atoi(args[0])
	if err != nil || mode < int(hub.LEDVoltage) || mode > int(hub.LEDBoth) {
		fmt.Fprintln(c.rl.Stdout(), "Mode must be -1, 0, 1, 2 or 3")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	if err := c.h.SetLEDMode(ctx, hub.LEDMode(mode)); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdClearFaults(ctx context.Context) {
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	if err := c.h.ClearFaults(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdList(ctx context.Context) {
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	if err := c.h.List(ctx); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdRaw(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: raw <firmware command>")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	if err := c.h.Send(ctx, wire.Raw(strings.Join(args, " "))); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

func (c *Console) cmdValue(args []string) {
	port, mode, ok := c.parsePortMode(args)
	if !ok {
		fmt.Fprintln(c.rl.Stdout(), "Usage: value <port> <mode>")
		return
	}
	v, found := c.h.Latest(port, mode)
	if !found {
		fmt.Fprintln(c.rl.Stdout(), "No value yet")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "P%dM%d: %v (at %s)\n", port, mode, v.Values, v.At.Format(time.TimeOnly))
}

func (c *Console) cmdWatch(ctx context.Context, args []string) {
	port, mode, ok := c.parsePortMode(args)
	if !ok {
		fmt.Fprintln(c.rl.Stdout(), "Usage: watch <port> <mode> [count]")
		return
	}
	count := 5
	if len(args) == 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			fmt.Fprintln(c.rl.Stdout(), "Count must be a positive number")
			return
		}
		count = n
	}

	sub, err := c.h.Subscribe(port, mode)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	defer sub.Close()

	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()
	for i := 0; i < count; i++ {
		select {
		case v, open := <-sub.Values():
			if !open {
				fmt.Fprintln(c.rl.Stdout(), "Device detached")
				return
			}
			fmt.Fprintf(c.rl.Stdout(), "P%dM%d: %v\n", port, mode, v.Values)
		case <-ctx.Done():
			fmt.Fprintln(c.rl.Stdout(), "No more values")
			return
		}
	}
}

func (c *Console) cmdMotor(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: motor <port> start|stop|run|pos ...")
		return
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "Port must be a number")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()

	d, err := c.open(ctx, port)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}

	switch m := d.(type) {
	case *device.ActiveMotor:
		c.runActiveMotor(ctx, m, args[1:])
	case *device.PassiveMotor:
		c.runPassiveMotor(ctx, m, args[1:])
	default:
		fmt.Fprintf(c.rl.Stdout(), "P%d is not a motor\n", port)
	}
}

func (c *Console) runActiveMotor(ctx context.Context, m *device.ActiveMotor, args []string) {
	out := c.rl.Stdout()
	var err error
	switch args[0] {
	case "start":
		speed := 0.0
		if len(args) > 1 {
			if speed, err = strconv.ParseFloat(args[1], 64); err != nil {
				fmt.Fprintln(out, "Speed must be a number")
				return
			}
		}
		err = m.Start(ctx, speed)
	case "stop":
		err = m.Stop(ctx)
	case "run":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: motor <port> run <degrees> [speed]")
			return
		}
		var degrees, speed float64
		if degrees, err = strconv.ParseFloat(args[1], 64); err != nil {
			fmt.Fprintln(out, "Degrees must be a number")
			return
		}
		if len(args) > 2 {
			if speed, err = strconv.ParseFloat(args[2], 64); err != nil {
				fmt.Fprintln(out, "Speed must be a number")
				return
			}
		}
		err = m.RunForDegrees(ctx, degrees, speed)
	case "pos":
		if pos, ok := m.Position(); ok {
			fmt.Fprintf(out, "Position: %d deg\n", pos)
		} else {
			fmt.Fprintln(out, "Position: no reading")
		}
		if speed, ok := m.Speed(); ok {
			fmt.Fprintf(out, "Speed:    %d deg/s\n", speed)
		}
		return
	default:
		fmt.Fprintf(out, "Unknown motor command: %s\n", args[0])
		return
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
}

func (c *Console) runPassiveMotor(ctx context.Context, m *device.PassiveMotor, args []string) {
	out := c.rl.Stdout()
	var err error
	switch args[0] {
	case "start":
		if len(args) > 1 {
			var speed float64
			if speed, err = strconv.ParseFloat(args[1], 64); err != nil {
				fmt.Fprintln(out, "Speed must be a number")
				return
			}
			err = m.Start(ctx, speed)
		} else {
			err = m.StartDefault(ctx)
		}
	case "stop":
		err = m.Stop(ctx)
	default:
		fmt.Fprintf(out, "Unknown motor command: %s\n", args[0])
		return
	}
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
	}
}

func (c *Console) cmdDistance(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: distance <port>")
		return
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "Port must be a number")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()

	d, err := c.open(ctx, port)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s, ok := d.(*device.DistanceSensor)
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "P%d is not a distance sensor\n", port)
		return
	}
	mm, err := s.WaitDistance(ctx)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	if mm < 0 {
		fmt.Fprintln(c.rl.Stdout(), "Out of range")
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "%d mm\n", mm)
}

func (c *Console) cmdColor(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: color <port>")
		return
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "Port must be a number")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()

	d, err := c.open(ctx, port)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}

	switch s := d.(type) {
	case *device.ColorSensor:
		col, err := s.Color(ctx)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
			return
		}
		fmt.Fprintln(c.rl.Stdout(), col)
	case *device.ColorDistanceSensor:
		col, err := s.Color(ctx)
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
			return
		}
		fmt.Fprintln(c.rl.Stdout(), col)
	default:
		fmt.Fprintf(c.rl.Stdout(), "P%d is not a color sensor\n", port)
	}
}

func (c *Console) cmdEyes(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: eyes <port> <brightness>")
		return
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "Port must be a number")
		return
	}
	brightness, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(c.rl.Stdout(), "Brightness must be a number")
		return
	}
	ctx, done := context.WithTimeout(ctx, commandTimeout)
	defer done()

	d, err := c.open(ctx, port)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s, ok := d.(*device.DistanceSensor)
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "P%d is not a distance sensor\n", port)
		return
	}
	if err := s.Eyes(ctx, brightness); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Error: %v\n", err)
	}
}

// open returns the cached wrapper for a port, creating one on first
// use.
func (c *Console) open(ctx context.Context, port int) (device.Device, error) {
	c.mu.Lock()
	d, ok := c.devices[port]
	c.mu.Unlock()
	if ok {
		return d, nil
	}

	d, err := device.Open(ctx, c.h, port)
	if err != nil {
		if errors.Is(err, hub.ErrPortOutOfRange) {
			return nil, fmt.Errorf("port %d does not exist", port)
		}
		return nil, err
	}
	c.mu.Lock()
	c.devices[port] = d
	c.mu.Unlock()
	return d, nil
}

func (c *Console) parsePortMode(args []string) (port, mode int, ok bool) {
	if len(args) < 2 {
		return 0, 0, false
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, 0, false
	}
	mode, err = strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, false
	}
	return port, mode, true
}
