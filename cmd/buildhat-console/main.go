// Command buildhat-console is an interactive console for the Raspberry
// Pi Build HAT.
//
// It connects to the HAT over the Pi's primary UART, brings the
// firmware up if needed and drops into a command prompt for poking at
// ports, motors and sensors.
//
// Usage:
//
//	buildhat-console [flags]
//
// Flags:
//
//	-device string    Serial device path (default "/dev/serial0")
//	-baud int         Serial baud rate (default 115200)
//	-config string    Configuration file path
//	-firmware string  Directory holding firmware.bin, signature.bin and version
//	-trace string     Write a wire trace to this .bhlog file
//	-sim              Run against a built-in simulated HAT
//
// Examples:
//
//	# Talk to a real HAT, flashing firmware from ./firmware if needed
//	buildhat-console -firmware ./firmware
//
//	# Explore the console without hardware
//	buildhat-console -sim
//
//	# Record every line crossing the wire
//	buildhat-console -trace session.bhlog
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/CDarius/buildhat-go/cmd/buildhat-console/interactive"
	"github.com/CDarius/buildhat-go/internal/simhub"
	"github.com/CDarius/buildhat-go/pkg/firmware"
	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/log"
	"github.com/CDarius/buildhat-go/pkg/transport"
)

type cliConfig struct {
	Device      string
	Baud        int
	ConfigFile  string
	FirmwareDir string
	TraceFile   string
	Sim         bool
}

var config cliConfig

func init() {
	flag.StringVar(&config.Device, "device", "/dev/serial0", "Serial device path")
	flag.IntVar(&config.Baud, "baud", 115200, "Serial baud rate")
	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&config.FirmwareDir, "firmware", "", "Directory holding firmware.bin, signature.bin and version")
	flag.StringVar(&config.TraceFile, "trace", "", "Write a wire trace to this .bhlog file")
	flag.BoolVar(&config.Sim, "sim", false, "Run against a built-in simulated HAT")
}

func main() {
	flag.Parse()
	stdlog.SetFlags(stdlog.Ltime)

	cfg := hub.DefaultConfig()
	if config.ConfigFile != "" {
		loaded, err := hub.LoadConfig(config.ConfigFile)
		if err != nil {
			stdlog.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	var tr transport.Transport
	var sim *simhub.Sim
	if config.Sim {
		sim, tr = newSim()
		stdlog.Println("Using simulated HAT")
	} else {
		serialCfg := transport.DefaultSerialConfig()
		serialCfg.Device = config.Device
		serialCfg.BaudRate = config.Baud
		port, err := transport.OpenSerial(serialCfg)
		if err != nil {
			stdlog.Fatalf("Failed to open %s: %v", config.Device, err)
		}
		tr = port
	}

	var opts []hub.Option
	if config.FirmwareDir != "" {
		opts = append(opts, hub.WithFirmware(firmware.NewDirSupplier(config.FirmwareDir)))
	}
	var trace *log.FileLogger
	if config.TraceFile != "" {
		var err error
		trace, err = log.NewFileLogger(config.TraceFile)
		if err != nil {
			stdlog.Fatalf("Failed to open trace file: %v", err)
		}
		opts = append(opts, hub.WithTrace(trace))
	}

	h, err := hub.New(cfg, tr, opts...)
	if err != nil {
		stdlog.Fatalf("Failed to create hub: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdlog.Println("Starting Build HAT...")
	if err := h.Start(ctx); err != nil {
		stdlog.Fatalf("Failed to start hub: %v", err)
	}
	stdlog.Printf("Ready, firmware version %d", h.FirmwareVersion())

	ic, err := interactive.New(h)
	if err != nil {
		stdlog.Fatalf("Failed to create console: %v", err)
	}
	// Route log output through readline so it does not mangle the prompt.
	stdlog.SetOutput(ic.Stdout())

	go ic.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		stdlog.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	stdlog.SetOutput(os.Stderr)
	stdlog.Println("Shutting down...")
	if err := h.Close(); err != nil {
		stdlog.Printf("Error closing hub: %v", err)
	}
	if trace != nil {
		trace.Close()
	}
	if sim != nil {
		sim.Close()
	}
}

// newSim wires a simulated HAT with a motor and a couple of sensors,
// so the console has something to talk to without hardware.
func newSim() (*simhub.Sim, transport.Transport) {
	sim, end := simhub.New(simhub.Config{
		Devices: []simhub.Device{
			{Port: 0, Type: 0x30, Active: true, Detail: simMotorDetail()},
			{Port: 1, Type: 0x02},
			{Port: 2, Type: 0x3E, Active: true},
		},
	})
	return sim, end
}

func simMotorDetail() []string {
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
