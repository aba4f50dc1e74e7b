package hub

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NumPorts is the number of device ports on a Build HAT.
const NumPorts = 4

// LEDMode selects the behavior of the HAT's two status LEDs.
type LEDMode int

const (
	// LEDVoltage colors the LEDs by input voltage, green at nominal 8V.
	LEDVoltage LEDMode = -1
	// LEDOff turns both LEDs off.
	LEDOff LEDMode = 0
	// LEDOrange turns the orange LED on.
	LEDOrange LEDMode = 1
	// LEDGreen turns the green LED on.
	LEDGreen LEDMode = 2
	// LEDBoth turns both LEDs on.
	LEDBoth LEDMode = 3
)

// String returns the mode name.
func (m LEDMode) String() string {
	switch m {
	case LEDVoltage:
		return "voltage"
	case LEDOff:
		return "off"
	case LEDOrange:
		return "orange"
	case LEDGreen:
		return "green"
	case LEDBoth:
		return "both"
	default:
		return "unknown"
	}
}

// Config holds hub timing and behavior parameters.
type Config struct {
	// CommandTimeout bounds the wait for a command's reply.
	CommandTimeout time.Duration

	// PromptTimeout bounds each wait for the bootloader prompt during
	// a firmware upload.
	PromptTimeout time.Duration

	// RebootTimeout bounds the wait for the ready banner after a
	// reboot out of the bootloader.
	RebootTimeout time.Duration

	// BannerTimeout bounds the whole boot sequence's wait for a
	// version answer. Covers a cold flash taking tens of seconds.
	BannerTimeout time.Duration

	// DiscoverySettle is how long the hub drains attach notifications
	// after a firmware load before declaring discovery complete.
	DiscoverySettle time.Duration

	// ReadPoll is the granularity of blocking reads on the transport.
	ReadPoll time.Duration

	// LED is the LED mode applied once the HAT is ready.
	LED LEDMode
}

// DefaultConfig returns the timing constants of the HAT firmware.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:  5 * time.Second,
		PromptTimeout:   2 * time.Second,
		RebootTimeout:   5 * time.Second,
		BannerTimeout:   30 * time.Second,
		DiscoverySettle: 10 * time.Second,
		ReadPoll:        100 * time.Millisecond,
		LED:             LEDVoltage,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", c.CommandTimeout)
	}
	if c.PromptTimeout <= 0 {
		return fmt.Errorf("prompt timeout must be positive, got %v", c.PromptTimeout)
	}
	if c.RebootTimeout <= 0 {
		return fmt.Errorf("reboot timeout must be positive, got %v", c.RebootTimeout)
	}
	if c.BannerTimeout <= 0 {
		return fmt.Errorf("banner timeout must be positive, got %v", c.BannerTimeout)
	}
	if c.DiscoverySettle < 0 {
		return fmt.Errorf("discovery settle must not be negative, got %v", c.DiscoverySettle)
	}
	if c.ReadPoll <= 0 {
		return fmt.Errorf("read poll must be positive, got %v", c.ReadPoll)
	}
	if c.LED < LEDVoltage || c.LED > LEDBoth {
		return fmt.Errorf("unknown LED mode %d", c.LED)
	}
	return nil
}

// fileConfig is the YAML form of Config. Durations are integral
// milliseconds; absent fields keep their defaults.
type fileConfig struct {
	CommandTimeoutMS  *int `yaml:"command_timeout_ms"`
	PromptTimeoutMS   *int `yaml:"prompt_timeout_ms"`
	RebootTimeoutMS   *int `yaml:"reboot_timeout_ms"`
	BannerTimeoutMS   *int `yaml:"banner_timeout_ms"`
	DiscoverySettleMS *int `yaml:"discovery_settle_ms"`
	ReadPollMS        *int `yaml:"read_poll_ms"`
	LEDMode           *int `yaml:"led_mode"`
}

// LoadConfig reads a YAML configuration file and applies it over
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultConfig()
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	if fc.CommandTimeoutMS != nil {
		cfg.CommandTimeout = ms(*fc.CommandTimeoutMS)
	}
	if fc.PromptTimeoutMS != nil {
		cfg.PromptTimeout = ms(*fc.PromptTimeoutMS)
	}
	if fc.RebootTimeoutMS != nil {
		cfg.RebootTimeout = ms(*fc.RebootTimeoutMS)
	}
	if fc.BannerTimeoutMS != nil {
		cfg.BannerTimeout = ms(*fc.BannerTimeoutMS)
	}
	if fc.DiscoverySettleMS != nil {
		cfg.DiscoverySettle = ms(*fc.DiscoverySettleMS)
	}
	if fc.ReadPollMS != nil {
		cfg.ReadPoll = ms(*fc.ReadPollMS)
	}
	if fc.LEDMode != nil {
		cfg.LED = LEDMode(*fc.LEDMode)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
