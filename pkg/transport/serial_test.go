package transport

import (
	"testing"
	"time"
)

func TestDefaultSerialConfig(t *testing.T) {
	cfg := DefaultSerialConfig()
	if cfg.Device != "/dev/serial0" {
		t.Errorf("Device = %q, want /dev/serial0", cfg.Device)
	}
	if cfg.BaudRate != 115200 {
		t.Errorf("BaudRate = %d, want 115200", cfg.BaudRate)
	}
	if cfg.ReadPoll != 100*time.Millisecond {
		t.Errorf("ReadPoll = %v, want 100ms", cfg.ReadPoll)
	}
	if cfg.Reset != nil {
		t.Error("Reset should default to nil")
	}
}
