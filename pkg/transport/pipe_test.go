package transport

import (
	"errors"
	"testing"
	"time"
)

func TestPipeRoundTrip(t *testing.T) {
	host, hat := NewPipe()
	defer host.Close()
	defer hat.Close()

	// Command frames end in a bare CR.
	if err := host.Write([]byte("version\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, err := hat.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "version" {
		t.Fatalf("line = %q, want %q", line, "version")
	}

	if err := hat.Write([]byte("Firmware version: 1737564117\r\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	line, err = host.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "Firmware version: 1737564117" {
		t.Errorf("line = %q", line)
	}
}

func TestPipeReadTimeout(t *testing.T) {
	host, hat := NewPipe()
	defer host.Close()
	defer hat.Close()

	start := time.Now()
	line, err := host.ReadLine(20 * time.Millisecond)
	if err != nil || line != nil {
		t.Fatalf("ReadLine = %q, %v, want nil, nil", line, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("ReadLine returned before the timeout")
	}
}

func TestPipeReadWakesOnWrite(t *testing.T) {
	host, hat := NewPipe()
	defer host.Close()
	defer hat.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		hat.Write([]byte("P0: ramp done\r\n"))
	}()

	line, err := host.ReadLine(time.Second)
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}
	if string(line) != "P0: ramp done" {
		t.Errorf("line = %q", line)
	}
}

func TestPipeClose(t *testing.T) {
	host, hat := NewPipe()
	hat.Close()

	if err := host.Write([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write after peer close = %v, want ErrClosed", err)
	}
	if _, err := hat.ReadLine(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadLine after close = %v, want ErrClosed", err)
	}
}

func TestPipeReset(t *testing.T) {
	host, hat := NewPipe()
	defer host.Close()
	defer hat.Close()

	var seen []bool
	hat.OnReset(func(asserted bool) {
		seen = append(seen, asserted)
	})

	if err := host.AssertReset(true); err != nil {
		t.Fatalf("AssertReset: %v", err)
	}
	if err := host.AssertReset(false); err != nil {
		t.Fatalf("AssertReset: %v", err)
	}
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("reset sequence = %v, want [true false]", seen)
	}
}
