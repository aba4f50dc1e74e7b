package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestSlogAdapterEmitsAttributes(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	port := 3
	adapter.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s1",
		Direction: DirectionIn,
		Layer:     LayerWire,
		Category:  CategoryLine,
		Port:      &port,
		Line:      &LineEvent{Text: "P3: connected to active ID 30", Kind: "PortAttach"},
	})

	out := buf.String()
	for _, want := range []string{"session=s1", "direction=IN", "layer=WIRE", "port=3", "kind=PortAttach"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestSlogAdapterStateChange(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		Timestamp: time.Now(),
		SessionID: "s1",
		Layer:     LayerHub,
		Category:  CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntityPort,
			OldState: "empty",
			NewState: "connected",
			Reason:   "attach",
		},
	})

	out := buf.String()
	for _, want := range []string{"entity=PORT", "new_state=connected", "reason=attach"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
