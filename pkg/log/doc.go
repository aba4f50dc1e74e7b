// Package log provides structured protocol tracing for the Build HAT
// driver.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, wire, hub). It is
// separate from operational logging (slog) - protocol capture provides a
// complete machine-readable trace of the serial conversation for
// debugging and analysis.
//
// # Basic Usage
//
// Applications configure tracing by providing a Logger implementation:
//
//	// For development: log to console via slog
//	hub.WithTrace(log.NewSlogAdapter(slog.Default()))
//
//	// For production: write to binary file
//	trace, _ := log.NewFileLogger("/var/log/buildhat/hat.bhlog")
//	hub.WithTrace(trace)
//
//	// Both: use MultiLogger
//	hub.WithTrace(log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    trace,
//	))
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: raw lines as sent and received (LineEvent)
//   - Wire: classified lines with their token kind (LineEvent.Kind)
//   - Hub: port and boot state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Trace files use CBOR encoding with .bhlog extension. Reader streams
// events back with optional filtering.
package log
