// Package hub implements the Build HAT driver core.
//
// A Hub owns one transport.Transport connected to the HAT and runs two
// cooperating pieces on top of it:
//
//   - The command channel serializes outgoing commands. At most one
//     command is in flight; concurrent callers are served strictly in
//     arrival order. A command's reply arity is described by a
//     ReplySpec; replies that arrive after a timeout are discarded.
//   - The dispatcher goroutine reads every incoming line, classifies
//     it with pkg/wire, and routes it: replies to the pending command,
//     attach/detach notifications to the port registry, telemetry to
//     the value store, ramp/pulse completions to waiters.
//
// # Boot Sequence
//
// Start drives the HAT to a usable state before the dispatcher runs:
// a version probe decides whether the HAT is running current firmware,
// outdated firmware, or only its bootloader. The latter two paths
// upload the firmware image from the configured Supplier through the
// bootloader handshake, reboot, and wait for the ready banner.
// Commands submitted before Ready fail with ErrNotReady and write
// nothing to the wire.
//
// # Ports and Values
//
// The four ports are hot-pluggable. Port snapshots report Empty,
// Connecting (active device announcing its mode table) or Connected.
// Telemetry lines are stored per (port, mode) with overwrite
// semantics; Subscribe returns a latest-wins stream that ends on
// detach. Combi-mode updates are decomposed into their member modes
// using the attached device's mode table.
//
// # Tracing
//
// All protocol activity can be captured through a pkg/log Logger,
// tagged with the hub's session UUID.
package hub
