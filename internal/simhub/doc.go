// Package simhub simulates a Build HAT on the far end of an in-memory
// transport pipe.
//
// The simulator answers the firmware's command set (version, vin,
// list, ledmode, port chains) and the bootloader handshake (clear,
// load, signature, reboot), records every command line it receives,
// and lets tests script device attachment, telemetry and completion
// events. It backs the hub and device test suites and the console's
// -sim mode.
package simhub
