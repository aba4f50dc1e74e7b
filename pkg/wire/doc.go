// Package wire implements the Build HAT line codec.
//
// The Build HAT speaks a line-oriented ASCII protocol over its UART:
// commands are CR-terminated lines of space-separated tokens, and every
// incoming line is either the echo of a command, a synchronous reply, or
// an asynchronous notification pushed by the firmware (port attach/detach,
// sensor value updates, boot banners).
//
// # Decoding
//
// Decode classifies a single incoming line into a Token. Decoding is total
// and best-effort: a line that matches no known shape becomes a Token of
// KindUnrecognized carrying the raw text, never an error. Callers decide
// what to do with noise; the codec never fails.
//
// # Encoding
//
// Command values are built either from Raw text or through the Port
// builder, which produces the HAT's "port N ; verb args ; ..." chains.
// The produced bytes reproduce the firmware's grammar byte for byte,
// including the firmware upload handshake verbs (clear, load, signature,
// reboot).
//
// # Notable line shapes
//
//	P1: connected to active ID 30      port attach (active device)
//	P1: connected to passive ID 2      port attach (passive device)
//	P1: disconnected                   port detach
//	P1C0: 0 167 -14                    combi-mode value update
//	P1M2: 167                          single-mode value update
//	P1: ramp done                      positional ramp completed
//	Firmware version: 1737564117 ...   version banner
//	BuildHAT bootloader version ...    bootloader banner
//	Done initialising ports            firmware ready banner
//	BHBL>                              bootloader prompt
//	Error: unknown command             command failure
package wire
