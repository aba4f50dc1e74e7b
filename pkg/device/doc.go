// Package device provides typed wrappers for the LEGO devices a Build
// HAT can drive: motors with and without encoders, color and distance
// sensors, and the 3x3 light matrix.
//
// Each wrapper sits on top of a running hub.Hub and translates device
// operations into port command chains, reading telemetry back through
// the hub's value store. Open inspects a port and returns the wrapper
// matching the attached device type; the concrete constructors can be
// used directly when the type is known.
//
// # Motors
//
// PassiveMotor drives plain DC motors through direct PWM. ActiveMotor
// adds encoder feedback: positional ramps, timed pulses, absolute
// angle targeting and PID presets. Blocking run operations wait for
// the firmware's ramp/pulse completion messages and honor context
// cancellation.
//
// # Sensors
//
// Sensor reads subscribe to the selected mode's update stream and
// average a configurable number of samples, scaled to the conventional
// ranges (0-255 RGB, 0-100 percentages, millimeters for distance).
package device
