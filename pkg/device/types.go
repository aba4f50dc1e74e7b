package device

// Type is a Build HAT device type ID as reported in attach
// notifications.
type Type int

// Passive device types.
const (
	TypeNone                 Type = 0
	TypeSystemMediumMotor    Type = 1
	TypeSystemTrainMotor     Type = 2
	TypeSystemTurntableMotor Type = 3
	TypeGeneralPWM           Type = 4
	TypeButtonOrTouchSensor  Type = 5
	TypeSimpleLights         Type = 8
	TypeFutureLights1        Type = 9
	TypeFutureLights2        Type = 10
	TypeSystemFutureActuator Type = 11
)

// Active device types.
const (
	TypeWeDoTiltSensor            Type = 0x22
	TypeWeDoMotionSensor          Type = 0x23
	TypeColorAndDistanceSensor    Type = 0x25
	TypeMediumLinearMotor         Type = 0x26
	TypeTechnicLargeMotor         Type = 0x2E
	TypeTechnicXLMotor            Type = 0x2F
	TypeSpikeMediumAngularMotor   Type = 0x30
	TypeSpikeLargeAngularMotor    Type = 0x31
	TypeSpikeColorSensor          Type = 0x3D
	TypeSpikeUltrasonicDistance   Type = 0x3E
	TypeSpikeForceSensor          Type = 0x3F
	TypeSpike3x3ColorLightMatrix  Type = 0x40
	TypeSpikeSmallAngularMotor    Type = 0x41
	TypeTechnicMediumAngularMotor Type = 0x4B
	TypeTechnicLargeAngularMotor  Type = 0x4C
)

var typeNames = map[Type]string{
	TypeNone:                      "None",
	TypeSystemMediumMotor:         "System medium motor",
	TypeSystemTrainMotor:          "System train motor",
	TypeSystemTurntableMotor:      "System turntable motor",
	TypeGeneralPWM:                "General PWM/third party",
	TypeButtonOrTouchSensor:       "Button/touch sensor",
	TypeSimpleLights:              "Lights",
	TypeFutureLights1:             "Future lights 1",
	TypeFutureLights2:             "Future lights 2",
	TypeSystemFutureActuator:      "System future actuator (train points)",
	TypeWeDoTiltSensor:            "WeDo tilt sensor",
	TypeWeDoMotionSensor:          "WeDo motion sensor",
	TypeColorAndDistanceSensor:    "Colour and distance sensor",
	TypeMediumLinearMotor:         "Medium linear motor",
	TypeTechnicLargeMotor:         "Technic large motor",
	TypeTechnicXLMotor:            "Technic XL motor",
	TypeSpikeMediumAngularMotor:   "SPIKE medium motor",
	TypeSpikeLargeAngularMotor:    "SPIKE large motor",
	TypeSpikeColorSensor:          "SPIKE colour sensor",
	TypeSpikeUltrasonicDistance:   "SPIKE ultrasonic distance sensor",
	TypeSpikeForceSensor:          "SPIKE force sensor",
	TypeSpike3x3ColorLightMatrix:  "SPIKE 3x3 colour light matrix",
	TypeSpikeSmallAngularMotor:    "SPIKE small angular motor",
	TypeTechnicMediumAngularMotor: "Technic medium angular motor",
	TypeTechnicLargeAngularMotor:  "Technic large angular motor",
}

// String returns the device name.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

var motorTypes = map[Type]struct{}{
	TypeSystemMediumMotor:         {},
	TypeSystemTrainMotor:          {},
	TypeSystemTurntableMotor:      {},
	TypeMediumLinearMotor:         {},
	TypeTechnicLargeMotor:         {},
	TypeTechnicXLMotor:            {},
	TypeSpikeMediumAngularMotor:   {},
	TypeSpikeLargeAngularMotor:    {},
	TypeSpikeSmallAngularMotor:    {},
	TypeTechnicMediumAngularMotor: {},
	TypeTechnicLargeAngularMotor:  {},
}

// IsMotor reports whether the type is a motor of any kind.
func (t Type) IsMotor() bool {
	_, ok := motorTypes[t]
	return ok
}

// IsActive reports whether the type speaks the serial device protocol
// rather than plain PWM.
func (t Type) IsActive() bool {
	return t >= TypeWeDoTiltSensor
}
