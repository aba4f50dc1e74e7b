package device

import (
	"context"
	"fmt"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// distanceMode streams the measured distance in millimeters.
const distanceMode = 0

// DistanceSensor wraps the SPIKE ultrasonic distance sensor.
type DistanceSensor struct {
	base
}

// NewDistanceSensor wraps the distance sensor on the given port. The
// sensor is turned on and its distance mode selected, so readings
// stream continuously.
func NewDistanceSensor(ctx context.Context, h *hub.Hub, port int) (*DistanceSensor, error) {
	b, _, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if b.typ != TypeSpikeUltrasonicDistance {
		return nil, fmt.Errorf("%w: %s on port %d is not a distance sensor", ErrWrongDevice, b.typ, port)
	}
	s := &DistanceSensor{base: b}
	if err := s.On(ctx); err != nil {
		return nil, err
	}
	if err := s.selectMode(ctx, distanceMode); err != nil {
		return nil, err
	}
	return s, nil
}

// On turns the sensor on.
func (s *DistanceSensor) On(ctx context.Context) error {
	return s.hub.Send(ctx, wire.Port(s.port).Set(-1).Build())
}

// Distance returns the last measured distance in millimeters.
// Negative when nothing is in range.
func (s *DistanceSensor) Distance() (int, error) {
	v, ok := s.latestInt(distanceMode)
	if !ok {
		return 0, fmt.Errorf("%w: distance", ErrNoReading)
	}
	return v, nil
}

// WaitDistance blocks for the next distance reading in millimeters.
func (s *DistanceSensor) WaitDistance(ctx context.Context) (int, error) {
	read, err := s.readOne(ctx, distanceMode, 1)
	if err != nil {
		return 0, err
	}
	return int(read[0]), nil
}

// Eyes sets the brightness of the four LEDs around the sensor's eyes.
// Pass one value for all four, or four values ordered upper right,
// upper left, lower right, lower left, each 0 to 100.
func (s *DistanceSensor) Eyes(ctx context.Context, brightness ...int) error {
	var values [4]int
	switch len(brightness) {
	case 1:
		for i := range values {
			values[i] = brightness[0]
		}
	case 4:
		copy(values[:], brightness)
	default:
		return fmt.Errorf("%w: need 1 or 4 brightness values", ErrOutOfRange)
	}

	data := make([]byte, 5)
	data[0] = 0xC5
	for i, v := range values {
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: brightness %d not in 0 to 100", ErrOutOfRange, v)
		}
		data[i+1] = byte(v)
	}
	return s.Write1(ctx, data)
}
