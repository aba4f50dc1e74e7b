package device

import (
	"context"
	"fmt"

	"github.com/CDarius/buildhat-go/pkg/hub"
)

// ColorDistanceSensor read modes.
const (
	cdsModeProximity = 1
	cdsModeCounter   = 2
	cdsModeReflected = 3
	cdsModeAmbient   = 4
	cdsModeLight     = 5
	cdsModeRGB       = 6
)

// ColorDistanceSensor wraps the Boost color and distance sensor.
type ColorDistanceSensor struct {
	base

	samples int
}

// NewColorDistanceSensor wraps the sensor on the given port.
func NewColorDistanceSensor(ctx context.Context, h *hub.Hub, port int) (*ColorDistanceSensor, error) {
	b, _, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if b.typ != TypeColorAndDistanceSensor {
		return nil, fmt.Errorf("%w: %s on port %d is not a color and distance sensor", ErrWrongDevice, b.typ, port)
	}
	s := &ColorDistanceSensor{base: b, samples: 4}
	if err := s.SetLight(ctx, ColorBlack); err != nil {
		return nil, err
	}
	return s, nil
}

// Samples returns the number of reads averaged per measurement.
func (s *ColorDistanceSensor) Samples() int { return s.samples }

// SetSamples sets the number of reads averaged per measurement, 1 to
// 25.
func (s *ColorDistanceSensor) SetSamples(n int) error {
	if n < 1 || n > 25 {
		return fmt.Errorf("%w: samples %d not in 1 to 25", ErrOutOfRange, n)
	}
	s.samples = n
	return nil
}

// Color reads the color and returns the nearest reference color.
func (s *ColorDistanceSensor) Color(ctx context.Context) (Color, error) {
	r, g, b, err := s.ColorRGB(ctx)
	if err != nil {
		return ColorBlack, err
	}
	return NearestColor(r, g, b), nil
}

// ColorRGB reads the color as red, green and blue, each 0 to 255.
func (s *ColorDistanceSensor) ColorRGB(ctx context.Context) (r, g, b int, err error) {
	if err := s.selectMode(ctx, cdsModeRGB); err != nil {
		return 0, 0, 0, err
	}

	var sum [3]int
	for n := 0; n < s.samples; n++ {
		read, err := s.readOne(ctx, cdsModeRGB, 3)
		if err != nil {
			return 0, 0, 0, err
		}
		for j, v := range read {
			sum[j] += int(clamp(v, 0, 400) / 400 * 255)
		}
	}
	return sum[0] / s.samples, sum[1] / s.samples, sum[2] / s.samples, nil
}

// AmbientLight reads the ambient light intensity, 0 to 100.
func (s *ColorDistanceSensor) AmbientLight(ctx context.Context) (int, error) {
	return s.readScalar(ctx, cdsModeAmbient)
}

// ReflectedLight reads the reflected light intensity, 0 to 100.
func (s *ColorDistanceSensor) ReflectedLight(ctx context.Context) (int, error) {
	return s.readScalar(ctx, cdsModeReflected)
}

// Proximity reads the distance from an obstacle, 0 to 10.
func (s *ColorDistanceSensor) Proximity(ctx context.Context) (int, error) {
	if err := s.selectMode(ctx, cdsModeProximity); err != nil {
		return 0, err
	}
	read, err := s.readOne(ctx, cdsModeProximity, 1)
	if err != nil {
		return 0, err
	}
	return int(read[0]), nil
}

// Counter reads the number of objects that have passed the sensor.
func (s *ColorDistanceSensor) Counter(ctx context.Context) (int, error) {
	if err := s.selectMode(ctx, cdsModeCounter); err != nil {
		return 0, err
	}
	read, err := s.readOne(ctx, cdsModeCounter, 1)
	if err != nil {
		return 0, err
	}
	return int(read[0]), nil
}

// SetLight sets the sensor LED color. Only black, blue, green, red
// and white can be displayed; other colors map to the nearest of
// those. No measurements stream in this mode.
func (s *ColorDistanceSensor) SetLight(ctx context.Context, color Color) error {
	if err := s.selectMode(ctx, cdsModeLight); err != nil {
		return err
	}

	var num byte
	switch color {
	case ColorBlue, ColorCyan:
		num = 3
	case ColorRed, ColorViolet, ColorYellow:
		num = 9
	case ColorGreen:
		num = 5
	case ColorWhite:
		num = 10
	default:
		num = 0
	}
	return s.Write1(ctx, []byte{0xC5, num})
}

// Off turns the sensor LED off.
func (s *ColorDistanceSensor) Off(ctx context.Context) error {
	return s.SetLight(ctx, ColorBlack)
}

func (s *ColorDistanceSensor) readScalar(ctx context.Context, mode int) (int, error) {
	if err := s.selectMode(ctx, mode); err != nil {
		return 0, err
	}
	sum := 0
	for n := 0; n < s.samples; n++ {
		read, err := s.readOne(ctx, mode, 1)
		if err != nil {
			return 0, err
		}
		sum += int(read[0])
	}
	return sum / s.samples, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
