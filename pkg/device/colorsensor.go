package device

import (
	"context"
	"fmt"
	"math"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// ColorSensor read modes.
const (
	colorModeColor     = 0
	colorModeReflected = 1
	colorModeAmbient   = 2
	colorModeRGBI      = 5
	colorModeHSV       = 6
)

// ColorSensor wraps the SPIKE color sensor. Reads average a
// configurable number of samples from the selected mode's stream.
type ColorSensor struct {
	base

	samples int
	lit     bool
}

// NewColorSensor wraps the color sensor on the given port.
func NewColorSensor(ctx context.Context, h *hub.Hub, port int) (*ColorSensor, error) {
	b, _, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if b.typ != TypeSpikeColorSensor {
		return nil, fmt.Errorf("%w: %s on port %d is not a color sensor", ErrWrongDevice, b.typ, port)
	}
	s := &ColorSensor{base: b, samples: 4}
	if err := s.selectMode(ctx, colorModeColor); err != nil {
		return nil, err
	}
	return s, nil
}

// Samples returns the number of reads averaged per measurement.
func (s *ColorSensor) Samples() int { return s.samples }

// SetSamples sets the number of reads averaged per measurement, 1 to
// 25. One disables averaging.
func (s *ColorSensor) SetSamples(n int) error {
	if n < 1 || n > 25 {
		return fmt.Errorf("%w: samples %d not in 1 to 25", ErrOutOfRange, n)
	}
	s.samples = n
	return nil
}

// On turns the sensor illumination on.
func (s *ColorSensor) On(ctx context.Context) error {
	err := s.hub.Send(ctx, wire.Port(s.port).PortPLimit(1).Set(-1).Build())
	if err != nil {
		return err
	}
	s.lit = true
	return nil
}

// Off turns the sensor off.
func (s *ColorSensor) Off(ctx context.Context) error {
	if err := s.base.Off(ctx); err != nil {
		return err
	}
	s.lit = false
	return nil
}

// Color reads the color and returns the nearest reference color.
func (s *ColorSensor) Color(ctx context.Context) (Color, error) {
	r, g, b, _, err := s.ColorRGBI(ctx)
	if err != nil {
		return ColorBlack, err
	}
	return NearestColor(r, g, b), nil
}

// ColorRGBI reads the color as red, green, blue and intensity, each
// 0 to 255.
func (s *ColorSensor) ColorRGBI(ctx context.Context) (r, g, b, i int, err error) {
	if err := s.lightOn(ctx); err != nil {
		return 0, 0, 0, 0, err
	}
	if err := s.selectMode(ctx, colorModeRGBI); err != nil {
		return 0, 0, 0, 0, err
	}

	var sum [4]int
	for n := 0; n < s.samples; n++ {
		read, err := s.readOne(ctx, colorModeRGBI, 4)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		for j, v := range read {
			sum[j] += int(v / 1024 * 255)
		}
	}
	return sum[0] / s.samples, sum[1] / s.samples, sum[2] / s.samples, sum[3] / s.samples, nil
}

// ColorHSV reads the color as hue (0 to 360), saturation and value
// (0 to 100). Hues are averaged circularly.
func (s *ColorSensor) ColorHSV(ctx context.Context) (h, sat, val int, err error) {
	if err := s.lightOn(ctx); err != nil {
		return 0, 0, 0, err
	}
	if err := s.selectMode(ctx, colorModeHSV); err != nil {
		return 0, 0, 0, err
	}

	var sin, cos float64
	var satSum, valSum int
	for n := 0; n < s.samples; n++ {
		read, err := s.readOne(ctx, colorModeHSV, 3)
		if err != nil {
			return 0, 0, 0, err
		}
		hue := read[0]
		sin += math.Sin(hue * math.Pi / 180)
		cos += math.Cos(hue * math.Pi / 180)
		satSum += int(read[1] / 1024 * 100)
		valSum += int(read[2] / 1024 * 100)
	}
	h = int(math.Mod(math.Atan2(sin, cos)*180/math.Pi+360, 360))
	return h, satSum / s.samples, valSum / s.samples, nil
}

// AmbientLight reads the ambient light intensity, 0 to 100. The
// sensor illumination is turned off for the measurement.
func (s *ColorSensor) AmbientLight(ctx context.Context) (int, error) {
	if err := s.lightOff(ctx); err != nil {
		return 0, err
	}
	return s.readScalar(ctx, colorModeAmbient)
}

// ReflectedLight reads the reflected light intensity, 0 to 100.
func (s *ColorSensor) ReflectedLight(ctx context.Context) (int, error) {
	if err := s.lightOn(ctx); err != nil {
		return 0, err
	}
	return s.readScalar(ctx, colorModeReflected)
}

func (s *ColorSensor) readScalar(ctx context.Context, mode int) (int, error) {
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

func (s *ColorSensor) lightOn(ctx context.Context) error {
	if s.lit {
		return nil
	}
	return s.On(ctx)
}

func (s *ColorSensor) lightOff(ctx context.Context) error {
	if !s.lit {
		return nil
	}
	return s.Off(ctx)
}
