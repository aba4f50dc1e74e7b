package device

import (
	"context"
	"fmt"

	"github.com/CDarius/buildhat-go/pkg/hub"
	"github.com/CDarius/buildhat-go/pkg/wire"
)

// MatrixColor is a pixel color of the 3x3 light matrix.
type MatrixColor byte

const (
	MatrixBlack MatrixColor = iota
	MatrixBrown
	MatrixMagenta
	MatrixBlue
	MatrixCyan
	MatrixPaleGreen
	MatrixGreen
	MatrixYellow
	MatrixOrange
	MatrixRed
	MatrixWhite
)

// MatrixTransition is the animation between displayed images.
type MatrixTransition byte

const (
	// TransitionNone draws new pixels immediately.
	TransitionNone MatrixTransition = iota
	// TransitionSwipe wipes right to left between images.
	TransitionSwipe
	// TransitionFade fades out and back in between images.
	TransitionFade
)

// LightMatrix display modes.
const (
	matrixModeLevel      = 0
	matrixModeColor      = 1
	matrixModePixels     = 2
	matrixModeTransition = 3
)

// LightMatrix wraps the SPIKE Essential 3x3 color light matrix. Pixel
// changes accumulate in a buffer; DisplayPixels pushes the buffer to
// the device.
type LightMatrix struct {
	base

	colors     [9]MatrixColor
	brightness [9]byte
}

// NewLightMatrix wraps the light matrix on the given port.
func NewLightMatrix(ctx context.Context, h *hub.Hub, port int) (*LightMatrix, error) {
	b, _, err := newBase(h, port)
	if err != nil {
		return nil, err
	}
	if b.typ != TypeSpike3x3ColorLightMatrix {
		return nil, fmt.Errorf("%w: %s on port %d is not a light matrix", ErrWrongDevice, b.typ, port)
	}
	m := &LightMatrix{base: b}
	if err := m.On(ctx); err != nil {
		return nil, err
	}
	if err := m.selectMode(ctx, matrixModePixels); err != nil {
		return nil, err
	}
	return m, nil
}

// On powers the matrix at full limit.
func (m *LightMatrix) On(ctx context.Context) error {
	return m.hub.Send(ctx, wire.Port(m.port).PLimit(1).Set(-1).Build())
}

// Off blanks the display. The matrix must never receive a port off
// command, so all pixels are set to black instead.
func (m *LightMatrix) Off(ctx context.Context) error {
	return m.DisplaySingleColor(ctx, MatrixBlack)
}

// DisplaySingleColor shows one color on all nine pixels.
func (m *LightMatrix) DisplaySingleColor(ctx context.Context, color MatrixColor) error {
	if err := validMatrixColor(color); err != nil {
		return err
	}
	if err := m.selectMode(ctx, matrixModeColor); err != nil {
		return err
	}
	return m.Write1(ctx, []byte{0xC1, byte(color)})
}

// DisplayLevelBar shows a green level bar of the given height, 0 to 9.
func (m *LightMatrix) DisplayLevelBar(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 9 {
		level = 9
	}
	if err := m.selectMode(ctx, matrixModeLevel); err != nil {
		return err
	}
	return m.Write1(ctx, []byte{0xC0, byte(level)})
}

// SetPixel stages one pixel in the buffer. Coordinates are 0 to 2,
// brightness 0 to 10. The change shows after DisplayPixels.
func (m *LightMatrix) SetPixel(x, y int, color MatrixColor, brightness int) error {
	if x < 0 || x > 2 {
		return fmt.Errorf("%w: x %d not in 0 to 2", ErrOutOfRange, x)
	}
	if y < 0 || y > 2 {
		return fmt.Errorf("%w: y %d not in 0 to 2", ErrOutOfRange, y)
	}
	if err := validMatrixColor(color); err != nil {
		return err
	}
	if err := validBrightness(brightness); err != nil {
		return err
	}
	idx := y*3 + x
	m.colors[idx] = color
	m.brightness[idx] = byte(brightness)
	return nil
}

// FillPixels stages the same color and brightness on every pixel.
func (m *LightMatrix) FillPixels(color MatrixColor, brightness int) error {
	if err := validMatrixColor(color); err != nil {
		return err
	}
	if err := validBrightness(brightness); err != nil {
		return err
	}
	for i := range m.colors {
		m.colors[i] = color
		m.brightness[i] = byte(brightness)
	}
	return nil
}

// DisplayPixels pushes the staged pixel buffer to the matrix.
func (m *LightMatrix) DisplayPixels(ctx context.Context) error {
	data := make([]byte, 10)
	data[0] = 0xC2
	for i := 0; i < 9; i++ {
		data[i+1] = m.brightness[i]<<4 | byte(m.colors[i])
	}
	if err := m.selectMode(ctx, matrixModePixels); err != nil {
		return err
	}
	return m.Write1(ctx, data)
}

// SetTransition sets the animation used between displayed images.
// Changing the transition wipes the screen.
func (m *LightMatrix) SetTransition(ctx context.Context, transition MatrixTransition) error {
	if transition > TransitionFade {
		return fmt.Errorf("%w: transition %d", ErrOutOfRange, transition)
	}
	if err := m.selectMode(ctx, matrixModeTransition); err != nil {
		return err
	}
	if err := m.Write1(ctx, []byte{0xC3, byte(transition)}); err != nil {
		return err
	}
	return m.selectMode(ctx, matrixModePixels)
}

func validMatrixColor(color MatrixColor) error {
	if color > MatrixWhite {
		return fmt.Errorf("%w: matrix color %d", ErrOutOfRange, color)
	}
	return nil
}

func validBrightness(brightness int) error {
	if brightness < 0 || brightness > 10 {
		return fmt.Errorf("%w: brightness %d not in 0 to 10", ErrOutOfRange, brightness)
	}
	return nil
}
