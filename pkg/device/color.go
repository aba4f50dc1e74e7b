package device

import "math"

// Color is a LEGO brick color as detected by the color sensors.
type Color int

const (
	ColorBlack Color = iota
	ColorViolet
	ColorBlue
	ColorCyan
	ColorGreen
	ColorYellow
	ColorRed
	ColorWhite
)

// String returns the color name.
func (c Color) String() string {
	switch c {
	case ColorBlack:
		return "black"
	case ColorViolet:
		return "violet"
	case ColorBlue:
		return "blue"
	case ColorCyan:
		return "cyan"
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	case ColorRed:
		return "red"
	case ColorWhite:
		return "white"
	default:
		return "unknown"
	}
}

// RGB returns the color's reference RGB triplet.
func (c Color) RGB() (r, g, b int) {
	rgb := colorRGB[c]
	return rgb[0], rgb[1], rgb[2]
}

var colorRGB = map[Color][3]int{
	ColorBlack:  {0, 0, 0},
	ColorViolet: {127, 0, 255},
	ColorBlue:   {0, 0, 255},
	ColorCyan:   {0, 183, 235},
	ColorGreen:  {0, 128, 0},
	ColorYellow: {255, 255, 0},
	ColorRed:    {255, 0, 0},
	ColorWhite:  {255, 255, 255},
}

// NearestColor returns the reference color closest to the given RGB
// reading by euclidean distance.
func NearestColor(r, g, b int) Color {
	nearest := ColorBlack
	best := math.Inf(1)
	for _, c := range []Color{
		ColorBlack, ColorViolet, ColorBlue, ColorCyan,
		ColorGreen, ColorYellow, ColorRed, ColorWhite,
	} {
		ref := colorRGB[c]
		d := math.Sqrt(float64((r-ref[0])*(r-ref[0]) + (g-ref[1])*(g-ref[1]) + (b-ref[2])*(b-ref[2])))
		if d < best {
			nearest = c
			best = d
		}
	}
	return nearest
}
