package voices

import (
	"image"
	"math"
)

// Box is a rectangle a user drew on the title page.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TitleRegion is the title box moved up and left by a tenth of its size and
// scaled by 1.2, clipped to bounds.
func TitleRegion(b Box, bounds image.Rectangle) image.Rectangle {
	return grow(b, 0.1, 1.2, 0, bounds)
}

// VoiceRegion is the voice box moved by 30% and scaled by 1.6, at least 30%
// of the page wide, clipped to bounds.
func VoiceRegion(b Box, bounds image.Rectangle) image.Rectangle {
	return grow(b, 0.3, 1.6, 0.3*float64(bounds.Dx()), bounds)
}

func grow(b Box, shift, scale, minWidth float64, bounds image.Rectangle) image.Rectangle {
	x := math.Max(0, b.X-shift*b.Width)
	y := math.Max(0, b.Y-shift*b.Height)
	w := math.Max(b.Width*scale, minWidth)
	h := b.Height * scale
	r := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	)
	return r.Add(bounds.Min).Intersect(bounds)
}
