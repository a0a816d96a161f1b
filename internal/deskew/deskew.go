package deskew

import (
	"fmt"
	"image"
	"log/slog"
	"math"
)

// Reconciliation thresholds in degrees.
const (
	AgreeTolerance  = 0.6
	DisagreeMinimum = 1.5
	MaxApplied      = 20.0
)

// Policy names which branch of Reconcile produced the applied angle.
type Policy string

const (
	PolicyMean      Policy = "mean"
	PolicyRegion    Policy = "region"
	PolicyAmbiguous Policy = "ambiguous"
	PolicyLimit     Policy = "limit"
)

// Rect is a minimum-area oriented rectangle as reported by the shape backend.
type Rect struct {
	Width  float64
	Height float64
	Angle  float64 // degrees
}

// Region is one connected foreground component.
type Region struct {
	Area        int
	Orientation float64 // radians, major axis against the row axis
}

// Shapes provides the binarization-backed primitives both estimators need.
// Implementations binarize with Otsu's method and treat ink as foreground.
type Shapes interface {
	// ForegroundRect returns the minimum-area rectangle around all
	// foreground pixels, or ok=false when there are none.
	ForegroundRect(img image.Image) (r Rect, ok bool, err error)
	// Regions returns the 8-connected foreground components.
	Regions(img image.Image) ([]Region, error)
}

// Result is the outcome of analysing one page.
type Result struct {
	A       float64 `json:"angle_rect"`
	B       float64 `json:"angle_region"`
	Applied float64 `json:"applied"`
	Policy  Policy  `json:"policy"`
}

// Rotated reports whether the page needs to be rotated.
func (r Result) Rotated() bool { return r.Applied != 0 }

// RectAngle derives the skew angle from the minimum-area rectangle of the
// foreground. Positive means the page has to be rotated counter-clockwise.
func RectAngle(r Rect, found bool, pageW, pageH int) float64 {
	if !found {
		return 0
	}
	angle := r.Angle
	// The rectangle's long side should follow the page's long side; when it
	// does and the angle sits near 90, the rectangle was reported rotated.
	var aligned bool
	if pageW > pageH {
		aligned = r.Width > r.Height
	} else {
		aligned = r.Width < r.Height
	}
	if aligned && angle >= 80 && angle <= 100 {
		angle -= 90
	}
	return -angle
}

// RegionAngle derives the skew angle from the orientation of the largest
// region. Angles near ±90 are folded back towards zero.
func RegionAngle(regions []Region) float64 {
	if len(regions) == 0 {
		return 0
	}
	largest := regions[0]
	for _, r := range regions[1:] {
		if r.Area > largest.Area {
			largest = r
		}
	}
	angle := -largest.Orientation * 180 / math.Pi
	if abs := math.Abs(angle); abs >= 70 && abs <= 110 {
		if angle > 0 {
			angle -= 90
		} else {
			angle += 90
		}
	}
	return angle
}

// Reconcile combines both estimates into the angle that is applied.
func Reconcile(a, b float64) (float64, Policy) {
	var angle float64
	var policy Policy
	switch diff := math.Abs(a - b); {
	case diff <= AgreeTolerance:
		angle, policy = (a+b)/2, PolicyMean
	case diff >= DisagreeMinimum:
		angle, policy = b, PolicyRegion
	default:
		return 0, PolicyAmbiguous
	}
	if math.Abs(angle) >= MaxApplied {
		return 0, PolicyLimit
	}
	return angle, policy
}

// Analyze runs both estimators on img and reconciles them.
func Analyze(shapes Shapes, img image.Image, log *slog.Logger) (Result, error) {
	b := img.Bounds()

	rect, found, err := shapes.ForegroundRect(img)
	if err != nil {
		return Result{}, fmt.Errorf("foreground rect: %w", err)
	}
	regions, err := shapes.Regions(img)
	if err != nil {
		return Result{}, fmt.Errorf("regions: %w", err)
	}

	res := Result{
		A: RectAngle(rect, found, b.Dx(), b.Dy()),
		B: RegionAngle(regions),
	}
	res.Applied, res.Policy = Reconcile(res.A, res.B)

	if log != nil {
		switch res.Policy {
		case PolicyAmbiguous:
			log.Debug("estimates disagree, page left unrotated", "angle_rect", res.A, "angle_region", res.B)
		case PolicyLimit:
			log.Debug("angle out of range, page left unrotated", "angle_rect", res.A, "angle_region", res.B)
		default:
			log.Debug("deskew angle", "angle_rect", res.A, "angle_region", res.B, "applied", res.Applied, "policy", res.Policy)
		}
	}
	return res, nil
}
