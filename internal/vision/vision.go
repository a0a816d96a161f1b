// Package vision wraps the OpenCV primitives used on page images.
package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"gocv.io/x/gocv"

	"github.com/dgallion1/notenscan/internal/deskew"
)

// Fill selects how the corners uncovered by a rotation are painted.
type Fill int

const (
	// FillReplicate repeats the edge pixels.
	FillReplicate Fill = iota
	// FillWhite paints them white.
	FillWhite
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// OpenCV implements deskew.Shapes.
type OpenCV struct{}

var _ deskew.Shapes = OpenCV{}

// ForegroundRect implements deskew.Shapes. Foreground coordinates are passed
// to minAreaRect as (row, column) points.
func (OpenCV) ForegroundRect(img image.Image) (deskew.Rect, bool, error) {
	bin, err := binarize(img)
	if err != nil {
		return deskew.Rect{}, false, err
	}
	defer bin.Close()

	if gocv.CountNonZero(bin) == 0 {
		return deskew.Rect{}, false, nil
	}

	transposed := gocv.NewMat()
	defer transposed.Close()
	gocv.Transpose(bin, &transposed)

	points := gocv.NewMat()
	defer points.Close()
	gocv.FindNonZero(transposed, &points)

	pv := gocv.NewPointVectorFromMat(points)
	defer pv.Close()

	// MinAreaRect2 keeps the sub-pixel side lengths RectAngle compares.
	r := gocv.MinAreaRect2(pv)
	return deskew.Rect{Width: float64(r.Width), Height: float64(r.Height), Angle: r.Angle}, true, nil
}

// Regions implements deskew.Shapes using 8-connected component labelling.
func (OpenCV) Regions(img image.Image) ([]deskew.Region, error) {
	bin, err := binarize(img)
	if err != nil {
		return nil, err
	}
	defer bin.Close()

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(bin, &labels, &stats, &centroids)
	if n <= 1 {
		return nil, nil
	}

	ids, err := labels.DataPtrInt32()
	if err != nil {
		return nil, fmt.Errorf("label data: %w", err)
	}
	moments := make([]deskew.Moments, n)
	cols := labels.Cols()
	for i, id := range ids {
		if id > 0 {
			moments[id].Add(i/cols, i%cols)
		}
	}

	// Label 0 is the background.
	regions := make([]deskew.Region, 0, n-1)
	for l := 1; l < n; l++ {
		regions = append(regions, moments[l].Region())
	}
	return regions, nil
}

// RotatePage rotates a rendered page, repeating edge pixels into the
// uncovered corners.
func (OpenCV) RotatePage(img image.Image, angle float64) (image.Image, error) {
	return Rotate(img, angle, FillReplicate)
}

func (OpenCV) EncodePNG(img image.Image) ([]byte, error) { return EncodePNG(img) }

// Rotate turns img by angle degrees counter-clockwise about its centre with
// bicubic interpolation. The canvas grows so no content is clipped.
func Rotate(img image.Image, angle float64, fill Fill) (image.Image, error) {
	src, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := rotateMat(src, angle, fill)
	defer dst.Close()
	out, err := dst.ToImage()
	if err != nil {
		return nil, fmt.Errorf("mat to image: %w", err)
	}
	return out, nil
}

func rotateMat(src gocv.Mat, angle float64, fill Fill) gocv.Mat {
	w, h := src.Cols(), src.Rows()
	center := image.Pt(w/2, h/2)

	m := gocv.GetRotationMatrix2D(center, angle, 1.0)
	defer m.Close()

	cos := math.Abs(m.GetDoubleAt(0, 0))
	sin := math.Abs(m.GetDoubleAt(0, 1))
	newW := int(float64(h)*sin + float64(w)*cos)
	newH := int(float64(h)*cos + float64(w)*sin)
	m.SetDoubleAt(0, 2, m.GetDoubleAt(0, 2)+float64(newW)/2-float64(center.X))
	m.SetDoubleAt(1, 2, m.GetDoubleAt(1, 2)+float64(newH)/2-float64(center.Y))

	border := gocv.BorderReplicate
	if fill == FillWhite {
		border = gocv.BorderConstant
	}
	dst := gocv.NewMat()
	gocv.WarpAffineWithParams(src, &dst, m, image.Pt(newW, newH), gocv.InterpolationCubic, border, white)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	m, err := toMat(img)
	if err != nil {
		return nil, err
	}
	defer m.Close()
	return encodePNG(m)
}

func encodePNG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

func binarize(img image.Image) (gocv.Mat, error) {
	bgr, err := toMat(img)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer bgr.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	bin := gocv.NewMat()
	gocv.Threshold(gray, &bin, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)
	return bin, nil
}

// toMat converts img to a BGR Mat.
func toMat(img image.Image) (gocv.Mat, error) {
	rgba := toRGBA(img)
	b := rgba.Bounds()
	m, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("mat from image: %w", err)
	}
	defer m.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(m, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*b.Dx() {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
