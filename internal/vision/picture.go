package vision

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Picture is a page image loaded from disk.
type Picture struct {
	mat gocv.Mat
}

// Load reads an image file. The caller must Close the picture.
func Load(path string) (*Picture, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return nil, fmt.Errorf("read image %s: %w", path, errors.New("empty or unreadable"))
	}
	return &Picture{mat: m}, nil
}

func (p *Picture) Close() error { return p.mat.Close() }

func (p *Picture) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.mat.Cols(), p.mat.Rows())
}

// CropPNG encodes the part of the picture inside r.
func (p *Picture) CropPNG(r image.Rectangle) ([]byte, error) {
	r = r.Intersect(p.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("crop %v outside image %v", r, p.Bounds())
	}
	region := p.mat.Region(r)
	defer region.Close()
	return encodePNG(region)
}

// Rotated returns the picture turned by angle degrees counter-clockwise on
// a white, expanded canvas, encoded as PNG.
func (p *Picture) Rotated(angle float64) ([]byte, error) {
	dst := rotateMat(p.mat, angle, FillWhite)
	defer dst.Close()
	return encodePNG(dst)
}
