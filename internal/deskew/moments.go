package deskew

import "math"

// Moments accumulates raw image moments of a pixel set, in row/column
// coordinates, so the central moments can be derived in one pass.
type Moments struct {
	n                   float64
	sumR, sumC          float64
	sumRR, sumCC, sumRC float64
}

// Add records one foreground pixel.
func (m *Moments) Add(row, col int) {
	r, c := float64(row), float64(col)
	m.n++
	m.sumR += r
	m.sumC += c
	m.sumRR += r * r
	m.sumCC += c * c
	m.sumRC += r * c
}

// Area is the number of pixels added.
func (m *Moments) Area() int { return int(m.n) }

// Orientation returns the angle in radians, in [-pi/2, pi/2], between the
// row axis and the major axis of the ellipse with the same second moments.
func (m *Moments) Orientation() float64 {
	if m.n == 0 {
		return 0
	}
	meanR := m.sumR / m.n
	meanC := m.sumC / m.n
	muRR := m.sumRR/m.n - meanR*meanR
	muCC := m.sumCC/m.n - meanC*meanC
	muRC := m.sumRC/m.n - meanR*meanC

	if muRR == muCC {
		if muRC > 0 {
			return -math.Pi / 4
		}
		return math.Pi / 4
	}
	return 0.5 * math.Atan2(2*muRC, muRR-muCC)
}

// Region converts the accumulated moments into a Region.
func (m *Moments) Region() Region {
	return Region{Area: m.Area(), Orientation: m.Orientation()}
}
