package layout

import (
	"math"
	"slices"
	"strings"

	"github.com/dgallion1/notenscan/internal/ocr"
)

// Options tune Cluster.
type Options struct {
	// CutoffFraction drops words starting below this share of the page height.
	CutoffFraction float64
	// MinConfidence drops words recognised with less confidence.
	MinConfidence float64
	// BaseGap is the smallest horizontal gap in pixels that splits a line.
	BaseGap float64
}

// DefaultOptions suit a whole title page.
func DefaultOptions() Options {
	return Options{CutoffFraction: 0.25, MinConfidence: 70, BaseGap: 40}
}

// FocusedOptions suit a cropped region: words sit closer together and the
// whole crop counts.
func FocusedOptions() Options {
	o := DefaultOptions()
	o.CutoffFraction = 1
	o.BaseGap = 20
	return o
}

const heightTolerance = 0.3

type lineKey struct{ block, par, line int }

// Cluster groups OCR words into text blocks. Words of one OCR line are split
// into separate blocks where the horizontal gap is wide or the word height
// jumps.
func Cluster(tokens []ocr.Token, pageHeight int, opts Options) []Block {
	cutoff := opts.CutoffFraction * float64(pageHeight)

	var order []lineKey
	lines := make(map[lineKey][]ocr.Token)
	for _, t := range tokens {
		if float64(t.Y) > cutoff || t.Confidence < opts.MinConfidence || t.Blank() {
			continue
		}
		k := lineKey{t.Block, t.Paragraph, t.Line}
		if _, seen := lines[k]; !seen {
			order = append(order, k)
		}
		lines[k] = append(lines[k], t)
	}

	var blocks []Block
	for _, k := range order {
		for _, group := range splitLine(lines[k], opts.BaseGap) {
			blocks = append(blocks, merge(group))
		}
	}
	return blocks
}

func splitLine(words []ocr.Token, baseGap float64) [][]ocr.Token {
	slices.SortStableFunc(words, func(a, b ocr.Token) int { return a.X - b.X })

	var widthSum int
	for _, w := range words {
		widthSum += w.Width
	}
	threshold := math.Max(baseGap, 1.5*float64(widthSum)/float64(len(words)))

	var groups [][]ocr.Token
	var current []ocr.Token
	for _, w := range words {
		if len(current) == 0 {
			current = append(current, w)
			continue
		}
		prev := current[len(current)-1]
		gap := float64(w.X - (prev.X + prev.Width))
		if gap > threshold || heightJump(current[0].Height, w.Height) {
			groups = append(groups, current)
			current = []ocr.Token{w}
			continue
		}
		current = append(current, w)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// heightJump reports whether h differs from ref by more than the tolerance.
// A zero reference height only matches another zero height.
func heightJump(ref, h int) bool {
	if ref == 0 {
		return h != 0
	}
	return math.Abs(float64(h-ref))/float64(ref) > heightTolerance
}

func merge(words []ocr.Token) Block {
	texts := make([]string, 0, len(words))
	left, top := words[0].X, words[0].Y
	right, bottom := words[0].X+words[0].Width, words[0].Y+words[0].Height
	for _, w := range words {
		texts = append(texts, strings.TrimSpace(w.Text))
		left = min(left, w.X)
		top = min(top, w.Y)
		right = max(right, w.X+w.Width)
		bottom = max(bottom, w.Y+w.Height)
	}
	return Block{
		X:      float64(left),
		Y:      float64(top),
		Width:  float64(right - left),
		Height: float64(bottom - top),
		Text:   strings.Join(texts, " "),
	}
}
