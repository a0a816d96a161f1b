package ocr

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// Token is one recognised word with its box in page pixels.
type Token struct {
	Text       string  `json:"text"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"` // 0..100, or -1 when unknown
	Block      int     `json:"block_id"`
	Paragraph  int     `json:"paragraph_id"`
	Line       int     `json:"line_id"`
}

// Engine recognises text in encoded page images.
type Engine interface {
	// Words returns every word on the image with its layout ids.
	Words(ctx context.Context, img []byte) ([]Token, error)
	// Text returns the plain text of the image treated as a single block.
	Text(ctx context.Context, img []byte) (string, error)
}

// NormalizeConfidence maps anything outside 0..100 to -1.
func NormalizeConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 || c > 100 {
		return -1
	}
	return c
}

// ParseConfidence reads a textual confidence value. Unparseable input is -1.
func ParseConfidence(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return -1
	}
	return NormalizeConfidence(f)
}

// Blank reports whether the token carries no visible text.
func (t Token) Blank() bool {
	return strings.TrimSpace(t.Text) == ""
}
