package tesseract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/notenscan/internal/ocr"
	"github.com/otiai10/gosseract/v2"
)

// Engine implements ocr.Engine with a fresh gosseract client per call;
// a client is not safe for concurrent use.
type Engine struct {
	Language       string
	TessdataPrefix string
	Stats          *ocr.Stats
}

var _ ocr.Engine = (*Engine)(nil)

func New(language, tessdataPrefix string, stats *ocr.Stats) *Engine {
	if language == "" {
		language = "deu"
	}
	return &Engine{Language: language, TessdataPrefix: tessdataPrefix, Stats: stats}
}

func (t *Engine) client(img []byte) (*gosseract.Client, error) {
	c := gosseract.NewClient()
	if t.TessdataPrefix != "" {
		if err := c.SetTessdataPrefix(t.TessdataPrefix); err != nil {
			c.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(strings.Split(t.Language, "+")...); err != nil {
		c.Close()
		return nil, fmt.Errorf("set language: %w", err)
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		c.Close()
		return nil, fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(img); err != nil {
		c.Close()
		return nil, fmt.Errorf("set image: %w", err)
	}
	return c, nil
}

// Words implements ocr.Engine.
func (t *Engine) Words(ctx context.Context, img []byte) ([]ocr.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer t.record(start)

	c, err := t.client(img)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	boxes, err := c.GetBoundingBoxesVerbose()
	if err != nil {
		return nil, fmt.Errorf("recognize words: %w", err)
	}
	tokens := make([]ocr.Token, 0, len(boxes))
	for _, b := range boxes {
		tokens = append(tokens, ocr.Token{
			Text:       b.Word,
			X:          b.Box.Min.X,
			Y:          b.Box.Min.Y,
			Width:      b.Box.Dx(),
			Height:     b.Box.Dy(),
			Confidence: ocr.NormalizeConfidence(b.Confidence),
			Block:      b.BlockNum,
			Paragraph:  b.ParNum,
			Line:       b.LineNum,
		})
	}
	return tokens, nil
}

// Text implements ocr.Engine.
func (t *Engine) Text(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	defer t.record(start)

	c, err := t.client(img)
	if err != nil {
		return "", err
	}
	defer c.Close()

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (t *Engine) record(start time.Time) {
	if t.Stats != nil {
		t.Stats.Record(time.Since(start).Milliseconds())
	}
}
