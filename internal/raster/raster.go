package raster

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Page is one rendered page. Index is 1-based.
type Page struct {
	Index int
	Image image.Image
}

func (p Page) Width() int  { return p.Image.Bounds().Dx() }
func (p Page) Height() int { return p.Image.Bounds().Dy() }

// Source renders the pages of one opened document.
type Source interface {
	NumPages() int
	// Page renders page i (0-based).
	Page(i int) (Page, error)
	Close() error
}

// Rasterizer opens PDF documents for rendering.
type Rasterizer interface {
	Open(pdf []byte) (Source, error)
}

// Info is what Inspect learns about an upload without rendering it.
type Info struct {
	Pages   int
	HasText bool
}

// Inspect checks that data is a readable PDF and counts its pages. HasText
// reports whether any page carries a text layer.
func Inspect(data []byte) (info Info, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			info, err = Info{}, fmt.Errorf("read pdf: %v", r)
		}
	}()

	reader, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("open pdf: %w", err)
	}
	info = Info{Pages: reader.NumPage()}
	if info.Pages == 0 {
		return info, fmt.Errorf("pdf has no pages")
	}
	for i := 1; i <= info.Pages && !info.HasText; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		info.HasText = strings.TrimSpace(text) != ""
	}
	return info, nil
}
