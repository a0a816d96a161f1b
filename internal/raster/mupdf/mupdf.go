// Package mupdf renders PDF pages with MuPDF through go-fitz.
package mupdf

import (
	"fmt"

	"github.com/gen2brain/go-fitz"

	"github.com/dgallion1/notenscan/internal/raster"
)

// Rasterizer implements raster.Rasterizer.
type Rasterizer struct {
	DPI float64
}

var _ raster.Rasterizer = Rasterizer{}

func New(dpi float64) Rasterizer {
	if dpi <= 0 {
		dpi = 200
	}
	return Rasterizer{DPI: dpi}
}

func (r Rasterizer) Open(pdf []byte) (raster.Source, error) {
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &source{doc: doc, dpi: r.DPI}, nil
}

// source renders one page at a time; fitz holds a lock per document.
type source struct {
	doc *fitz.Document
	dpi float64
}

func (s *source) NumPages() int { return s.doc.NumPage() }

func (s *source) Page(i int) (raster.Page, error) {
	img, err := s.doc.ImageDPI(i, s.dpi)
	if err != nil {
		return raster.Page{}, fmt.Errorf("render page %d: %w", i+1, err)
	}
	return raster.Page{Index: i + 1, Image: img}, nil
}

func (s *source) Close() error { return s.doc.Close() }
