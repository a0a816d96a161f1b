package export

import (
	"fmt"
	"io"
	"os"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Assembler combines page images into one PDF written to w.
type Assembler interface {
	Assemble(pages []string, w io.Writer) error
}

// PDFCPU assembles with pdfcpu, one page per image at its natural size.
type PDFCPU struct{}

func (PDFCPU) Assemble(pages []string, w io.Writer) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages to assemble")
	}
	readers := make([]io.Reader, 0, len(pages))
	for _, p := range pages {
		f, err := os.Open(p)
		if err != nil {
			closeAll(readers)
			return fmt.Errorf("open page: %w", err)
		}
		readers = append(readers, f)
	}
	defer closeAll(readers)

	imp := pdfcpu.DefaultImportConfig()
	imp.Scale = 1
	imp.Pos = types.Center
	if err := pdfapi.ImportImages(nil, w, readers, imp, nil); err != nil {
		return fmt.Errorf("import images: %w", err)
	}
	return nil
}

func closeAll(rs []io.Reader) {
	for _, r := range rs {
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
	}
}
