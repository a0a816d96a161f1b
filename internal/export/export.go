package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/voices"
)

// Request describes one split of a task into voices.
type Request struct {
	Task     string
	Piece    voices.Piece
	Entries  []voices.Entry
	Override *voices.Override
	// WriteIndex forces the index; otherwise it is written only for more
	// than one entry.
	WriteIndex bool
}

// Result lists what a split produced.
type Result struct {
	Files     []string       `json:"pdf_files"`
	Ranges    []voices.Range `json:"ranges"`
	IndexPath string         `json:"-"`
	Dir       string         `json:"export_dir"`
}

// Exporter writes one PDF per voice into Dir.
type Exporter struct {
	Pages     *pagestore.Store
	Assembler Assembler
	Dir       string
	Log       *slog.Logger
}

func New(pages *pagestore.Store, asm Assembler, dir string, log *slog.Logger) *Exporter {
	return &Exporter{Pages: pages, Assembler: asm, Dir: dir, Log: log}
}

// Split segments the task's pages by voice and writes the PDFs and, where
// requested, the index. Ranges that select no stored page are skipped.
func (e *Exporter) Split(ctx context.Context, req Request) (Result, error) {
	log := e.Log.With("task_id", req.Task)

	pages, err := e.Pages.PagePaths(req.Task)
	if err != nil {
		return Result{}, err
	}
	ranges := voices.Segment(voices.MarkersFromEntries(req.Entries), len(pages), req.Override)

	res := Result{Ranges: ranges, Dir: e.Dir, Files: []string{}}
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		lo, hi, ok := r.Bounds(len(pages))
		if !ok {
			log.Warn("voice selects no pages", "label", r.Label, "start", r.Start, "end", r.End)
			continue
		}
		name := voices.FileName(req.Piece.Title, r.Label)
		var buf bytes.Buffer
		if err := e.Assembler.Assemble(pages[lo:hi], &buf); err != nil {
			return Result{}, fmt.Errorf("assemble %s: %w", name, err)
		}
		if err := pagestore.WriteFileAtomic(filepath.Join(e.Dir, name), buf.Bytes()); err != nil {
			return Result{}, fmt.Errorf("write %s: %w", name, err)
		}
		res.Files = append(res.Files, name)
		log.Debug("voice exported", "file", name, "pages", hi-lo)
	}

	if req.WriteIndex || len(req.Entries) > 1 {
		doc, err := voices.NewIndex(req.Piece, ranges).MarshalDocument()
		if err != nil {
			return Result{}, err
		}
		res.IndexPath = filepath.Join(e.Dir, voices.IndexFileName)
		if err := pagestore.WriteFileAtomic(res.IndexPath, doc); err != nil {
			return Result{}, fmt.Errorf("write index: %w", err)
		}
	}

	log.Info("voices exported", "files", len(res.Files), "ranges", len(ranges))
	return res, nil
}
