package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/notenscan/internal/deskew"
	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/raster"
	"github.com/dgallion1/notenscan/internal/taskdb"
)

// Imager measures, straightens and encodes rendered pages.
type Imager interface {
	deskew.Shapes
	RotatePage(img image.Image, angle float64) (image.Image, error)
	EncodePNG(img image.Image) ([]byte, error)
}

// Worker renders, deskews and stores the pages of a single task.
type Worker struct {
	raster raster.Rasterizer
	imager Imager
	pages  *pagestore.Store
	tasks  taskdb.Store
	log    *slog.Logger

	pageConcurrency int
	debugImages     bool
}

func NewWorker(r raster.Rasterizer, im Imager, pages *pagestore.Store, tasks taskdb.Store, log *slog.Logger, pageConcurrency int, debugImages bool) *Worker {
	if pageConcurrency <= 0 {
		pageConcurrency = 1
	}
	return &Worker{
		raster:          r,
		imager:          im,
		pages:           pages,
		tasks:           tasks,
		log:             log,
		pageConcurrency: pageConcurrency,
		debugImages:     debugImages,
	}
}

// Process runs the page pipeline for a job and records the outcome on the
// task row. Errors never escape; they end up in the task's error message.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("task_id", job.ID, "filename", job.Filename)

	defer func() {
		if r := recover(); r != nil {
			log.Error("page pipeline panicked", "panic", r)
			w.fail(ctx, job, fmt.Sprintf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-job.Cancelled():
			cancel()
		case <-ctx.Done():
		}
	}()

	if w.deleted(ctx, job) {
		w.discard(job, log)
		return
	}

	job.SetStatus(StatusProcessing)
	data := job.FileData()

	if info, err := raster.Inspect(data); err != nil {
		log.Warn("pdf inspection failed", "error", err)
	} else {
		log.Info("pdf inspected", "pages", info.Pages, "has_text", info.HasText)
	}

	n, err := w.renderPages(ctx, job, data, log)
	// Every page goroutine has returned here, so nothing writes after the
	// cleanup of a deleted task.
	if w.deleted(ctx, job) {
		w.discard(job, log)
		return
	}
	if err != nil {
		log.Error("page pipeline failed", "error", err)
		w.fail(ctx, job, err.Error())
		return
	}

	if err := w.tasks.UpdateStatus(context.WithoutCancel(ctx), job.ID, taskdb.StatusDone, taskdb.Int(n), nil); err != nil {
		log.Error("failed to mark task done", "error", err)
		job.Fail(fmt.Sprintf("update task: %s", err))
		return
	}
	job.Finish()

	snap := job.Snapshot()
	log.Info("pages stored", "pages", n, "rotated", snap.Progress.PagesRotated)
}

// renderPages renders sequentially and hands each page to a bounded group of
// goroutines for deskewing and storage. It returns the page count.
func (w *Worker) renderPages(ctx context.Context, job *Job, data []byte, log *slog.Logger) (int, error) {
	src, err := w.raster.Open(data)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer src.Close()

	n := src.NumPages()
	job.SetTotalPages(n)
	log.Info("rendering pages", "pages", n)

	if err := os.MkdirAll(w.pages.PagesDir(job.ID), 0o755); err != nil {
		return 0, fmt.Errorf("create pages dir: %w", err)
	}
	if w.debugImages {
		if err := os.MkdirAll(w.pages.DebugDir(job.ID), 0o755); err != nil {
			return 0, fmt.Errorf("create debug dir: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.pageConcurrency)

	var renderErr error
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		page, err := src.Page(i)
		if err != nil {
			renderErr = fmt.Errorf("render page %d: %w", i+1, err)
			break
		}
		g.Go(func() error {
			return w.processPage(gctx, job, page, log)
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}
	if renderErr != nil {
		return 0, renderErr
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func (w *Worker) processPage(ctx context.Context, job *Job, page raster.Page, log *slog.Logger) (err error) {
	// Page goroutines run outside the worker's recover.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: panic: %v", page.Index, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	log = log.With("page", page.Index)

	res, err := deskew.Analyze(w.imager, page.Image, log)
	if err != nil {
		return fmt.Errorf("deskew page %d: %w", page.Index, err)
	}

	img := page.Image
	if w.debugImages {
		w.writeDebug(job.ID, page.Index, "original", img, log)
	}
	if res.Rotated() {
		img, err = w.imager.RotatePage(img, res.Applied)
		if err != nil {
			return fmt.Errorf("rotate page %d: %w", page.Index, err)
		}
		if w.debugImages {
			w.writeDebug(job.ID, page.Index, "rotated", img, log)
		}
	}

	png, err := w.imager.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode page %d: %w", page.Index, err)
	}
	if err := pagestore.WriteFileAtomic(w.pages.PagePath(job.ID, page.Index), png); err != nil {
		return fmt.Errorf("store page %d: %w", page.Index, err)
	}

	job.PageDone(res.Rotated())
	log.Debug("page stored", "angle", res.Applied, "policy", res.Policy)
	return nil
}

// writeDebug stores a diagnostic copy of a page. Failures are only logged.
func (w *Worker) writeDebug(task string, n int, stage string, img image.Image, log *slog.Logger) {
	png, err := w.imager.EncodePNG(img)
	if err == nil {
		name := fmt.Sprintf("page_%05d_%s.png", n, stage)
		err = pagestore.WriteFileAtomic(filepath.Join(w.pages.DebugDir(task), name), png)
	}
	if err != nil {
		log.Warn("debug image not written", "stage", stage, "error", err)
	}
}

// deleted reports whether the job was cancelled or its task row is gone.
func (w *Worker) deleted(ctx context.Context, job *Job) bool {
	if job.isCancelled() {
		return true
	}
	_, err := w.tasks.Get(context.WithoutCancel(ctx), job.ID)
	return errors.Is(err, taskdb.ErrNotFound)
}

// discard removes whatever the job stored for a deleted task.
func (w *Worker) discard(job *Job, log *slog.Logger) {
	job.Fail("task deleted")
	if err := w.pages.RemoveTask(job.ID); err != nil {
		log.Error("failed to remove files of deleted task", "error", err)
		return
	}
	log.Info("task deleted during processing, files removed")
}

func (w *Worker) fail(ctx context.Context, job *Job, msg string) {
	job.Fail(msg)
	err := w.tasks.UpdateStatus(context.WithoutCancel(ctx), job.ID, taskdb.StatusError, nil, taskdb.String(msg))
	if err != nil && !errors.Is(err, taskdb.ErrNotFound) {
		w.log.Error("failed to record task error", "task_id", job.ID, "error", err)
	}
}
