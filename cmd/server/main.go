package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/notenscan/internal/api"
	"github.com/dgallion1/notenscan/internal/config"
	"github.com/dgallion1/notenscan/internal/export"
	"github.com/dgallion1/notenscan/internal/ocr"
	"github.com/dgallion1/notenscan/internal/ocr/tesseract"
	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/pipeline"
	"github.com/dgallion1/notenscan/internal/raster/mupdf"
	"github.com/dgallion1/notenscan/internal/taskdb"
	"github.com/dgallion1/notenscan/internal/template"
	"github.com/dgallion1/notenscan/internal/vision"
)

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Task records.
	var tasks taskdb.Store
	if cfg.DatabaseURL != "" {
		db, err := taskdb.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := taskdb.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("failed to create schema", "error", err)
			os.Exit(1)
		}
		tasks = pg
	} else {
		log.Warn("DATABASE_URL not set, task records are kept in memory")
		tasks = taskdb.NewMemory()
	}

	pages := pagestore.New(cfg.StaticDir)
	templates := template.NewStore(pages)
	stats := ocr.NewStats(time.Hour)
	engine := tesseract.New(cfg.OCRLanguage, cfg.TessdataPrefix, stats)

	// Initialize pipeline.
	worker := pipeline.NewWorker(mupdf.New(cfg.RasterDPI), vision.OpenCV{}, pages, tasks, log, cfg.PageConcurrency, cfg.DebugPageImages)
	orch := pipeline.NewOrchestrator(cfg, worker, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Tasks:        tasks,
		Pages:        pages,
		Templates:    templates,
		Exporter:     export.New(pages, export.PDFCPU{}, cfg.VoicesExportDir, log),
		OCR:          engine,
		OCRStats:     stats,
		OpenPage:     openPicture,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 300 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		// Drain requests first; an upload still in flight may submit a job.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
	}()

	log.Info("starting notenscan", "port", cfg.Port, "static_dir", cfg.StaticDir, "ocr_language", cfg.OCRLanguage)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
}

// openPicture returns a nil interface on error, never a typed nil.
func openPicture(path string) (api.PageImage, error) {
	p, err := vision.Load(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}
