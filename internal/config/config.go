package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Storage layout
	StaticDir       string
	VoicesExportDir string
	PublicURL       string
	DatabaseURL     string

	// OCR
	OCRLanguage    string
	TessdataPrefix string

	// Word clustering
	OCRCutoffFraction float64
	OCRMinConfidence  int
	OCRBaseGap        int

	// Rasterization
	RasterDPI float64

	// Worker pool
	WorkerCount     int
	PageConcurrency int
	MaxQueueSize    int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// Diagnostics
	Debug           bool
	DebugPageImages bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	staticDir := envOr("STATIC_DIR", filepath.Join(".", "static"))

	cfg := Config{
		Port: envOr("PORT", "8000"),

		APIKey: os.Getenv("NOTENSCAN_API_KEY"),

		StaticDir:       staticDir,
		VoicesExportDir: envOr("VOICES_EXPORT_DIR", filepath.Join(staticDir, "voices_export")),
		PublicURL:       strings.TrimRight(os.Getenv("SERVER_URL"), "/"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),

		OCRLanguage:    envOr("OCR_LANGUAGE", "deu"),
		TessdataPrefix: os.Getenv("TESSDATA_PREFIX"),

		OCRCutoffFraction: envFloat("OCR_CUTOFF_FRACTION", 0.25),
		OCRMinConfidence:  envInt("OCR_MIN_CONFIDENCE", 70),
		OCRBaseGap:        envInt("OCR_BASE_GAP", 40),

		RasterDPI: envFloat("RASTER_DPI", 200),

		WorkerCount:     envInt("WORKER_COUNT", 2),
		PageConcurrency: envInt("PAGE_CONCURRENCY", runtime.NumCPU()),
		MaxQueueSize:    envInt("MAX_QUEUE_SIZE", 50),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL: envDuration("JOB_TTL", 24*time.Hour),

		Debug:           envBool("DEBUG", false),
		DebugPageImages: envBool("DEBUG_PROCESS_PDF_IMAGE", false),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = runtime.NumCPU()
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 50
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.OCRCutoffFraction <= 0 || cfg.OCRCutoffFraction > 1 {
		cfg.OCRCutoffFraction = 0.25
	}
	if cfg.OCRBaseGap <= 0 {
		cfg.OCRBaseGap = 40
	}
	if cfg.RasterDPI <= 0 {
		cfg.RasterDPI = 200
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 24 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("NOTENSCAN_API_KEY is required")
	}
	if c.StaticDir == "" {
		return fmt.Errorf("STATIC_DIR must not be empty")
	}
	if c.OCRMinConfidence < 0 || c.OCRMinConfidence > 100 {
		return fmt.Errorf("OCR_MIN_CONFIDENCE must be between 0 and 100, got %d", c.OCRMinConfidence)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envBool accepts the usual strconv spellings plus "yes" and "ja".
func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "yes", "ja":
		return true
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
