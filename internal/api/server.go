package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"

	"github.com/dgallion1/notenscan/internal/config"
	"github.com/dgallion1/notenscan/internal/export"
	"github.com/dgallion1/notenscan/internal/ocr"
	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/pipeline"
	"github.com/dgallion1/notenscan/internal/taskdb"
	"github.com/dgallion1/notenscan/internal/template"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps are the services the handlers work on.
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Tasks        taskdb.Store
	Pages        *pagestore.Store
	Templates    *template.Store
	Exporter     *export.Exporter
	OCR          ocr.Engine
	OCRStats     *ocr.Stats
	OpenPage     PageOpener
}

// Server is the HTTP API server for notenscan.
type Server struct {
	router chi.Router
	Deps
	log *slog.Logger
	cfg config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		Deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/static/voices_export/*", http.StripPrefix("/static/voices_export/", http.FileServer(filesOnly{http.Dir(s.cfg.VoicesExportDir)})))
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(filesOnly{http.Dir(s.cfg.StaticDir)})))

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Route("/api/v1/pdf_tasks", func(r chi.Router) {
			r.Post("/upload", s.handleUpload)
			r.Get("/status/{taskID}", s.handleTaskStatus)
			r.Get("/pages/{taskID}", s.handleTaskPages)
			r.Post("/deskew", s.handleDeskew)
			r.Get("/", s.handleListTasks)
			r.Get("/{taskID}", s.handleGetTask)
			r.Delete("/{taskID}", s.handleDeleteTask)
		})

		r.Route("/api/v1/ocr", func(r chi.Router) {
			r.Get("/", s.handleGetTemplate)
			r.Put("/boxes/", s.handleSaveBoxes)
			r.Post("/extract_text/", s.handleExtractText)
			r.Post("/region/", s.handleRegion)
			r.Post("/voices", s.handleDetectVoices)
			r.Post("/voices/split", s.handleSplit)
			r.Post("/voices/split_zip", s.handleSplitZip)
		})

		r.Get("/api/stats/ocr", s.handleOCRStats)
	})

	s.router = r
}

// filesOnly answers directory requests with not-found; the static mount
// never lists task ids.
type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeJSON reads a JSON request body of at most 1MB into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
