package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/pipeline"
	"github.com/dgallion1/notenscan/internal/taskdb"
	"github.com/go-chi/chi/v5"
)

var pdfMagic = []byte("%PDF-")

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		jsonError(w, "file is not a PDF", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	id := pipeline.NewTaskID()
	log := s.log.With("task_id", id)

	if _, err := s.Tasks.Create(ctx, id, filename); err != nil {
		log.Error("failed to create task", "error", err)
		jsonError(w, "failed to create task", http.StatusInternalServerError)
		return
	}
	if err := s.Pages.SaveOriginal(id, data); err != nil {
		log.Error("failed to store upload", "error", err)
		msg := err.Error()
		_ = s.Tasks.UpdateStatus(ctx, id, taskdb.StatusError, nil, &msg)
		jsonError(w, "failed to store upload", http.StatusInternalServerError)
		return
	}
	if err := s.Tasks.UpdateStatus(ctx, id, taskdb.StatusProcessing, nil, nil); err != nil {
		log.Error("failed to update task", "error", err)
		jsonError(w, "failed to update task", http.StatusInternalServerError)
		return
	}

	if err := s.Orchestrator.Submit(ctx, pipeline.NewJob(id, filename, data)); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	log.Info("upload accepted", "filename", filename, "bytes", len(data))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":      id,
		"task_id": id,
		"status":  taskdb.StatusProcessing,
	})
}

// task loads the task named in the URL, answering 404 for unknown ids.
func (s *Server) task(w http.ResponseWriter, r *http.Request, id string) (taskdb.Task, bool) {
	if !pagestore.ValidTaskID(id) {
		jsonError(w, "task not found", http.StatusNotFound)
		return taskdb.Task{}, false
	}
	t, err := s.Tasks.Get(r.Context(), id)
	if errors.Is(err, taskdb.ErrNotFound) {
		jsonError(w, "task not found", http.StatusNotFound)
		return taskdb.Task{}, false
	}
	if err != nil {
		jsonError(w, "failed to load task: "+err.Error(), http.StatusInternalServerError)
		return taskdb.Task{}, false
	}
	return t, true
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, ok := s.task(w, r, chi.URLParam(r, "taskID"))
	if !ok {
		return
	}
	resp := map[string]any{
		"status":        t.Status,
		"num_pages":     t.NumPages,
		"error_message": t.ErrorMessage,
	}
	if job := s.Orchestrator.GetJob(t.ID); job != nil {
		resp["progress"] = job.Snapshot().Progress
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTaskPages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if !pagestore.ValidTaskID(id) {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	urls, err := s.Pages.PageURLs(s.cfg.PublicURL, id)
	if err != nil {
		jsonError(w, "failed to list pages: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": urls})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Tasks.List(r.Context())
	if err != nil {
		jsonError(w, "failed to list tasks: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []taskdb.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, ok := s.task(w, r, chi.URLParam(r, "taskID"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleDeleteTask removes the task row first, then everything stored on
// disk. A failed directory removal is logged but does not fail the request.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if !pagestore.ValidTaskID(id) {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	err := s.Tasks.Delete(r.Context(), id)
	if errors.Is(err, taskdb.ErrNotFound) {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete task: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.Orchestrator.Forget(id)
	s.Templates.Forget(id)
	if err := s.Pages.RemoveTask(id); err != nil {
		s.log.Error("failed to remove task files", "task_id", id, "error", err)
	}
	s.log.Info("task deleted", "task_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Task deleted"})
}

type deskewRequest struct {
	TaskID string  `json:"task_id"`
	Page   int     `json:"page"`
	Angle  float64 `json:"angle"`
}

// handleDeskew rotates one stored page by the negated angle, replacing the
// page file.
func (s *Server) handleDeskew(w http.ResponseWriter, r *http.Request) {
	var req deskewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.task(w, r, req.TaskID); !ok {
		return
	}
	img, path, ok := s.openPage(w, req.TaskID, req.Page)
	if !ok {
		return
	}
	defer img.Close()

	png, err := img.Rotated(-req.Angle)
	if err != nil {
		jsonError(w, "failed to rotate page: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := pagestore.WriteFileAtomic(path, png); err != nil {
		jsonError(w, "failed to store page: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("page rotated", "task_id", req.TaskID, "page", req.Page, "angle", req.Angle)
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "angle": req.Angle})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed.pdf"
	}
	return name
}
