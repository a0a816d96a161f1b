package api

import (
	"errors"
	"image"
	"net/http"

	"github.com/dgallion1/notenscan/internal/pagestore"
)

// PageImage is a stored page opened for cropping or rotation.
type PageImage interface {
	Bounds() image.Rectangle
	CropPNG(r image.Rectangle) ([]byte, error)
	// Rotated turns the page counter-clockwise on a white, expanded canvas.
	Rotated(angle float64) ([]byte, error)
	Close() error
}

// PageOpener opens the page image at path.
type PageOpener func(path string) (PageImage, error)

// openPage resolves page n of task and opens it. It writes the error
// response itself and reports whether the caller may continue.
func (s *Server) openPage(w http.ResponseWriter, task string, n int) (PageImage, string, bool) {
	path, ok := s.pagePath(w, task, n)
	if !ok {
		return nil, "", false
	}
	img, err := s.OpenPage(path)
	if err != nil {
		s.log.Error("failed to open page image", "task_id", task, "page", n, "error", err)
		jsonError(w, "failed to open page image", http.StatusInternalServerError)
		return nil, "", false
	}
	return img, path, true
}

// pagePath resolves page n of task, answering 404 when it is not stored.
func (s *Server) pagePath(w http.ResponseWriter, task string, n int) (string, bool) {
	if !pagestore.ValidTaskID(task) {
		jsonError(w, "task not found", http.StatusNotFound)
		return "", false
	}
	path, err := s.Pages.ExistingPage(task, n)
	if errors.Is(err, pagestore.ErrNotFound) {
		jsonError(w, "page image not found", http.StatusNotFound)
		return "", false
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return "", false
	}
	return path, true
}
