package api

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"os"
	"strconv"

	"github.com/dgallion1/notenscan/internal/layout"
	"github.com/dgallion1/notenscan/internal/pagestore"
	"github.com/dgallion1/notenscan/internal/template"
	"github.com/dgallion1/notenscan/internal/voices"
)

func (s *Server) clusterOptions() layout.Options {
	return layout.Options{
		CutoffFraction: s.cfg.OCRCutoffFraction,
		MinConfidence:  float64(s.cfg.OCRMinConfidence),
		BaseGap:        float64(s.cfg.OCRBaseGap),
	}
}

// handleGetTemplate returns the stored title-page template. With
// trigger_ocr the page is recognised again and the boxes and suggestions
// are replaced; labels survive.
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	task := q.Get("task_id")
	page, err := strconv.Atoi(q.Get("page"))
	if task == "" || err != nil {
		jsonError(w, "task_id and page are required", http.StatusBadRequest)
		return
	}
	trigger := false
	if v := q.Get("trigger_ocr"); v != "" {
		if trigger, err = strconv.ParseBool(v); err != nil {
			jsonError(w, "invalid trigger_ocr: "+v, http.StatusBadRequest)
			return
		}
	}

	if !trigger {
		s.storedTemplate(w, task, page)
		return
	}

	path, ok := s.pagePath(w, task, page)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		jsonError(w, "failed to read page image: "+err.Error(), http.StatusInternalServerError)
		return
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		jsonError(w, "failed to decode page image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	tokens, err := s.OCR.Words(r.Context(), data)
	if err != nil {
		s.log.Error("page ocr failed", "task_id", task, "page", page, "error", err)
		jsonError(w, "ocr failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	blocks := layout.Cluster(tokens, cfg.Height, s.clusterOptions())
	suggestions := layout.Suggest(blocks, float64(cfg.Width))

	tpl, err := s.Templates.Update(task, func(t *template.Template, _ bool) error {
		t.Boxes = blocks
		t.Suggestions = suggestions
		return nil
	})
	if err != nil {
		jsonError(w, "failed to save template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Debug("title page recognised", "task_id", task, "page", page, "words", len(tokens), "boxes", len(blocks))
	writeJSON(w, http.StatusOK, tpl)
}

func (s *Server) storedTemplate(w http.ResponseWriter, task string, page int) {
	if !pagestore.ValidTaskID(task) {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	tpl, found, err := s.Templates.Load(task)
	if err != nil {
		jsonError(w, "failed to load template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if found {
		writeJSON(w, http.StatusOK, tpl)
		return
	}
	if _, ok := s.pagePath(w, task, page); !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "No stored boxes",
		"boxes":       []layout.Block{},
		"suggestions": layout.Suggestions{},
		"labels":      map[string]any{},
	})
}

type saveBoxesRequest struct {
	TaskID      string             `json:"task_id"`
	Boxes       []layout.Block     `json:"boxes"`
	Suggestions layout.Suggestions `json:"suggestions"`
	Labels      map[string]any     `json:"labels"`
}

// handleSaveBoxes replaces the template with the user's edits.
func (s *Server) handleSaveBoxes(w http.ResponseWriter, r *http.Request) {
	var req saveBoxesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.task(w, r, req.TaskID); !ok {
		return
	}
	err := s.Templates.Save(req.TaskID, template.Template{
		Boxes:       req.Boxes,
		Suggestions: req.Suggestions,
		Labels:      req.Labels,
	})
	if err != nil {
		jsonError(w, "failed to save template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type extractTextRequest struct {
	TaskID string       `json:"task_id"`
	Page   int          `json:"page"`
	Boxes  []voices.Box `json:"boxes"`
}

// handleExtractText reads the text inside each given rectangle. Stored boxes
// with the same integer rectangle take the new text and the suggestions
// are recomputed.
func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	var req extractTextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	img, _, ok := s.openPage(w, req.TaskID, req.Page)
	if !ok {
		return
	}
	defer img.Close()

	results := make([]layout.Block, 0, len(req.Boxes))
	for _, b := range req.Boxes {
		rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
		text, err := s.recognise(r.Context(), img, rect)
		if err != nil {
			s.log.Error("field ocr failed", "task_id", req.TaskID, "page", req.Page, "rect", rect.String(), "error", err)
			jsonError(w, "text recognition failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		results = append(results, layout.Block{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height, Text: text})
	}

	width := float64(img.Bounds().Dx())
	tpl, err := s.Templates.Update(req.TaskID, func(t *template.Template, _ bool) error {
		for i := range t.Boxes {
			for _, res := range results {
				if t.Boxes[i].SameBox(res) {
					t.Boxes[i].Text = res.Text
				}
			}
		}
		t.Suggestions = layout.Suggest(t.Boxes, width)
		return nil
	})
	if err != nil {
		jsonError(w, "failed to save template: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"boxes": results, "suggestions": tpl.Suggestions})
}

type regionRequest struct {
	TaskID string     `json:"task_id"`
	Page   int        `json:"page"`
	Box    voices.Box `json:"box"`
}

// handleRegion recognises the words inside one rectangle and clusters them
// with the tighter gap used for cropped regions. Block coordinates are
// relative to the page.
func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	var req regionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	img, _, ok := s.openPage(w, req.TaskID, req.Page)
	if !ok {
		return
	}
	defer img.Close()

	b := req.Box
	rect := image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height)).Intersect(img.Bounds())
	if rect.Empty() {
		jsonError(w, "box lies outside the page", http.StatusBadRequest)
		return
	}
	crop, err := img.CropPNG(rect)
	if err != nil {
		jsonError(w, "failed to crop page: "+err.Error(), http.StatusInternalServerError)
		return
	}
	tokens, err := s.OCR.Words(r.Context(), crop)
	if err != nil {
		jsonError(w, "ocr failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	opts := layout.FocusedOptions()
	opts.MinConfidence = float64(s.cfg.OCRMinConfidence)
	blocks := layout.Cluster(tokens, rect.Dy(), opts)
	for i := range blocks {
		blocks[i].X += float64(rect.Min.X)
		blocks[i].Y += float64(rect.Min.Y)
	}
	if blocks == nil {
		blocks = []layout.Block{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"boxes": blocks})
}

// recognise reads the text inside rect. An empty crop reads as "".
func (s *Server) recognise(ctx context.Context, img PageImage, rect image.Rectangle) (string, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return "", nil
	}
	crop, err := img.CropPNG(rect)
	if err != nil {
		return "", err
	}
	return s.OCR.Text(ctx, crop)
}
