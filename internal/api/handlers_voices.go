package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/notenscan/internal/export"
	"github.com/dgallion1/notenscan/internal/voices"
)

type detectVoicesRequest struct {
	TaskID   string     `json:"task_id"`
	TitleBox voices.Box `json:"title_box"`
	VoiceBox voices.Box `json:"voice_box"`
}

type detectedVoice struct {
	Page     int    `json:"page"`
	Title    string `json:"title"`
	Voice    string `json:"voice"`
	NumPages int    `json:"num_pages"`
}

// handleDetectVoices reads the title and voice regions of every stored page
// and reports the pages where a voice starts, with the length of each part.
func (s *Server) handleDetectVoices(w http.ResponseWriter, r *http.Request) {
	var req detectVoicesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if _, ok := s.task(w, r, req.TaskID); !ok {
		return
	}
	paths, err := s.Pages.PagePaths(req.TaskID)
	if err != nil {
		jsonError(w, "failed to list pages: "+err.Error(), http.StatusInternalServerError)
		return
	}

	found := make([]detectedVoice, len(paths))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(max(1, s.cfg.PageConcurrency))
	for i, path := range paths {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("page %d: panic: %v", i+1, p)
				}
			}()
			img, err := s.OpenPage(path)
			if err != nil {
				return fmt.Errorf("open page %d: %w", i+1, err)
			}
			defer img.Close()

			title, err := s.recognise(ctx, img, voices.TitleRegion(req.TitleBox, img.Bounds()))
			if err != nil {
				return fmt.Errorf("page %d title: %w", i+1, err)
			}
			voice, err := s.recognise(ctx, img, voices.VoiceRegion(req.VoiceBox, img.Bounds()))
			if err != nil {
				return fmt.Errorf("page %d voice: %w", i+1, err)
			}
			found[i] = detectedVoice{Page: i + 1, Title: strings.TrimSpace(title), Voice: strings.TrimSpace(voice)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Error("voice detection failed", "task_id", req.TaskID, "error", err)
		jsonError(w, "voice detection failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	entries := make([]voices.Entry, len(found))
	for i, v := range found {
		entries[i] = voices.Entry{Page: v.Page, Voice: v.Voice}
	}
	lengths := make(map[int]int)
	for _, rg := range voices.Segment(voices.MarkersFromEntries(entries), len(paths), nil) {
		lengths[rg.Start] = rg.PageCount()
	}

	result := []detectedVoice{}
	for i, v := range found {
		if v.Voice == "" {
			continue
		}
		v.NumPages = lengths[i]
		result = append(result, v)
	}
	s.log.Info("voices detected", "task_id", req.TaskID, "pages", len(paths), "voices", len(result))
	writeJSON(w, http.StatusOK, map[string]any{"voices": result})
}

type splitRequest struct {
	TaskID string         `json:"task_id"`
	Voices []voices.Entry `json:"voices"`
	voices.Piece
	StartPage *int `json:"start_page"`
	EndPage   *int `json:"end_page"`
}

func (s *Server) split(w http.ResponseWriter, r *http.Request, writeIndex bool) (export.Result, string, bool) {
	var req splitRequest
	if !decodeJSON(w, r, &req) {
		return export.Result{}, "", false
	}
	if _, ok := s.task(w, r, req.TaskID); !ok {
		return export.Result{}, "", false
	}
	res, err := s.Exporter.Split(r.Context(), export.Request{
		Task:       req.TaskID,
		Piece:      req.Piece,
		Entries:    req.Voices,
		Override:   voices.OverrideFromPages(req.StartPage, req.EndPage),
		WriteIndex: writeIndex,
	})
	if err != nil {
		s.log.Error("voice export failed", "task_id", req.TaskID, "error", err)
		jsonError(w, "export failed: "+err.Error(), http.StatusInternalServerError)
		return export.Result{}, "", false
	}
	return res, req.Title, true
}

// handleSplit writes one PDF per voice into the export directory.
func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	res, _, ok := s.split(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "success",
		"pdf_files":  res.Files,
		"export_dir": res.Dir,
	})
}

// handleSplitZip exports like handleSplit, always with the index, and
// bundles the result into one archive.
func (s *Server) handleSplitZip(w http.ResponseWriter, r *http.Request) {
	res, title, ok := s.split(w, r, true)
	if !ok {
		return
	}
	name := voices.ZipName(title)
	if _, err := s.Exporter.Bundle(res, name); err != nil {
		s.log.Error("zip export failed", "error", err)
		jsonError(w, "failed to create zip: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"zip_url": "/static/voices_export/" + url.PathEscape(name),
	})
}
