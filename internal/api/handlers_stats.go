package api

import (
	"net/http"
)

func (s *Server) handleOCRStats(w http.ResponseWriter, r *http.Request) {
	if s.OCRStats == nil {
		jsonError(w, "ocr stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"language":    s.cfg.OCRLanguage,
		"queue_depth": s.Orchestrator.QueueDepth(),
		"stats":       s.OCRStats.Snapshot(),
	})
}
