package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// runRequest is the body of POST /runs. An empty body runs every case.
type runRequest struct {
	Cases []string `json:"cases,omitempty"`
}

// handleRun executes the suite and returns its report. Only one run may
// be in progress; concurrent requests get 409.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		fail(w, http.StatusServiceUnavailable, "suite runs are not enabled")
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !s.runMu.TryLock() {
		fail(w, http.StatusConflict, "a run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	report, err := s.runner(r.Context(), req.Cases)
	if err != nil {
		s.logger.Error("suite run failed", "error", err)
		fail(w, http.StatusInternalServerError, "suite run failed")
		return
	}

	s.lastRun.Store(report)
	s.hub.Broadcast(ChannelRunFinished, report)
	writeJSON(w, http.StatusOK, report)
}
