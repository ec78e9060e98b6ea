package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-knxtest/internal/device"
)

// handleListDevices returns every simulated device with bindings and state.
// Supports ?type=shutter filtering.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typeFilter := r.URL.Query().Get("type")

	devices := s.registry.List()
	infos := make([]device.Info, 0, len(devices))
	for _, d := range devices {
		if typeFilter != "" && string(d.Type()) != typeFilter {
			continue
		}
		infos = append(infos, device.Describe(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": infos,
		"count":   len(infos),
	})
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.registry.Get(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			fail(w, http.StatusNotFound, "device not found")
			return
		}
		fail(w, http.StatusInternalServerError, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, device.Describe(d))
}
