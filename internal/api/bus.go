package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// busSource tags telegrams written through the API.
const busSource = "api"

// boundFunction names a device function bound to a group address.
type boundFunction struct {
	Device   string  `json:"device"`
	Function string  `json:"function"`
	DPT      knx.DPT `json:"dpt"`
}

type busValueResponse struct {
	GA       string          `json:"ga"`
	Bindings []boundFunction `json:"bindings,omitempty"`
	Value    *valueView      `json:"value,omitempty"`
}

// bindingsFor returns every device function bound to ga, sorted by device.
func (s *Server) bindingsFor(ga knx.GroupAddress) []boundFunction {
	var out []boundFunction
	for _, d := range s.registry.List() {
		for _, b := range d.Bindings() {
			if b.GA == ga {
				out = append(out, boundFunction{Device: d.ID(), Function: b.Function, DPT: b.DPT})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].Function < out[j].Function
	})
	return out
}

func (s *Server) busValue(r *http.Request, ga knx.GroupAddress) (busValueResponse, error) {
	resp := busValueResponse{GA: ga.String(), Bindings: s.bindingsFor(ga)}
	data, err := s.bus.Read(r.Context(), ga)
	if err != nil {
		return resp, err
	}
	v := knx.NewValue(data)
	view := newValueView(v)
	view.Typed = s.typedFor(ga, v)
	resp.Value = &view
	return resp, nil
}

// handleListBus returns the current value of every bound group address.
func (s *Server) handleListBus(w http.ResponseWriter, r *http.Request) {
	seen := make(map[knx.GroupAddress]struct{})
	var addresses []knx.GroupAddress
	for _, d := range s.registry.List() {
		for _, b := range d.Bindings() {
			if _, ok := seen[b.GA]; !ok {
				seen[b.GA] = struct{}{}
				addresses = append(addresses, b.GA)
			}
		}
	}
	sort.Slice(addresses, func(i, j int) bool { return addresses[i].ToUint16() < addresses[j].ToUint16() })

	values := make([]busValueResponse, 0, len(addresses))
	for _, ga := range addresses {
		resp, err := s.busValue(r, ga)
		if err != nil && !errors.Is(err, bus.ErrNoValue) {
			fail(w, http.StatusInternalServerError, "failed to read bus")
			return
		}
		values = append(values, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"addresses": values,
		"count":     len(values),
	})
}

// parseGAParam reads the {ga} route parameter, URL-encoded or plain.
func parseGAParam(r *http.Request) (knx.GroupAddress, error) {
	return knx.ParseGroupAddressFromURL(chi.URLParam(r, "ga"))
}

// handleReadBus returns the last value of one group address.
func (s *Server) handleReadBus(w http.ResponseWriter, r *http.Request) {
	ga, err := parseGAParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.busValue(r, ga)
	if err != nil {
		if errors.Is(err, bus.ErrNoValue) {
			failCode(w, http.StatusNotFound, ErrCodeNoValue, "no value on "+ga.String())
			return
		}
		fail(w, http.StatusInternalServerError, "failed to read bus")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleWriteBus writes a value to one group address. Without an explicit
// DPT the value is encoded with the DPT of the first device function bound
// to the address.
func (s *Server) handleWriteBus(w http.ResponseWriter, r *http.Request) {
	ga, err := parseGAParam(r)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	var req encodeValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	bindings := s.bindingsFor(ga)
	var defaultDPT knx.DPT
	if len(bindings) > 0 {
		defaultDPT = bindings[0].DPT
	}

	v, err := req.encode(defaultDPT)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := bus.WithSource(r.Context(), busSource)
	if err := s.bus.Write(ctx, ga, v.Raw()); err != nil {
		s.logger.Error("bus write failed", "ga", ga.String(), "error", err)
		fail(w, http.StatusInternalServerError, "failed to write bus")
		return
	}
	s.logger.Info("bus write", "ga", ga.String(), "value", v.String())

	view := newValueView(v)
	view.Typed = s.typedFor(ga, v)
	writeJSON(w, http.StatusOK, busValueResponse{GA: ga.String(), Bindings: bindings, Value: &view})
}
