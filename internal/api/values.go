package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// valueView is the JSON rendering of a knx.Value with every accessor.
type valueView struct {
	Hex     string     `json:"hex"`
	Length  int        `json:"length"`
	Text    string     `json:"text"`
	Bool    bool       `json:"bool"`
	Percent float64    `json:"percent"`
	Byte    byte       `json:"byte"`
	Typed   *typedView `json:"typed,omitempty"`
}

type typedView struct {
	Kind  string `json:"kind"`
	Value any    `json:"value"`
}

func newValueView(v knx.Value) valueView {
	return valueView{
		Hex:     hex.EncodeToString(v.Raw()),
		Length:  v.Len(),
		Text:    v.String(),
		Bool:    v.AsBoolean(),
		Percent: float64(v.AsPercent()),
		Byte:    v.AsByte(),
	}
}

func newTypedView(t knx.Typed) *typedView {
	return &typedView{Kind: t.Kind().String(), Value: t.Any()}
}

// typedFor decodes v for ga through the server's type map. Addresses the
// map cannot resolve are left untyped.
func (s *Server) typedFor(ga knx.GroupAddress, v knx.Value) *typedView {
	t, err := s.typeMap.Decode(ga.String(), v)
	if err != nil {
		return nil
	}
	return newTypedView(t)
}

// telegramView is the JSON rendering of a bus telegram.
type telegramView struct {
	GA        string    `json:"ga"`
	Source    string    `json:"source,omitempty"`
	Timestamp string    `json:"timestamp"`
	Value     valueView `json:"value"`
}

func (s *Server) telegramView(t bus.Telegram) telegramView {
	v := t.Value()
	view := newValueView(v)
	view.Typed = s.typedFor(t.GA, v)
	return telegramView{
		GA:        t.GA.String(),
		Source:    t.Source,
		Timestamp: t.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Value:     view,
	}
}

// decodeValueRequest is the body of POST /values/decode.
type decodeValueRequest struct {
	Hex     string `json:"hex"`
	Address string `json:"address,omitempty"`
	Kind    string `json:"kind,omitempty"`
	DPT     string `json:"dpt,omitempty"`
}

type decodeValueResponse struct {
	valueView
	Address   string     `json:"address,omitempty"`
	Converted *typedView `json:"converted,omitempty"`
	Decoded   any        `json:"decoded,omitempty"`
}

// handleDecodeValue decodes raw bytes and reports every reading of them.
func (s *Server) handleDecodeValue(w http.ResponseWriter, r *http.Request) {
	var req decodeValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	raw, err := parseHex(req.Hex)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	v := knx.NewValue(raw)
	resp := decodeValueResponse{valueView: newValueView(v)}

	if req.Address != "" {
		typed, err := s.typeMap.Decode(req.Address, v)
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Address = req.Address
		resp.Typed = newTypedView(typed)
	}

	if req.Kind != "" {
		kind, err := knx.ParseKind(req.Kind)
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		converted, err := v.AutoConvert(kind)
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Converted = newTypedView(converted)
	}

	if req.DPT != "" {
		decoded, err := v.Decode(knx.DPT(req.DPT))
		if err != nil {
			fail(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Decoded = decoded
	}

	writeJSON(w, http.StatusOK, resp)
}

// encodeValueRequest is the body of POST /values/encode and PUT /bus/{ga}.
// Hex wins over Value. With a DPT the value is encoded for it; otherwise
// the value goes through knx.FromNative.
type encodeValueRequest struct {
	Hex   string `json:"hex,omitempty"`
	Value any    `json:"value,omitempty"`
	DPT   string `json:"dpt,omitempty"`
}

func (req encodeValueRequest) encode(defaultDPT knx.DPT) (knx.Value, error) {
	if req.Hex != "" {
		raw, err := parseHex(req.Hex)
		if err != nil {
			return knx.Value{}, err
		}
		return knx.NewValue(raw), nil
	}
	if req.Value == nil {
		return knx.Value{}, errors.New("value or hex is required")
	}

	dpt := knx.DPT(req.DPT)
	if dpt == "" {
		dpt = defaultDPT
	}
	if dpt != "" {
		return knx.EncodeForDPT(dpt, req.Value)
	}
	return knx.FromNative(req.Value)
}

// handleEncodeValue builds a value from a native JSON value.
func (s *Server) handleEncodeValue(w http.ResponseWriter, r *http.Request) {
	var req encodeValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	v, err := req.encode("")
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newValueView(v))
}

func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.ReplaceAll(s, " ", "")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return raw, nil
}
