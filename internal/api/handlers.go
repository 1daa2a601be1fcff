package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/pixelbar/ledcontrol/internal/color"
	"github.com/pixelbar/ledcontrol/internal/controller"
	"github.com/pixelbar/ledcontrol/internal/preset"
)

// channelNames maps RGBW channel indices to their v1 API names.
var channelNames = [color.Channels]string{"red", "green", "blue", "white"}

// handleGetV2 returns the last committed state in the compact hex form.
func (s *Server) handleGetV2(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, colorsPayload{Colors: s.ctrl.HexColors()})
}

// handleSetV2 sets a full state from hex colors: a single color to broadcast,
// or one per group.
func (s *Server) handleSetV2(w http.ResponseWriter, r *http.Request) {
	var req colorsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no or malformed data supplied"})
		return
	}
	if len(req.Colors) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no colors specified"})
		return
	}

	if _, err := s.ctrl.SetHexColors(r.Context(), req.Colors); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetV2(w, r)
}

// handlePatchV2 updates only the groups named by index, leaving the rest at
// their last committed values.
func (s *Server) handlePatchV2(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no or malformed data supplied"})
		return
	}
	if len(req) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no colors specified"})
		return
	}

	updates := make(map[int]string, len(req))
	for key, hexColor := range req {
		idx, err := strconv.Atoi(key)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid group index %q", key)})
			return
		}
		updates[idx] = hexColor
	}

	if _, err := s.ctrl.SetPartial(r.Context(), updates); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetV2(w, r)
}

// handleGetV1 returns the state in the touchscreen's named-group form, with
// channel values scaled to 0-100.
func (s *Server) handleGetV1(w http.ResponseWriter, _ *http.Request) {
	state := s.ctrl.State()
	out := make(map[string]map[string]int, len(s.groups))
	for i, name := range s.groups {
		group := make(map[string]int, color.Channels)
		for ch, chName := range channelNames {
			group[chName] = int(state[i][ch]) * 100 / 255
		}
		out[name] = group
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSetV1 sets a full state from the named-group form. Every configured
// group and every channel must be present.
func (s *Server) handleSetV1(w http.ResponseWriter, r *http.Request) {
	var req map[string]map[string]int
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no or malformed data supplied"})
		return
	}

	state := make(color.GroupState, len(s.groups))
	for i, name := range s.groups {
		values, ok := req[name]
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("no colors specified for group %s", name)})
			return
		}
		for ch, chName := range channelNames {
			v, ok := values[chName]
			if !ok {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("no %s value specified for group %s", chName, name)})
				return
			}
			if v < 0 || v > 100 {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("illegal value %d specified for color %s in group %s", v, chName, name)})
				return
			}
			state[i][ch] = uint8(255 * v / 100)
		}
	}

	if err := s.ctrl.SetState(r.Context(), state); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetV1(w, r)
}

// handleListPresets returns all saved presets.
func (s *Server) handleListPresets(w http.ResponseWriter, _ *http.Request) {
	all, err := s.presets.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if all == nil {
		all = []*preset.Preset{}
	}
	writeJSON(w, http.StatusOK, all)
}

// handleSavePreset saves the posted colors under a name. With no colors in
// the request the current state is snapshotted instead.
func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var req savePresetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no or malformed data supplied"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no preset name specified"})
		return
	}

	var state color.GroupState
	if len(req.Colors) == 0 {
		state = s.ctrl.State()
	} else {
		var err error
		state, err = color.ParseGroupState(req.Colors, s.ctrl.Groups())
		if err != nil {
			s.writeError(w, err)
			return
		}
	}

	p, err := s.presets.Save(req.Name, state.HexColors())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleApplyPreset transmits a saved preset as the new state.
func (s *Server) handleApplyPreset(w http.ResponseWriter, r *http.Request) {
	p, err := s.presets.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.ctrl.SetHexColors(r.Context(), p.Colors); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetV2(w, r)
}

// handleDeletePreset removes a saved preset.
func (s *Server) handleDeletePreset(w http.ResponseWriter, r *http.Request) {
	if err := s.presets.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps core error kinds to HTTP statuses: validation errors are
// the caller's fault, transport errors mean the board is unreachable.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		formatErr    *color.InvalidColorFormatError
		countErr     *color.WrongGroupCountError
		rangeErr     *color.IndexOutOfRangeError
		transportErr *controller.TransportError
	)
	switch {
	case errors.As(err, &formatErr), errors.As(err, &countErr), errors.As(err, &rangeErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, preset.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &transportErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
