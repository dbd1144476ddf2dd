package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/formats"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/jobs"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/protocol"
	"github.com/smartvideo/ytdlp-bridge/bridge/internal/videos"
	"github.com/smartvideo/ytdlp-bridge/bridge/orchestrator"
)

type Handler struct {
	service *Service
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, protocol.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, protocol.ErrConnection):
		status = http.StatusBadGateway
	case errors.Is(err, protocol.ErrProtocol), errors.Is(err, protocol.ErrJob):
		status = http.StatusBadGateway
	}

	http.Error(w, err.Error(), status)
}

func streamTypeOf(r *http.Request) formats.StreamType {
	return formats.ParseStreamType(r.URL.Query().Get("streamType"))
}

type submitVideosRequest struct {
	Page   videos.Page    `json:"page"`
	Videos []videos.Video `json:"videos"`
}

func (h *Handler) SubmitVideos(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req submitVideosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, h.service.SubmitVideos(req.Page, req.Videos))
}

func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.Videos())
}

type selectRequest struct {
	Index      int    `json:"index"`
	StreamType string `json:"streamType"`
}

func (h *Handler) SelectVideo(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	view, err := h.service.Select(req.Index, formats.ParseStreamType(req.StreamType))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, view)
}

func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Probe(r.Context(), streamTypeOf(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, view)
}

func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	view, _ := h.service.Options(streamTypeOf(r))
	writeJSON(w, view)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var in orchestrator.Intent
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	jobID, err := h.service.Download(in)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]string{"jobId": jobID})
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.Slots())
}

func (h *Handler) ResetSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := jobs.ParseSlot(chi.URLParam(r, "slot"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.ResetSlot(slot); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, "ok")
}

func (h *Handler) ChooseDirectory(w http.ResponseWriter, r *http.Request) {
	dir, err := h.service.ChooseDirectory(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]string{"dir": dir})
}

func (h *Handler) FreeSpace(w http.ResponseWriter, r *http.Request) {
	free, err := h.service.FreeSpace()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]uint64{"free": free})
}

func (h *Handler) Archived(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Archived(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, entries)
}
