package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"roomcast/internal/dispatch"
	"roomcast/internal/storage"
	"roomcast/internal/transport"
	logx "roomcast/pkg/logx"
)

const maxBody = 64 * 1024

type handlers struct {
	ctl transport.Controller
	log logx.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// decode reads an optional JSON body. An empty body leaves v untouched;
// anything after the first value is rejected.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return errors.New("trailing data after JSON body")
	default:
		return err
	}
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Status())
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var o transport.RoomOverrides
	if err := decode(r, &o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	room, err := h.ctl.StartDispatch(o)
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, dispatch.ErrInvalidRoom):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.log.Info("dispatch started via http", logx.String("room", room.ID), logx.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, h.ctl.Status())
}

func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	h.ctl.StopDispatch()
	h.log.Info("dispatch stopped via http", logx.String("remote", r.RemoteAddr))
	writeJSON(w, http.StatusAccepted, h.ctl.Status())
}

type notifyRequest struct {
	Message string `json:"message"`
}

type notifyResponse struct {
	Queued  int `json:"queued"`
	Pending int `json:"pending"`
}

func (h *handlers) notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	n := h.ctl.Notify(req.Message)
	writeJSON(w, http.StatusAccepted, notifyResponse{Queued: n, Pending: h.ctl.Status().Pending})
}

func (h *handlers) outcomes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	recs, err := h.ctl.RecentOutcomes(r.Context(), limit)
	if errors.Is(err, transport.ErrNoHistory) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Warn("outcome history read failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if recs == nil {
		recs = []storage.OutcomeRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handlers) trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.ctl.TriggerAnnouncement(name) {
		writeError(w, http.StatusNotFound, "unknown announcement")
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctl.Status())
}
