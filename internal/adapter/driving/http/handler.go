package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/clearwave/callsig/internal/core/domain"
	"github.com/clearwave/callsig/internal/core/port"
	"github.com/clearwave/callsig/internal/core/service"
)

type Handler struct {
	Direct *service.DirectCallService
	Groups *service.GroupCallCoordinator
}

func NewHandler(direct *service.DirectCallService, groups *service.GroupCallCoordinator) *Handler {
	return &Handler{
		Direct: direct,
		Groups: groups,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/calls", func(r chi.Router) {
		r.Post("/", h.startCall)
		r.Post("/{id}/accept", h.acceptCall)
		r.Post("/{id}/reject", h.rejectCall)
		r.Post("/{id}/cancel", h.cancelCall)
		r.Post("/end", h.endCall)
		r.Get("/state", h.directState)
		r.Get("/history", h.history)
	})

	r.Route("/group-calls", func(r chi.Router) {
		r.Post("/", h.startGroupCall)
		r.Post("/{id}/join", h.joinGroupCall)
		r.Post("/leave", h.leaveGroupCall)
		r.Post("/dismiss", h.dismissIncoming)
		r.Get("/state", h.groupState)
	})

	return r
}

func (h *Handler) startCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Callee string `json:"callee"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Callee == "" {
		writeError(w, http.StatusBadRequest, "callee is required")
		return
	}
	intent, err := h.Direct.StartCall(r.Context(), req.Callee, domain.NewChannelID())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *Handler) acceptCall(w http.ResponseWriter, r *http.Request) {
	id := domain.CallID(chi.URLParam(r, "id"))
	channel, err := h.Direct.AcceptCall(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"channel": channel.String()})
}

func (h *Handler) rejectCall(w http.ResponseWriter, r *http.Request) {
	id := domain.CallID(chi.URLParam(r, "id"))
	if err := h.Direct.RejectCall(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancelCall(w http.ResponseWriter, r *http.Request) {
	id := domain.CallID(chi.URLParam(r, "id"))
	if err := h.Direct.CancelCall(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) endCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Direct.EndCall(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) directState(w http.ResponseWriter, r *http.Request) {
	st := h.Direct.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"incoming_call":  st.Incoming,
		"outgoing_call":  st.Outgoing,
		"active_call_id": st.ActiveCallID,
		"remote_hangup":  st.RemoteHangup,
	})
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	calls, err := h.Direct.History(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (h *Handler) startGroupCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupID   string `json:"group_id"`
		GroupName string `json:"group_name"`
		IsVideo   bool   `json:"is_video"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	call, err := h.Groups.StartGroupCall(r.Context(), req.GroupID, req.GroupName, req.IsVideo)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (h *Handler) joinGroupCall(w http.ResponseWriter, r *http.Request) {
	id := domain.CallID(chi.URLParam(r, "id"))
	call, roster, err := h.Groups.JoinGroupCall(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"call":   call,
		"roster": roster,
	})
}

func (h *Handler) leaveGroupCall(w http.ResponseWriter, r *http.Request) {
	if err := h.Groups.LeaveGroupCall(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) dismissIncoming(w http.ResponseWriter, r *http.Request) {
	h.Groups.DismissIncoming()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) groupState(w http.ResponseWriter, r *http.Request) {
	st := h.Groups.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_group_calls":  st.ActiveGroupCalls,
		"current_group_call":  st.CurrentGroupCall,
		"participants":        st.Participants,
		"incoming_group_call": st.IncomingGroupCall,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, port.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrCallEnded):
		writeError(w, http.StatusGone, err.Error())
	default:
		log.Error().Err(err).Msg("Operation failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Encode response")
	}
}
