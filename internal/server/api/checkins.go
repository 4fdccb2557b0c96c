// Package api provides HTTP API handlers for the facecheck agent.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/facecheck/internal/app"
	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/store"
)

// defaultHistoryLimit applies when GET /api/checkins has no limit.
const defaultHistoryLimit = 50

// CheckInService is the part of the app the API drives.
type CheckInService interface {
	Start(ctx context.Context) (string, error)
	Cancel() error
	Current() (app.Status, error)
	Get(id string) (*store.CheckIn, error)
	History(limit int) ([]*store.CheckIn, error)
	RefreshPresence(ctx context.Context) (attendance.Color, error)
}

// CheckInHandler handles HTTP requests for check-in resources.
type CheckInHandler struct {
	service CheckInService
}

// NewCheckInHandler creates a new CheckInHandler.
func NewCheckInHandler(service CheckInService) *CheckInHandler {
	return &CheckInHandler{service: service}
}

// Routes mounts the handler on r.
func (h *CheckInHandler) Routes(r chi.Router) {
	r.Get("/checkins", h.List)
	r.Post("/checkins", h.Start)
	r.Get("/checkins/current", h.Current)
	r.Delete("/checkins/current", h.Cancel)
	r.Get("/checkins/{id}", h.Get)
	r.Get("/presence", h.Presence)
	r.Post("/presence/refresh", h.Presence)
}

type checkInResponse struct {
	ID             string   `json:"id"`
	Identity       string   `json:"identity"`
	Matched        bool     `json:"matched"`
	Reason         string   `json:"reason,omitempty"`
	Detail         string   `json:"detail,omitempty"`
	Distance       float64  `json:"distance"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	LocationReason string   `json:"location_reason,omitempty"`
	Submitted      bool     `json:"submitted"`
	SubmitError    string   `json:"submit_error,omitempty"`
	StartedAt      string   `json:"started_at"`
	EndedAt        string   `json:"ended_at"`
}

func toCheckInResponse(c *store.CheckIn) checkInResponse {
	return checkInResponse{
		ID:             c.ID,
		Identity:       c.Identity,
		Matched:        c.Matched,
		Reason:         c.Reason,
		Detail:         c.Detail,
		Distance:       c.Distance,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		LocationReason: c.LocationReason,
		Submitted:      c.Submitted,
		SubmitError:    c.SubmitError,
		StartedAt:      c.StartedAt.Format(time.RFC3339),
		EndedAt:        c.EndedAt.Format(time.RFC3339),
	}
}

// List returns the most recent check-ins, newest first.
func (h *CheckInHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.service.History(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list check-ins")
		return
	}

	out := make([]checkInResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toCheckInResponse(c))
	}
	respondJSON(w, http.StatusOK, out)
}

// Start begins a check-in. The result arrives on the event stream and
// through GET /api/checkins/current.
func (h *CheckInHandler) Start(w http.ResponseWriter, r *http.Request) {
	// The check-in outlives the request.
	id, err := h.service.Start(context.WithoutCancel(r.Context()))
	if errors.Is(err, app.ErrSessionActive) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to start check-in")
		return
	}
	w.Header().Set("Location", "/api/checkins/"+id)
	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// Current returns the running check-in or the last finished one.
func (h *CheckInHandler) Current(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Current()
	if errors.Is(err, app.ErrNoSession) {
		respondError(w, http.StatusNotFound, "no check-in")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to read check-in")
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Cancel cancels the running check-in.
func (h *CheckInHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(); err != nil {
		if errors.Is(err, app.ErrNoSession) {
			respondError(w, http.StatusNotFound, "no active check-in")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to cancel check-in")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get returns a journaled check-in.
func (h *CheckInHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "missing check-in id")
		return
	}

	c, err := h.service.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "check-in not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get check-in")
		return
	}
	respondJSON(w, http.StatusOK, toCheckInResponse(c))
}

// Presence fetches the presence color from the attendance server.
func (h *CheckInHandler) Presence(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.RefreshPresence(r.Context())
	if errors.Is(err, app.ErrNoPresence) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"color": string(c)})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
