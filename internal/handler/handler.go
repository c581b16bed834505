// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/eventtix/eventtix/internal/model"
	"github.com/eventtix/eventtix/internal/repository"
	"github.com/eventtix/eventtix/internal/service"
)

// Handler holds all HTTP handlers for the ticket booking API.
type Handler struct {
	bookings *service.BookingService
	users    *service.UserService
	validate *validator.Validate
	logger   zerolog.Logger
}

// New constructs a Handler.
func New(bookings *service.BookingService, users *service.UserService, logger zerolog.Logger) *Handler {
	return &Handler{
		bookings: bookings,
		users:    users,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decodeAndValidate decodes the body into dst and runs struct validation.
// Violations are written as a 422 with per-field messages; the caller
// should return when false comes back.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]map[string]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, map[string]string{
					fe.Field(): "failed on the '" + fe.Tag() + "' rule",
				})
			}
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
			return false
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// writeServiceError maps service/repository errors to transport statuses.
// Storage failures are the only kind logged: they indicate an
// infrastructure fault, not a caller mistake.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrInsufficientTickets):
		writeError(w, http.StatusBadRequest, "not enough tickets available")
	case errors.Is(err, service.ErrAlreadyCancelled):
		writeError(w, http.StatusBadRequest, "booking is already cancelled")
	case errors.Is(err, repository.ErrDuplicateUser):
		writeError(w, http.StatusBadRequest, "user already exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "invalid credentials")
	default:
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("storage failure")
		writeError(w, http.StatusInternalServerError, "server error")
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// ─── Users ────────────────────────────────────────────────────────────────────

// Register handles POST /api/users/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	token, err := h.users.Register(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.TokenResponse{Token: token})
}

// Login handles POST /api/users/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	token, err := h.users.Login(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.TokenResponse{Token: token})
}

// ─── Events and bookings ──────────────────────────────────────────────────────

// CreateEvent handles POST /api/events (authenticated).
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	event, err := h.bookings.InitializeEvent(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// BookTicket handles POST /api/events/book (authenticated).
func (h *Handler) BookTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req model.BookTicketRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	booking, err := h.bookings.BookTicket(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// CancelBooking handles POST /api/events/cancel (authenticated).
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req model.CancelBookingRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.bookings.CancelBooking(r.Context(), userID, req.BookingID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "booking cancelled successfully"})
}

// EventStatus handles GET /api/events/{eventID}/status (public).
func (h *Handler) EventStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "event id must be a positive integer")
		return
	}
	status, err := h.bookings.GetEventStatus(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetEvent handles GET /api/events/{eventID} (public).
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(r, "eventID")
	if !ok {
		writeError(w, http.StatusBadRequest, "event id must be a positive integer")
		return
	}
	event, err := h.bookings.GetEvent(r.Context(), eventID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// ListEvents handles GET /api/events (public).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.bookings.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	// Empty array rather than null for client compatibility.
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListMyBookings handles GET /api/bookings (authenticated).
func (h *Handler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	bookings, err := h.bookings.ListUserBookings(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
