package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/repository"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/oauth2"
)

type AppointmentHandler struct {
	appointmentService service.AppointmentService
	validate           *validator.Validate
	logger             zerolog.Logger
}

func NewAppointmentHandler(appointmentService service.AppointmentService, validate *validator.Validate, logger zerolog.Logger) *AppointmentHandler {
	return &AppointmentHandler{
		appointmentService: appointmentService,
		validate:           validate,
		logger:             logger,
	}
}

func (h *AppointmentHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("/appointments", authMw(http.HandlerFunc(h.handleAppointments)))
	mux.Handle("/appointments/", authMw(http.HandlerFunc(h.handleAppointment)))
	mux.Handle("/calendar/token", authMw(http.HandlerFunc(h.handleCalendarToken)))
}

func (h *AppointmentHandler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAppointment(w, r)
	case http.MethodGet:
		h.listAppointments(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) handleAppointment(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/appointments/")
	parts := strings.Split(rest, "/")

	switch {
	case rest == "upcoming" && r.Method == http.MethodGet:
		h.upcomingAppointments(w, r)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPatch:
		h.updateStatus(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *AppointmentHandler) handleCalendarToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		h.connectCalendar(w, r)
	case http.MethodDelete:
		h.disconnectCalendar(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AppointmentHandler) connectCalendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.CalendarTokenDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	token := &oauth2.Token{
		AccessToken:  req.AccessToken,
		TokenType:    req.TokenType,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
	}
	if err := h.appointmentService.ConnectCalendar(r.Context(), userID, token); err != nil {
		if errors.Is(err, service.ErrCalendarNotConfigured) {
			http.Error(w, "Calendar sync is not configured", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to save calendar token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) disconnectCalendar(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.appointmentService.DisconnectCalendar(r.Context(), userID); err != nil {
		if errors.Is(err, service.ErrCalendarNotConfigured) {
			http.Error(w, "Calendar sync is not configured", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Failed to delete calendar token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) createAppointment(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.AppointmentCreateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.appointmentService.Create(r.Context(), userID, req.Doctor, req.Date, req.Time, req.Reason)
	if err != nil {
		http.Error(w, "Failed to create appointment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toAppointmentDTO(appt)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *AppointmentHandler) listAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	appointments, err := h.appointmentService.List(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to list appointments: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeAppointments(w, appointments)
}

func (h *AppointmentHandler) upcomingAppointments(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	appointments, err := h.appointmentService.Upcoming(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to list upcoming appointments: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeAppointments(w, appointments)
}

func (h *AppointmentHandler) updateStatus(w http.ResponseWriter, r *http.Request, appointmentID string) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
		return
	}

	var req dto.AppointmentStatusUpdateDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.appointmentService.UpdateStatus(r.Context(), userID, appointmentID, req.Status)
	if err != nil {
		if errors.Is(err, repository.ErrAppointmentNotFound) {
			http.Error(w, "Appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update appointment: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toAppointmentDTO(appt)); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *AppointmentHandler) writeAppointments(w http.ResponseWriter, appointments []model.Appointment) {
	resp := lo.Map(appointments, func(a model.Appointment, _ int) dto.AppointmentResponseDTO {
		return *toAppointmentDTO(&a)
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func toAppointmentDTO(a *model.Appointment) *dto.AppointmentResponseDTO {
	return &dto.AppointmentResponseDTO{
		ID:            a.ID,
		Doctor:        a.Doctor,
		Date:          a.Date,
		Time:          a.Time,
		Reason:        a.Reason,
		Status:        a.Status,
		GoogleEventID: a.GoogleEventID,
		CreatedAt:     a.CreatedAt,
	}
}
