package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/appointments"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/http/middleware"
	"github.com/wolfman30/booking-reminders/internal/i18n"
	"github.com/wolfman30/booking-reminders/internal/reminders"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// AppointmentService is the booking workflow behind the HTTP API.
type AppointmentService interface {
	Create(ctx context.Context, in appointments.CreateInput) (*bookings.Booking, error)
	Accept(ctx context.Context, providerID, bookingID string) (*bookings.Booking, error)
	Update(ctx context.Context, in appointments.UpdateInput) (*bookings.Booking, error)
	Delete(ctx context.Context, id, actorID string, role accounts.Role) error
	Get(ctx context.Context, id, actorID string, role accounts.Role) (*bookings.Booking, error)
	List(ctx context.Context, filter bookings.Filter, page appointments.Page) (*appointments.List, error)
	ReminderStatus(ctx context.Context, id, actorID string, role accounts.Role) (map[reminders.Tier]bool, error)
}

// AppointmentsHandler serves /appointments.
type AppointmentsHandler struct {
	svc    AppointmentService
	errors errorWriter
	logger *logging.Logger
}

func NewAppointmentsHandler(svc AppointmentService, translator *i18n.Translator, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{
		svc:    svc,
		errors: errorWriter{translator: translator, logger: logger},
		logger: logger,
	}
}

type createRequest struct {
	ProviderID  string    `json:"provider_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type updateRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	Active      *bool      `json:"active"`
}

type acceptRequest struct {
	ID string `json:"id"`
}

func caller(r *http.Request) (string, accounts.Role) {
	claims, _ := middleware.ClaimsFromContext(r.Context())
	return claims.Subject, accounts.Role(claims.Role)
}

func (h *AppointmentsHandler) badRequest(w http.ResponseWriter, r *http.Request, key string) {
	jsonError(w, h.errors.message(r, key, nil), http.StatusBadRequest)
}

// List handles GET /appointments. Callers only ever see their own bookings.
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	actorID, role := caller(r)
	q := r.URL.Query()

	filter := bookings.Filter{}
	if role == accounts.RoleProvider {
		filter.ProviderID = actorID
	} else {
		filter.SubjectID = actorID
	}
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(w, r, i18n.KeyBadRequest)
			return
		}
		filter.Active = &v
	}
	for param, dst := range map[string]**time.Time{"minDate": &filter.MinDate, "maxDate": &filter.MaxDate} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.badRequest(w, r, i18n.KeyDateFormat)
			return
		}
		*dst = &t
	}

	page := appointments.Page{Sort: q.Get("sort")}
	var err error
	if page.Page, err = intParam(q.Get("page")); err != nil {
		h.badRequest(w, r, i18n.KeyBadRequest)
		return
	}
	if page.Limit, err = intParam(q.Get("limit")); err != nil {
		h.badRequest(w, r, i18n.KeyBadRequest)
		return
	}

	list, err := h.svc.List(r.Context(), filter, page)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Create handles POST /appointments for subjects.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, i18n.KeyDateFormat)
		return
	}
	if strings.TrimSpace(req.ProviderID) == "" || req.ScheduledAt.IsZero() {
		h.badRequest(w, r, i18n.KeyBadRequest)
		return
	}
	actorID, _ := caller(r)
	b, err := h.svc.Create(r.Context(), appointments.CreateInput{
		SubjectID:   actorID,
		ProviderID:  req.ProviderID,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Get handles GET /appointments/{id}.
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, role := caller(r)
	b, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), actorID, role)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Update handles PUT /appointments/{id}.
func (h *AppointmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, r, i18n.KeyDateFormat)
		return
	}
	actorID, role := caller(r)
	_, err := h.svc.Update(r.Context(), appointments.UpdateInput{
		ID:          chi.URLParam(r, "id"),
		ActorID:     actorID,
		ActorRole:   role,
		ScheduledAt: req.ScheduledAt,
		Active:      req.Active,
	})
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE /appointments/{id}.
func (h *AppointmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actorID, role := caller(r)
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), actorID, role); err != nil {
		h.errors.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Accept handles PATCH /appointments/accept for providers.
func (h *AppointmentsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.badRequest(w, r, i18n.KeyBadRequest)
		return
	}
	actorID, _ := caller(r)
	b, err := h.svc.Accept(r.Context(), actorID, req.ID)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Reminders handles GET /appointments/{id}/reminders.
func (h *AppointmentsHandler) Reminders(w http.ResponseWriter, r *http.Request) {
	actorID, role := caller(r)
	status, err := h.svc.ReminderStatus(r.Context(), chi.URLParam(r, "id"), actorID, role)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
