package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/booking-reminders/internal/admission"
	"github.com/wolfman30/booking-reminders/internal/appointments"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/i18n"
	"github.com/wolfman30/booking-reminders/internal/http/middleware"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

// errorWriter renders service errors in the caller's language.
type errorWriter struct {
	translator *i18n.Translator
	logger     *logging.Logger
}

// lang prefers the token's lang claim, then Accept-Language.
func (e errorWriter) lang(r *http.Request) string {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok && claims.Lang != "" {
		return e.translator.Resolve(claims.Lang)
	}
	return e.translator.Resolve(r.Header.Get("Accept-Language"))
}

func (e errorWriter) message(r *http.Request, key string, args i18n.Args) string {
	return e.translator.Translate(key, e.lang(r), args)
}

func (e errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	var denied *admission.DeniedError
	switch {
	case errors.As(err, &denied):
		key := i18n.KeyProviderBusy
		if denied.Site == admission.SiteAccept {
			key = i18n.KeyAcceptLimit
		}
		jsonError(w, e.message(r, key, i18n.Args{"currentDate": denied.Date}), http.StatusBadRequest)
	case errors.Is(err, appointments.ErrDatePassed):
		jsonError(w, e.message(r, i18n.KeyDatePassed, nil), http.StatusBadRequest)
	case errors.Is(err, appointments.ErrProviderNotFound):
		jsonError(w, e.message(r, i18n.KeyProviderNotFound, nil), http.StatusBadRequest)
	case errors.Is(err, bookings.ErrInvalidSort):
		jsonError(w, e.message(r, i18n.KeyBadRequest, nil), http.StatusBadRequest)
	case errors.Is(err, appointments.ErrNotFound):
		jsonError(w, e.message(r, i18n.KeyNotFound, nil), http.StatusNotFound)
	case errors.Is(err, appointments.ErrForbidden):
		jsonError(w, e.message(r, i18n.KeyForbidden, nil), http.StatusForbidden)
	default:
		e.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, e.message(r, i18n.KeyInternal, nil), http.StatusInternalServerError)
	}
}
