package http

import (
	"encoding/json"
	"net/http"

	"github.com/robertarktes/ticket-issuance-and-admission/internal/domain"
	"github.com/robertarktes/ticket-issuance-and-admission/internal/observability"
)

var statusByKind = map[domain.Kind]int{
	domain.KindValidation:            http.StatusBadRequest,
	domain.KindNotFound:              http.StatusNotFound,
	domain.KindMalformedCredential:   http.StatusBadRequest,
	domain.KindAlreadyProcessed:      http.StatusOK,
	domain.KindIssuanceFailed:        http.StatusInternalServerError,
	domain.KindDependencyUnavailable: http.StatusServiceUnavailable,
	domain.KindConflict:              http.StatusConflict,
	domain.KindUnauthorized:          http.StatusUnauthorized,
}

func statusFor(kind domain.Kind) int {
	if code, ok := statusByKind[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	code := statusFor(kind)
	log := observability.LoggerFromContext(r.Context(), h.logger).WithField("kind", string(kind))
	detail := err.Error()
	if code >= 500 {
		log.WithError(err).Error("request failed")
		if kind == domain.KindInternal {
			detail = "internal error"
		}
	} else {
		log.WithError(err).Debug("request rejected")
	}
	writeJSON(w, code, map[string]string{"error": string(kind), "detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
