package api

import (
	"encoding/json"
	"net/http"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
)

// errorResponse is the uniform error body
type errorResponse struct {
	Error string       `json:"error"`
	Kind  errdefs.Kind `json:"kind"`
}

// statusFor maps the error taxonomy to HTTP statuses. Transport and
// breaker failures are gateway problems, not caller problems.
func statusFor(err error) int {
	switch errdefs.KindOf(err) {
	case errdefs.KindForbidden:
		return http.StatusForbidden
	case errdefs.KindNotFound:
		return http.StatusNotFound
	case errdefs.KindConflict:
		return http.StatusConflict
	case errdefs.KindValidation:
		return http.StatusBadRequest
	case errdefs.KindBreakerOpen:
		return http.StatusServiceUnavailable
	case errdefs.KindTransport:
		return http.StatusBadGateway
	case errdefs.KindEngine:
		return http.StatusBadGateway
	case errdefs.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{
		Error: err.Error(),
		Kind:  errdefs.KindOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON parses a request body, tagging failures as validation
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errdefs.Wrap(errdefs.KindValidation, "invalid request body", err)
	}
	return nil
}
