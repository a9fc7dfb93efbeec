// Package shared holds the JSON response helpers used by every HTTP
// handler so error envelopes stay consistent across endpoints.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "regcast/pkg/domain-errors"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into an HTTP error envelope.
// Unrecognized errors collapse to 500 without leaking internals.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	msg := ""
	var dErr *dErrors.Error
	if errors.As(err, &dErr) {
		msg = dErr.Message
	}
	WriteJSON(w, statusFor(code), errorEnvelope{Error: string(code), Message: msg})
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
