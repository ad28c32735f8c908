package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/craftlink/craftlink/internal/apperr"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps the service error taxonomy to HTTP status codes. Anything
// outside the taxonomy is treated as a bad request.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrCollision):
		return http.StatusConflict
	case apperr.IsUpstream(err):
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

// writeError renders err as a JSON error body. Upstream causes are logged
// server-side and never shown to clients.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	message := err.Error()
	if status == http.StatusBadGateway {
		log.Printf("upstream failure: %v", err)
		message = "upstream service unavailable"
	} else if status == http.StatusBadRequest {
		message = "bad request"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
