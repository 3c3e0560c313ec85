package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vrlink/vrlink-core/internal/link"
	"github.com/vrlink/vrlink-core/internal/relay"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"

	ErrCodeNotLinked          = "not_linked"
	ErrCodeNotConnected       = "not_connected"
	ErrCodeTimeout            = "timeout"
	ErrCodeDeviceDisconnected = "device_disconnected"
	ErrCodeSendFailed         = "send_failed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRelayError maps relay and link domain errors onto HTTP responses.
func (s *Server) writeRelayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, link.ErrNotLinked):
		writeError(w, http.StatusNotFound, ErrCodeNotLinked, "no device linked to this user")
	case errors.Is(err, relay.ErrNotConnected):
		writeError(w, http.StatusConflict, ErrCodeNotConnected, "device is not connected")
	case errors.Is(err, relay.ErrRequestTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "device did not reply in time")
	case errors.Is(err, relay.ErrDeviceDisconnected):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceDisconnected, "device disconnected during the request")
	case errors.Is(err, relay.ErrSendFailed):
		writeError(w, http.StatusBadGateway, ErrCodeSendFailed, "could not deliver frame to device")
	default:
		s.logger.Error("unhandled command error", "error", err)
		writeInternalError(w, "internal server error")
	}
}
