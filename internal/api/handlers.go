package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxLibraryTimeout caps the per-request deadline a client may ask for.
const maxLibraryTimeout = 60 * time.Second

// handleCreatePairingCode issues a fresh pairing code for a user.
//
// POST /api/v1/users/{userID}/pairing-code
func (s *Server) handleCreatePairingCode(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	code, err := s.service.GeneratePairingCode(r.Context(), userID)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"code": code,
	})
}

// handleGetDevice returns the user's linked device and whether it
// currently holds a live connection.
//
// GET /api/v1/users/{userID}/device
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	l, err := s.service.Device(r.Context(), userID)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	resp := map[string]any{
		"device_id": *l.DeviceID,
		"connected": s.service.IsConnected(*l.DeviceID),
	}
	if l.DeviceName != nil {
		resp["device_name"] = *l.DeviceName
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleUnlinkDevice clears the user's device binding and notifies the
// device if it is connected.
//
// DELETE /api/v1/users/{userID}/device
func (s *Server) handleUnlinkDevice(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	deviceID, err := s.service.Unlink(r.Context(), userID)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"unlinked":  true,
	})
}

// sendMessageRequest is the body for message delivery.
type sendMessageRequest struct {
	Text string `json:"text"`
}

// handleSendMessage pushes a fire-and-forget text message to the
// user's device.
//
// POST /api/v1/users/{userID}/messages
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeBadRequest(w, "text is required")
		return
	}

	if err := s.service.SendMessage(r.Context(), userID, req.Text); err != nil {
		s.writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"delivered": true,
	})
}

// libraryRequest is the optional body for library requests.
type libraryRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// handleRequestLibrary asks the user's device for its installed-app
// listing and waits for the reply.
//
// POST /api/v1/users/{userID}/library
func (s *Server) handleRequestLibrary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	// The body is optional; an absent or empty body means defaults.
	var req libraryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	if timeout > maxLibraryTimeout {
		timeout = maxLibraryTimeout
	}

	apps, err := s.service.RequestLibrary(r.Context(), userID, timeout)
	if err != nil {
		s.writeRelayError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"apps": apps,
	})
}

// handleConnectedDevices lists every device with a live connection.
//
// GET /api/v1/devices/connected
func (s *Server) handleConnectedDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.service.ConnectedDevices()

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}
