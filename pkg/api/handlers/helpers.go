// Package handlers holds the HTTP handlers of the REST API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/driftbox/driftbox/internal/logger"
	"github.com/driftbox/driftbox/pkg/apperror"
	"github.com/driftbox/driftbox/pkg/vpath"
)

// response is the standard API response wrapper.
//
// All API responses follow this structure:
//   - Status indicates the overall result ("ok", "error", "healthy", "unhealthy")
//   - Timestamp provides response time for debugging and caching
//   - Data contains the response payload (optional)
//   - Error and Code carry failure details when Status indicates failure
type response struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}

func okResponse(data any) response {
	return response{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func healthyResponse(data any) response {
	return response{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func unhealthyResponse(errMsg string) response {
	return response{
		Status:    "unhealthy",
		Timestamp: time.Now().UTC(),
		Error:     errMsg,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Last resort; headers are already sent.
		logger.Error("failed to encode API response", "error", err)
	}
}

// writeError maps a domain error onto the wire: the HTTP status and the
// stable API code come from the error code, internal causes stay hidden.
func writeError(w http.ResponseWriter, err error) {
	code := apperror.CodeOf(err)

	message := "Internal server error."
	var appErr *apperror.Error
	if errors.As(err, &appErr) && code != apperror.CodeInternal {
		message = appErr.Message
	}
	if code == apperror.CodeInternal {
		logger.Error("API request failed", "error", err)
	}

	writeJSON(w, code.HTTPStatus(), response{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     message,
		Code:      code.APICode(),
	})
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (an error response
// is written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, apperror.MalformedPath("Invalid request body."))
		return false
	}
	return true
}

// pathQuery reads the "path" query parameter. A missing parameter means
// the namespace root.
func pathQuery(r *http.Request) vpath.Path {
	return vpath.New(r.URL.Query().Get("path"))
}

// requirePathQuery reads the "path" query parameter, rejecting requests
// without one.
func requirePathQuery(w http.ResponseWriter, r *http.Request) (vpath.Path, bool) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, apperror.MalformedPath("Missing required query parameter: path."))
		return vpath.Path{}, false
	}
	return vpath.New(raw), true
}
