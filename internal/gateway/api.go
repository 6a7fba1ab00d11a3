// ABOUTME: Shared JSON helpers for the HTTP API handlers
// ABOUTME: Writes {"detail": ...} error bodies and decodes bounded request bodies

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxBodyBytes bounds JSON and form request bodies.
const maxBodyBytes = 64 * 1024

// statusResponse is the body of successful runtime actions.
type statusResponse struct {
	Status string `json:"status"`
}

var statusOK = statusResponse{Status: "ok"}

// sendJSON writes v as a JSON response with the given status.
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response in the {"detail": msg} shape
// browser clients read.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, map[string]string{"detail": message})
}

// decodeJSON decodes a single JSON object from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxBodyBytes)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return nil
}
