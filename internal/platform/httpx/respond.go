// Package httpx provides HTTP response utilities for the JSON API.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bodega/bodega-api/internal/shared"
)

// MaxBodyBytes caps decoded request bodies.
const MaxBodyBytes = 10 << 10

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`
	FailedAt *int   `json:"failedAt,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Message sends a {message} body.
func Message(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Message: message})
}

// DecodeJSON decodes the request body into target. Unknown fields are
// ignored; only the typed fields of target are ever read.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body: %w", shared.ErrValidation)
	}
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("body exceeds %d bytes: %w", maxErr.Limit, shared.ErrValidation)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("empty body: %w", shared.ErrValidation)
		default:
			return fmt.Errorf("malformed json: %v: %w", err, shared.ErrValidation)
		}
	}
	return nil
}
