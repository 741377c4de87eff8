package server

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// readJSON decodes and validates a request body into dst. dst must be a
// pointer to a struct carrying validate tags.
func readJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}
