package common

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, ErrorResponse{Error: message})
}

func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithDomainError writes the single response for a failed operation.
// Server-side failures are logged with their full chain before the generic
// message goes out.
func RespondWithDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status := HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	RespondWithError(w, status, PublicMessage(err))
}

// RespondWithBytes writes a binary body with the given content type.
func RespondWithBytes(w http.ResponseWriter, code int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	w.Write(body)
}
