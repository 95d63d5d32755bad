package errs

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// codes maps application error codes to http status codes.
var codes = map[string]int{
	EINVALID:       http.StatusBadRequest,
	EUNPROCESSABLE: http.StatusUnprocessableEntity,
	ENOTFOUND:      http.StatusNotFound,
	EFORBIDDEN:     http.StatusForbidden,
	EUNAUTHORIZED:  http.StatusUnauthorized,
	EINTERNAL:      http.StatusInternalServerError,
}

// ErrorStatusCode returns the associated http status code for an application error code.
func ErrorStatusCode(code string) int {
	if v, ok := codes[code]; ok {
		return v
	}
	return http.StatusInternalServerError
}

// errorResponse is the json body of every error response.
type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// ReturnError prints & optionally logs an error message.
func ReturnError(w http.ResponseWriter, r *http.Request, err error) {
	// Extract error code & message.
	code, message := ErrorCode(err), ErrorMessage(err)

	// Log & report internal errors.
	if code == EINTERNAL {
		LogError(r, err)
	}

	// Print user message to response.
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrorStatusCode(code))
	json.NewEncoder(w).Encode(&errorResponse{
		Error:  message,
		Fields: ErrorFields(err),
	})
}

// LogError logs an error with the HTTP route information.
func LogError(r *http.Request, err error) {
	log.Error().
		Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
}
