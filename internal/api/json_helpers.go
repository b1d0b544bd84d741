package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/observability/logging"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code   string              `json:"code"`
	Error  string              `json:"error"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto its status code and error body. Unexpected
// failures are logged and answered with a generic message. In cookie mode an
// unauthenticated failure also removes the session cookie.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := errorResponse{Code: apperr.Code(err), Error: err.Error()}

	var ve *apperr.ValidationError
	if errors.As(err, &ve) {
		body.Fields = ve.Fields
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		body.Error = http.StatusText(http.StatusInternalServerError)
	}
	if h.cookieMode() && apperr.IsUnauthenticated(err) {
		h.clearSessionCookie(w)
	}
	writeJSON(w, status, body)
}

// WriteError writes a bare error body for failures raised outside a Handler,
// such as unmatched routes.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Error: message})
}

// NotFound answers unmatched routes.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusNotFound, "not_found", "route not found")
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}

// decodeJSON reads a single JSON object into dest, rejecting unknown fields.
// Malformed bodies become validation errors on the "body" field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return apperr.Invalid("body", "request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("body", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Invalid("body", fmt.Sprintf("must be at most %d bytes", tooLarge.Limit))
		}
		return apperr.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	if decoder.More() {
		return apperr.Invalid("body", "must contain a single JSON object")
	}
	return nil
}
