package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

// writeError maps a domain error onto an HTTP response. Unknown errors become
// an opaque 500; internal detail never leaks to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.GetStatusCode(err)

	body := errorBody{
		Code:      "INTERNAL_ERROR",
		Message:   "An internal error occurred",
		RequestID: RequestIDFrom(r.Context()),
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Retryable = appErr.Retryable
	}

	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
