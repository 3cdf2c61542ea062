// Package respond writes JSON bodies and maps domain errors to status codes.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Error writes err with the status its kind maps to. Unknown errors are
// logged and hidden behind a generic message.
func Error(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		JSON(w, status, errorResponse{Error: "internal error"})

		return
	}

	JSON(w, status, errorResponse{Error: err.Error()})
}

func BadRequest(w http.ResponseWriter, msg string) {
	JSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func Status(err error) int {
	switch {
	// Wraps the document's own not-found, but the procedure is what failed.
	case errors.Is(err, procedure.ErrDocumentUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, procedure.ErrNotFound), errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, procedure.ErrIllegalTransition), errors.Is(err, procedure.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, procedure.ErrForbidden), errors.Is(err, document.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNoActor), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, provider.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, procedure.ErrTokenBlocked):
		return http.StatusLocked
	case errors.Is(err, procedure.ErrTokenInvalid):
		return http.StatusNotFound
	case errors.Is(err, procedure.ErrToken):
		return http.StatusGone
	case errors.Is(err, procedure.ErrPrecondition), errors.Is(err, document.ErrVoided):
		return http.StatusUnprocessableEntity
	case errors.Is(err, document.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
