package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apperrors "signalist/internal/errors"
	"signalist/internal/logger"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. Malformed bodies map to
// ErrInvalidInput.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid request body"), err)
	}
	return nil
}

// respondWithError writes a consistent JSON error response. AppErrors keep
// their status, code and message; anything else is logged and reported as an
// internal error.
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", r.URL.Path,
			)
		}
		writeJSON(w, appErr.StatusCode, errorBody(appErr))
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", r.URL.Path,
		"method", r.Method,
	)
	writeJSON(w, apperrors.ErrInternalServer.StatusCode, errorBody(apperrors.ErrInternalServer))
}

func errorBody(e *apperrors.AppError) map[string]any {
	return map[string]any{
		"error": map[string]string{
			"code":    e.Code,
			"message": e.Message,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
