package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bodega/bodega-api/internal/platform/db"
	"github.com/bodega/bodega-api/internal/shared"
)

// lineFailure is implemented by errors that know which input line failed.
type lineFailure interface {
	FailedIndex() int
}

// RespondError maps domain errors to HTTP responses.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	body := ErrorBody{Message: err.Error()}
	var lf lineFailure
	if errors.As(err, &lf) {
		idx := lf.FailedIndex()
		body.FailedAt = &idx
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shared.ErrValidation):
		status = http.StatusBadRequest
		body.Error = "validation"
	case errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
		body.Error = "not_found"
	case errors.Is(err, shared.ErrConflict):
		status = http.StatusConflict
		body.Error = "conflict"
	case db.IsSerializationFailure(err):
		// A concurrent transaction touched the same rows; the client may retry.
		status = http.StatusConflict
		body = ErrorBody{Error: "conflict", Message: "concurrent update, retry the request", FailedAt: body.FailedAt}
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		body = ErrorBody{Message: http.StatusText(http.StatusInternalServerError)}
	}
	JSON(w, status, body)
}
