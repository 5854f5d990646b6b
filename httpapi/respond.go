package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
)

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, dataEnvelope{Data: v})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorEnvelope{Error: msg})
}

// statusFor maps an engine error to its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, goGuard.ErrPersistence), errors.Is(err, goGuard.ErrEngineNotReady):
		return http.StatusServiceUnavailable, "service unavailable"
	case errors.Is(err, goGuard.ErrTwoFactorRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, goGuard.ErrNoPendingSetup), errors.Is(err, goGuard.ErrTwoFactorAlreadyEnabled):
		return http.StatusConflict, err.Error()
	case errors.Is(err, goGuard.ErrMethodNotSupported):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, goGuard.ErrInvalidArgument):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, goGuard.ErrSessionNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Any("error", err),
		)
	}
	writeError(w, status, msg)
}
