package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/swap"
)

type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	var bad badRequestError
	switch {
	case errors.As(err, &bad),
		errors.Is(err, model.ErrUnrecognizedFormat),
		errors.Is(err, model.ErrInvalidMnemonic),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrAmountTooSmall),
		errors.Is(err, model.ErrUnsupportedPair),
		errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, model.ErrUnsupportedAsset):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrWalletNotFound), errors.Is(err, model.ErrMetadataUnavailable):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrRateLimited), errors.Is(err, model.ErrCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrConfirmationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, model.ErrTradeAPI),
		errors.Is(err, model.ErrSubmissionFailed),
		errors.Is(err, model.ErrAccountSetupFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *WalletHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Int("status", status).Msg("request failed")
	}

	resp := model.ErrorResponse{Error: err.Error()}
	var execErr *swap.ExecError
	if errors.As(err, &execErr) {
		resp.State = execErr.State.String()
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, model.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
