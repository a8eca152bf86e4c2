package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/AlexZinkM/pensa-wallet/internal/model"
	"github.com/AlexZinkM/pensa-wallet/swap"

	"github.com/stretchr/testify/require"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "bad request", err: errBadRequest("missing id"), want: http.StatusBadRequest},
		{name: "invalid address", err: fmt.Errorf("%w: bad", model.ErrInvalidAddress), want: http.StatusBadRequest},
		{name: "unsupported asset", err: model.ErrUnsupportedAsset, want: http.StatusBadRequest},
		{name: "no wallet", err: model.ErrWalletNotFound, want: http.StatusNotFound},
		{name: "insufficient", err: model.ErrInsufficientBalance, want: http.StatusUnprocessableEntity},
		{name: "cooldown", err: fmt.Errorf("%w: wait 1m", model.ErrCooldown), want: http.StatusTooManyRequests},
		{name: "unavailable", err: model.ErrUnavailable, want: http.StatusServiceUnavailable},
		{
			name: "swap with unreadable balance",
			err:  &swap.ExecError{State: swap.QuoteRequested, Kind: model.ErrUnavailable, Err: errors.New("SOL balance could not be read")},
			want: http.StatusServiceUnavailable,
		},
		{name: "timeout", err: model.ErrConfirmationTimeout, want: http.StatusGatewayTimeout},
		{name: "submission", err: model.ErrSubmissionFailed, want: http.StatusBadGateway},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
