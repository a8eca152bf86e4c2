package api

import (
	"net/http"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/handler"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRouter sets up router with handlers
func SetupRouter(h *handler.WalletHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Swagger UI
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Wallet list
	mux.HandleFunc("/wallets", h.ListWallets)
	mux.HandleFunc("/wallets/create", h.CreateWallet)
	mux.HandleFunc("/wallets/import", h.ImportWallet)
	mux.HandleFunc("/wallets/switch", h.SwitchWallet)
	mux.HandleFunc("/wallets/rename", h.RenameWallet)
	mux.HandleFunc("/wallets/disconnect", h.Disconnect)
	mux.HandleFunc("/wallets/remove", h.RemoveWallet)

	// Active wallet
	mux.HandleFunc("/balance", h.GetBalance)
	mux.HandleFunc("/transactions", h.TransactionHistory)
	mux.HandleFunc("/send", h.Send)
	mux.HandleFunc("/receive", h.Receive)
	mux.HandleFunc("/token", h.TokenInfo)

	// Swap
	mux.HandleFunc("/quote", h.GetQuote)
	mux.HandleFunc("/swap", h.Swap)

	return withAccessLog(mux, log)
}

func withAccessLog(next http.Handler, log zerolog.Logger) http.Handler {
	logged := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(next)
	return hlog.NewHandler(log)(logged)
}
