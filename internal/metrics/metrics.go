package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BalanceFetches counts balance fetch attempts by asset and outcome
	// (ok, rate_limited, error).
	BalanceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wallet_balance_fetches_total", Help: "Balance fetch attempts"},
		[]string{"asset", "outcome"},
	)
	// SwapResults counts finished swaps by the state they ended in.
	SwapResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wallet_swaps_total", Help: "Swaps by final state"},
		[]string{"pair", "state"},
	)
	// SendResults counts sends by asset and outcome (ok, failed).
	SendResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "wallet_sends_total", Help: "Sends by outcome"},
		[]string{"asset", "outcome"},
	)
	// SubmittedTransactions counts transactions sent to the ledger.
	SubmittedTransactions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "wallet_transactions_submitted_total", Help: "Transactions submitted"},
	)
)

func init() {
	prometheus.MustRegister(BalanceFetches, SwapResults, SendResults, SubmittedTransactions)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
