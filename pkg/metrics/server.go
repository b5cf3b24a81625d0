package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Retrieval-Experiment-Platform/pkg/health"
)

// StartServer serves /metrics plus liveness and readiness probes on port.
// The returned function shuts the server down.
func StartServer(m *Metrics, checker *health.Checker, port int) (shutdown func(context.Context) error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if checker != nil {
		mux.HandleFunc("/healthz", checker.LiveHandler())
		mux.HandleFunc("/readyz", checker.ReadyHandler())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
