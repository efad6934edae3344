package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/amp-labs/vending/logger"
	"github.com/amp-labs/vending/shutdown"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// serveMetrics exposes /metrics on VENDING_METRICS_ADDR until shutdown. It
// does nothing when the address is empty.
func (a *app) serveMetrics(ctx context.Context) error {
	addr := a.cfg.MetricsAddr
	if addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	log := logger.Get(ctx)

	go func() {
		log.Info("Serving metrics", "addr", listener.Addr().String())

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) { //nolint:noinlineerr
			log.Error("Metrics server failed", "error", err)
		}
	}()

	shutdown.BeforeShutdown(func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(closeCtx)
	})

	return nil
}
