// Command ingest-sink accepts write streams and counts what arrives. It
// stands in for the database when running the stream-inserter demo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/szibis/stream-inserter/internal/config"
	"github.com/szibis/stream-inserter/internal/health"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/receiver"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
)

func main() {
	cfg, err := config.Load("ingest-sink", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	if cfg.ShowVersion {
		fmt.Println("ingest-sink", config.Version())
		os.Exit(0)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	logging.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rcv, err := receiver.New(cfg.ReceiverConfig())
	if err != nil {
		logging.Fatal("failed to create receiver", logging.F("error", err.Error()))
	}
	rcv.SetHandler(func(database string, req *colmetricspb.ExportMetricsServiceRequest) error {
		logging.Debug("envelope received", logging.F("database", database, "units", len(req.ResourceMetrics)))
		return nil
	})
	go func() {
		if err := rcv.Start(); err != nil {
			logging.Error("ingest receiver error", logging.F("error", err.Error()))
			stop()
		}
	}()

	checker := health.New()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	checker.Register(mux)
	srv := &http.Server{Addr: cfg.StatsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("stats server error", logging.F("error", err.Error()))
		}
	}()

	logging.Info("ingest-sink started", logging.F("listen", cfg.Listen, "stats_addr", cfg.StatsAddr))
	<-ctx.Done()

	logging.Info("shutting down")
	checker.SetShuttingDown()
	rcv.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	st := rcv.Stats()
	logging.Info("shutdown complete", logging.F(
		"streams", st.Streams,
		"envelopes", st.Envelopes,
		"rows", st.Rows,
		"rejected_points", st.RejectedPoints,
	))
}
