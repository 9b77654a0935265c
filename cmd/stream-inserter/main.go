// Command stream-inserter writes a synthetic weather workload through one
// stream inserter: several producers share the inserter, then the stream is
// closed and the server's reply is reported.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/szibis/stream-inserter/internal/cardinality"
	"github.com/szibis/stream-inserter/internal/client"
	"github.com/szibis/stream-inserter/internal/config"
	"github.com/szibis/stream-inserter/internal/health"
	"github.com/szibis/stream-inserter/internal/inserter"
	"github.com/szibis/stream-inserter/internal/logging"
	"github.com/szibis/stream-inserter/internal/request"
	"github.com/szibis/stream-inserter/internal/sender"
	"github.com/szibis/stream-inserter/internal/stats"
	"github.com/szibis/stream-inserter/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const weatherTable = "weather_demo"

func main() {
	cfg, err := config.Load("stream-inserter", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}
	if cfg.ShowVersion {
		fmt.Println("stream-inserter", config.Version())
		os.Exit(0)
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal("invalid configuration", logging.F("error", err.Error()))
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logging.SetLevel(level)

	if cfg.MemoryLimitRatio > 0 {
		limit, err := memlimit.SetGoMemLimitWithOpts(
			memlimit.WithRatio(cfg.MemoryLimitRatio),
			memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
		)
		if err != nil {
			logging.Warn("GOMEMLIMIT not set", logging.F("error", err.Error()))
		} else {
			logging.Debug("GOMEMLIMIT set", logging.F("bytes", limit))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Init(ctx, cfg.TelemetryConfig(), "stream-inserter", config.Version())
	if err != nil {
		logging.Fatal("failed to start telemetry", logging.F("error", err.Error()))
	}
	if tel.Enabled() {
		logging.SetHook(tel.NewLogHook())
	}

	cardCfg, err := cfg.CardinalityConfig()
	if err != nil {
		logging.Fatal("invalid cardinality settings", logging.F("error", err.Error()))
	}
	collector := stats.NewCollector(cardinality.New(cardCfg))
	go collector.StartPeriodicLogging(ctx, cfg.StatsInterval)

	clientCfg, err := cfg.ClientConfig()
	if err != nil {
		logging.Fatal("invalid client settings", logging.F("error", err.Error()))
	}
	db, err := client.Dial(clientCfg)
	if err != nil {
		logging.Fatal("failed to create client", logging.F("error", err.Error()))
	}
	defer db.Close()

	ins, err := db.NewStreamInserter(
		inserter.WithCapacity(cfg.BufferCapacity),
		inserter.WithMaxBatchBytes(int(cfg.MaxBatchBytes)),
		inserter.WithStats(collector),
		inserter.WithOnDrop(func(ev sender.DropEvent) {
			logging.Warn("envelope dropped", logging.F(
				"rows", ev.Envelope.Rows(),
				"error_type", string(ev.Type),
				"error", ev.Err.Error(),
			))
		}),
	)
	if err != nil {
		logging.Fatal("failed to open stream", logging.F("error", err.Error()))
	}

	checker := health.New()
	checker.RegisterReadiness("channel", db.Ready)
	checker.RegisterReadiness("sender", func(context.Context) error {
		if st := ins.SenderState(); st == sender.StateFailed {
			return fmt.Errorf("last envelope %s", st)
		}
		return nil
	})
	statsServer := startStatsServer(cfg.StatsAddr, collector, checker)

	logging.Info("stream-inserter started", logging.F(
		"endpoint", cfg.Endpoint,
		"database", cfg.Database,
		"records", cfg.Records,
		"producers", cfg.Producers,
		"rows_per_insert", cfg.RowsPerInsert,
	))

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.Producers; p++ {
		records := cfg.Records / cfg.Producers
		if p < cfg.Records%cfg.Producers {
			records++
		}
		g.Go(func() error {
			return produce(gctx, ins, p, records, cfg.RowsPerInsert)
		})
	}
	if err := g.Wait(); err != nil {
		logging.Error("producer failed", logging.F("error", err.Error()))
	}

	if err := ins.WriteDone(); err != nil {
		logging.Warn("closing the write side failed", logging.F("error", err.Error()))
	}
	finishErr := ins.Finish()
	snap := collector.Snapshot()
	if finishErr != nil {
		logging.Error("stream finished with error", logging.F(
			"error", finishErr.Error(),
			"rows_sent", snap.RowsSent,
			"rows_dropped", snap.RowsDropped,
		))
	} else {
		resp, _ := ins.Response()
		logging.Info("stream finished", logging.F(
			"rows_sent", snap.RowsSent,
			"rows_dropped", snap.RowsDropped,
			"rows_rejected", resp.GetPartialSuccess().GetRejectedDataPoints(),
			"envelopes", snap.EnvelopesSent,
			"retries", snap.Retries,
			"series", snap.Series,
			"duration", time.Since(start).String(),
		))
	}

	checker.SetShuttingDown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), tel.ShutdownTimeout())
	defer cancel()
	if err := statsServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("stats server shutdown", logging.F("error", err.Error()))
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		logging.Warn("telemetry shutdown", logging.F("error", err.Error()))
	}
	if finishErr != nil {
		os.Exit(1)
	}
}

// produce writes records weather readings for one collector in inserts of
// rowsPerInsert rows.
func produce(ctx context.Context, ins *inserter.Inserter, collector, records, rowsPerInsert int) error {
	b, err := request.NewBuilder(weatherTable,
		request.Tag("collector_id"),
		request.Field("temperature"),
		request.Field("humidity"),
	)
	if err != nil {
		return err
	}
	id := fmt.Sprintf("collector-%d", collector)
	ts := time.Now()
	for i := 0; i < records; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		temperature := float32(-10 + rand.Float64()*45)
		humidity := int32(rand.IntN(101))
		if err := b.AddRow(ts.Add(time.Duration(i)*time.Millisecond), id, temperature, humidity); err != nil {
			return err
		}
		if b.Len() == rowsPerInsert || i == records-1 {
			if err := ins.Write(b.Build()); err != nil {
				return fmt.Errorf("%s: %w", id, err)
			}
		}
	}
	return nil
}

func startStatsServer(addr string, collector *stats.Collector, checker *health.Checker) *http.Server {
	promHandler := promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{DisableCompression: true})

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promHandler.ServeHTTP(w, r)
		collector.ServeHTTP(w, r)
	})
	checker.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("stats endpoint started", logging.F("addr", addr, "path", "/metrics"))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("stats server error", logging.F("error", err.Error()))
		}
	}()
	return srv
}
