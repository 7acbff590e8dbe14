package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SecSubledger/internal/config"
	"SecSubledger/internal/engine"
	"SecSubledger/internal/ingestion"
	"SecSubledger/internal/observability"
	"SecSubledger/internal/persistence"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := observability.NewLogger("subledger")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn().Str("signal", sig.String()).Msg("cancelling run")
		cancel()
	}()

	metrics := observability.NewMetrics()
	metricsServer := startMetricsServer(cfg.MetricsAddr, logger)
	defer shutdownMetricsServer(metricsServer)

	// --- Staging feeds ---
	trades, err := ingestion.LoadTrades(cfg.Data.Trades)
	if err != nil {
		logger.Fatal().Err(err).Msg("load trades")
	}
	positions, err := ingestion.LoadPositions(cfg.Data.Positions)
	if err != nil {
		logger.Fatal().Err(err).Msg("load positions")
	}
	valuations, err := ingestion.LoadValuations(cfg.Data.Valuations)
	if err != nil {
		logger.Fatal().Err(err).Msg("load valuations")
	}
	mtmSeries, err := ingestion.LoadValuations(cfg.Data.MTMTimeseries)
	if err != nil {
		logger.Fatal().Err(err).Msg("load mtm timeseries")
	}
	logger.Info().
		Int("trades", len(trades)).
		Int("positions", len(positions)).
		Int("valuations", len(valuations)).
		Int("mtm_series", len(mtmSeries)).
		Msg("staging feeds loaded")

	// --- Run the engine ---
	eng := engine.New(engine.Config{
		Chart:             cfg.Chart(),
		Tolerance:         cfg.Tolerance,
		Workers:           cfg.Workers,
		ClampNegativeCost: cfg.ClampNegativeCost,
	}, observability.NewLogger("engine"), metrics)

	out, err := eng.Run(ctx, engine.Inputs{
		Trades:     trades,
		Positions:  positions,
		Valuations: valuations,
		MTMSeries:  mtmSeries,
		AsOfDate:   cfg.AsOfDate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("engine run")
	}

	// --- Exports ---
	if err := ingestion.WriteOutputs(cfg.OutputDir, out); err != nil {
		logger.Fatal().Err(err).Msg("write outputs")
	}
	logger.Info().Str("dir", cfg.OutputDir).Msg("outputs exported")

	breaks := ingestion.CollectBreaks(out)
	runID := uuid.New()

	// --- Postgres (optional) ---
	if cfg.PostgresDSN != "" {
		if err := persistRun(ctx, cfg, runID, out, breaks, metrics, logger); err != nil {
			logger.Fatal().Err(err).Msg("persist run")
		}
	}

	// --- NATS break publishing (optional) ---
	if cfg.NATSURL != "" && len(breaks) > 0 {
		publishBreaks(ctx, cfg.NATSURL, breaks, metrics, logger)
	}

	logger.Info().
		Str("run_id", runID.String()).
		Int("postings", len(out.Postings)).
		Int("breaks", len(breaks)).
		Msg("run complete")
}

func persistRun(
	ctx context.Context,
	cfg config.Config,
	runID uuid.UUID,
	out *engine.Outputs,
	breaks []ingestion.BreakEvent,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) error {
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	migrator := persistence.NewMigrator(db, "migrations", observability.NewLogger("migrator"))
	if err := migrator.Up(ctx); err != nil {
		return err
	}

	writer := persistence.NewSubledgerWriter(db, 500, observability.NewLogger("persistence"), metrics)
	if err := writer.WriteRun(ctx, runID, out); err != nil {
		return err
	}
	return writer.WriteBreaks(ctx, runID, toBreakRows(breaks))
}

func toBreakRows(events []ingestion.BreakEvent) []persistence.BreakRow {
	rows := make([]persistence.BreakRow, 0, len(events))
	for _, e := range events {
		row := persistence.BreakRow{
			Control:    e.Control,
			CustomerID: e.CustomerID,
			Instrument: e.Instrument,
			Ccy:        e.Ccy,
			TradeID:    e.TradeID,
			Source:     e.Source,
			Derived:    e.Derived,
			Difference: e.Difference,
		}
		if e.Date != "" {
			if d, err := time.Parse("2006-01-02", e.Date); err == nil {
				row.Date = sql.NullTime{Time: d, Valid: true}
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func publishBreaks(
	ctx context.Context,
	url string,
	breaks []ingestion.BreakEvent,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) {
	nc, js, err := ingestion.ConnectNATS(url, logger)
	if err != nil {
		logger.Error().Err(err).Msg("nats connect, skipping break publish")
		return
	}
	defer nc.Close()

	if err := ingestion.EnsureBreakStream(ctx, js); err != nil {
		logger.Error().Err(err).Msg("ensure break stream, skipping break publish")
		return
	}

	publisher := ingestion.NewBreakPublisher(js, observability.NewLogger("publisher"), metrics)
	publisher.Publish(ctx, breaks)
	logger.Info().Int("breaks", len(breaks)).Msg("breaks published")
}

func startMetricsServer(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("metrics server")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	return srv
}

func shutdownMetricsServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
