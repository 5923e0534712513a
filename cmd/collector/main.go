package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	httpadapter "github.com/agrovale/climate-collector/internal/adapter/http"
	"github.com/agrovale/climate-collector/internal/adapter/inmet"
	kafkaadapter "github.com/agrovale/climate-collector/internal/adapter/kafka"
	"github.com/agrovale/climate-collector/internal/adapter/openweather"
	"github.com/agrovale/climate-collector/internal/collector"
	"github.com/agrovale/climate-collector/internal/config"
	"github.com/agrovale/climate-collector/internal/domain"
	"github.com/agrovale/climate-collector/internal/observability"
	"github.com/agrovale/climate-collector/internal/registry"
	"github.com/agrovale/climate-collector/internal/scheduler"
	"github.com/agrovale/climate-collector/internal/store"
)

func main() {
	modeFlag := flag.String("mode", "current", "collection mode: current, historical or both")
	regionsFlag := flag.String("regions", "", "comma-separated region ids (default: all configured regions)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	mode, err := domain.ParseMode(*modeFlag)
	if err != nil {
		logger.Error("invalid mode flag", "error", err)
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	reg := registry.Load(cfg.RegionsFile, logger)

	regions := reg.All()
	if *regionsFlag != "" {
		regions, err = reg.Subset(strings.Split(*regionsFlag, ","))
		if err != nil {
			logger.Error("invalid regions flag", "error", err)
			os.Exit(1)
		}
	}

	st, err := store.New(cfg.DataRoot, logger)
	if err != nil {
		// The one setup failure that aborts the whole run.
		logger.Error("data root unusable", "error", err)
		os.Exit(1)
	}

	primary := openweather.New(openweather.Config{
		APIKey:            cfg.OpenWeatherAPIKey,
		BaseURL:           cfg.OpenWeatherBaseURL,
		MaxAttempts:       cfg.MaxAttempts,
		RetryDelay:        cfg.RetryDelay,
		WindowPause:       cfg.WindowPause,
		CurrentTimeout:    cfg.CurrentTimeout,
		HistoricalTimeout: cfg.HistoricalTimeout,
	}, logger)

	stationAPI := inmet.NewAPI(cfg.INMETBaseURL, cfg.INMETToken, cfg.HistoricalTimeout, logger)
	backup := inmet.New(stationAPI, inmet.Config{
		MaxAttempts: cfg.MaxAttempts,
		RetryDelay:  cfg.RetryDelay,
		ChunkPause:  cfg.WindowPause,
	}, logger)

	col := collector.New(primary, backup, st, logger, metrics, cfg.HistoricalYears)

	// Report publishing is feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaReportTopic, logger)
		logger.Info("kafka report publishing enabled", "topic", cfg.KafkaReportTopic)
	} else {
		logger.Info("kafka report publishing disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Schedule == "" {
		runOnce(ctx, col, publisher, mode, regions, logger)
		return
	}

	runScheduled(ctx, cfg, col, publisher, mode, regions, logger)
}

// runOnce executes a single collection run and exits. Partial success is
// normal operation, not an error exit.
func runOnce(ctx context.Context, col *collector.Collector, publisher *kafkaadapter.Publisher, mode domain.Mode, regions []domain.Region, logger *slog.Logger) {
	report := col.Run(ctx, mode, regions)

	for _, outcome := range report.Outcomes {
		if outcome.Succeeded() {
			logger.Info("region collected",
				"region", outcome.Region, "mode", outcome.Mode,
				"source", outcome.Source, "records", outcome.Records,
				"fallback", outcome.Fallback)
		} else {
			logger.Error("region failed",
				"region", outcome.Region, "mode", outcome.Mode,
				"reason", outcome.FailureReason)
		}
	}
	logger.Info("run complete", "summary", report.Summary())

	publishReport(ctx, publisher, report, logger)
	closePublisher(publisher, logger)
}

// runScheduled keeps the process alive, collecting on the cron schedule and
// serving health/metrics until a signal arrives.
func runScheduled(ctx context.Context, cfg *config.Config, col *collector.Collector, publisher *kafkaadapter.Publisher, mode domain.Mode, regions []domain.Region, logger *slog.Logger) {
	publishing := &publishingRunner{col: col, publisher: publisher, logger: logger}
	sched := scheduler.New(publishing, mode, regions, logger)
	if err := sched.Start(ctx, cfg.Schedule); err != nil {
		logger.Error("invalid schedule", "schedule", cfg.Schedule, "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, sched, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closePublisher(publisher, logger)

	logger.Info("shutdown complete")
}

// publishingRunner decorates the collector so scheduled runs also publish
// their reports.
type publishingRunner struct {
	col       *collector.Collector
	publisher *kafkaadapter.Publisher
	logger    *slog.Logger
}

func (r *publishingRunner) Run(ctx context.Context, mode domain.Mode, regions []domain.Region) domain.Report {
	report := r.col.Run(ctx, mode, regions)
	publishReport(ctx, r.publisher, report, r.logger)
	return report
}

func publishReport(ctx context.Context, publisher *kafkaadapter.Publisher, report domain.Report, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, report); err != nil {
		logger.Error("report publish failed", "error", err)
	}
}

func closePublisher(publisher *kafkaadapter.Publisher, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
}
