// Package collector orchestrates the acquisition pipeline: for each region
// it fetches from the primary source, falls back to the backup source on
// failure, runs the consistency check, and hands accepted batches to the
// partitioned store. The only structured output is the per-region outcome
// report; no region-level failure ever escapes Run.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/agrovale/climate-collector/internal/domain"
	"github.com/agrovale/climate-collector/internal/observability"
)

// SourceClient fetches observation batches from one provider.
type SourceClient interface {
	Name() string
	FetchCurrent(ctx context.Context, region domain.Region) (domain.Batch, error)
	FetchHistorical(ctx context.Context, region domain.Region, years int) (domain.Batch, error)
}

// Store persists an accepted batch into its partition and reports how many
// rows were appended.
type Store interface {
	Write(batch domain.Batch, regionID, source string, mode domain.Mode) (int, error)
}

// Collector runs collection passes over the configured regions.
type Collector struct {
	primary SourceClient
	backup  SourceClient
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics

	// historicalYears is the backfill depth for historical-mode passes.
	historicalYears int
}

// New wires a Collector. The primary client is tried first for every
// region; the backup client is only consulted after a primary failure,
// empty batch, or consistency rejection.
func New(primary, backup SourceClient, store Store, logger *slog.Logger, metrics *observability.Metrics, historicalYears int) *Collector {
	return &Collector{
		primary:         primary,
		backup:          backup,
		store:           store,
		logger:          logger,
		metrics:         metrics,
		historicalYears: historicalYears,
	}
}

// Run executes one collection run and returns the per-region outcome
// report. ModeBoth runs the current pass followed by the historical pass,
// independently, with the same fallback logic in each. A failure on one
// region never aborts the remaining regions; a cancelled context stops
// before the next region.
func (c *Collector) Run(ctx context.Context, mode domain.Mode, regions []domain.Region) domain.Report {
	start := domain.Clock().Now()
	c.metrics.CollectorRunning.Set(1)
	defer c.metrics.CollectorRunning.Set(0)

	passes := []domain.Mode{mode}
	if mode == domain.ModeBoth {
		passes = []domain.Mode{domain.ModeCurrent, domain.ModeHistorical}
	}

	report := domain.Report{Mode: mode, StartedAt: start}
	for _, pass := range passes {
		c.logger.Info("collection pass starting", "mode", pass, "regions", len(regions))
		for _, region := range regions {
			if ctx.Err() != nil {
				c.logger.Warn("collection interrupted", "mode", pass, "reason", ctx.Err())
				break
			}
			outcome := c.collectRegion(ctx, pass, region)
			report.Outcomes = append(report.Outcomes, outcome)

			result := "succeeded"
			if !outcome.Succeeded() {
				result = "failed"
			}
			c.metrics.RegionOutcomes.WithLabelValues(string(pass), result).Inc()
		}
	}

	report.FinishedAt = domain.Clock().Now()
	c.metrics.RunDuration.Observe(report.FinishedAt.Sub(start).Seconds())
	c.logger.Info("collection run finished", "mode", mode, "summary", report.Summary())
	return report
}

// collectRegion tries the primary source, then the backup. A persistence
// failure marks the region failed without a fallback attempt: the write
// would fail identically for the backup's batch.
func (c *Collector) collectRegion(ctx context.Context, mode domain.Mode, region domain.Region) domain.Outcome {
	c.logger.Info("processing region", "region", region.ID, "mode", mode)

	records, primaryErr := c.attempt(ctx, c.primary, mode, region)
	if primaryErr == nil {
		c.logger.Info("primary source succeeded", "region", region.ID, "mode", mode, "records", records)
		return domain.Outcome{
			Region:  region.ID,
			Mode:    mode,
			Source:  c.primary.Name(),
			Records: records,
		}
	}
	if errors.Is(primaryErr, domain.ErrPersistence) {
		c.logger.Error("persisting primary batch failed", "region", region.ID, "mode", mode, "error", primaryErr)
		return failedOutcome(region, mode, primaryErr.Error())
	}

	c.logger.Warn("primary source failed, activating fallback",
		"region", region.ID, "mode", mode, "error", primaryErr)
	c.metrics.FallbackActivations.WithLabelValues(string(mode)).Inc()

	records, backupErr := c.attempt(ctx, c.backup, mode, region)
	if backupErr == nil {
		c.logger.Info("backup source succeeded", "region", region.ID, "mode", mode, "records", records)
		return domain.Outcome{
			Region:   region.ID,
			Mode:     mode,
			Source:   c.backup.Name(),
			Records:  records,
			Fallback: true,
		}
	}
	if errors.Is(backupErr, domain.ErrPersistence) {
		c.logger.Error("persisting backup batch failed", "region", region.ID, "mode", mode, "error", backupErr)
		return failedOutcome(region, mode, backupErr.Error())
	}

	reason := fmt.Sprintf("primary: %v; backup: %v", primaryErr, backupErr)
	c.logger.Error("no source produced data for region", "region", region.ID, "mode", mode,
		"primary_error", primaryErr, "backup_error", backupErr)
	return failedOutcome(region, mode, reason)
}

// attempt runs fetch → consistency check → store for one source.
func (c *Collector) attempt(ctx context.Context, client SourceClient, mode domain.Mode, region domain.Region) (int, error) {
	source := client.Name()
	fetchStart := domain.Clock().Now()

	var (
		batch domain.Batch
		err   error
	)
	if mode == domain.ModeHistorical {
		batch, err = client.FetchHistorical(ctx, region, c.historicalYears)
	} else {
		batch, err = client.FetchCurrent(ctx, region)
	}
	c.metrics.FetchDuration.WithLabelValues(source, string(mode)).
		Observe(domain.Clock().Now().Sub(fetchStart).Seconds())

	if err != nil {
		c.metrics.FetchAttempts.WithLabelValues(source, string(mode), "error").Inc()
		return 0, err
	}
	if batch.Empty() {
		c.metrics.FetchAttempts.WithLabelValues(source, string(mode), "empty").Inc()
		return 0, fmt.Errorf("%s returned no records: %w", source, domain.ErrEmptyBatch)
	}
	c.metrics.FetchAttempts.WithLabelValues(source, string(mode), "success").Inc()

	check, err := domain.ValidateBatch(batch, source)
	if err != nil {
		c.metrics.BatchesRejected.WithLabelValues(source).Inc()
		return 0, err
	}
	for _, warning := range check.Warnings {
		c.logger.Warn("batch quality warning", "region", region.ID, "source", source, "warning", warning)
	}

	records, err := c.store.Write(batch, region.ID, source, mode)
	if err != nil {
		return 0, err
	}
	c.metrics.RecordsWritten.WithLabelValues(source, string(mode)).Add(float64(records))
	return records, nil
}

func failedOutcome(region domain.Region, mode domain.Mode, reason string) domain.Outcome {
	return domain.Outcome{
		Region:        region.ID,
		Mode:          mode,
		Source:        domain.SourceNone,
		FailureReason: reason,
	}
}
