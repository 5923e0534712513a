package inmet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrovale/climate-collector/internal/domain"
	"github.com/agrovale/climate-collector/internal/retry"
)

// recentWindow bounds current-mode collection to the last few days of
// hourly data.
const recentWindow = 7 * 24 * time.Hour

// maxHourlyBackfillYears caps the hourly-for-date historical path: a full
// multi-year backfill at hourly resolution would be enormous.
const maxHourlyBackfillYears = 5

// Config carries the client's retry knobs.
type Config struct {
	MaxAttempts int
	RetryDelay  time.Duration
	ChunkPause  time.Duration
}

// Client is the backup source client. It probes the station API's
// capability set and degrades to the richest accessor available instead of
// assuming a fixed interface.
type Client struct {
	api    StationAPI
	cfg    Config
	logger *slog.Logger
}

// New creates the backup client on top of a station API.
func New(api StationAPI, cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Client{api: api, cfg: cfg, logger: logger}
}

// Name returns the source tag written into records and partition paths.
func (c *Client) Name() string { return domain.SourceINMET }

func (c *Client) policy() retry.Policy {
	return retry.Policy{MaxAttempts: c.cfg.MaxAttempts, Delay: retry.Exponential(c.cfg.RetryDelay)}
}

// FetchCurrent fetches the last week of hourly observations for the
// region's station.
func (c *Client) FetchCurrent(ctx context.Context, region domain.Region) (domain.Batch, error) {
	if region.Station == "" {
		return domain.Batch{}, fmt.Errorf("region %s has no inmet station: %w", region.ID, domain.ErrSourceUnavailable)
	}
	if !hasCapability(c.api, CapabilityHourly) {
		return domain.Batch{}, fmt.Errorf("inmet hourly data: %w", domain.ErrSourceUnavailable)
	}

	now := domain.Clock().Now()
	start := now.Add(-recentWindow)

	var batch domain.Batch
	err := c.policy().Do(ctx, func() error {
		b, err := c.api.HourlyData(ctx, region.Station, start, now)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return domain.Batch{}, fmt.Errorf("inmet current for %s: %v: %w", region.ID, err, domain.ErrSourceUnavailable)
	}

	batch = filterSince(batch, start)
	return annotate(batch, region), nil
}

// FetchHistorical backfills years of observations, degrading through the
// capability set: daily-range chunked by year, a single historical-range
// call, or month-by-month hourly data capped at five years. Partial results
// are accepted; individual chunk failures are logged and skipped.
func (c *Client) FetchHistorical(ctx context.Context, region domain.Region, years int) (domain.Batch, error) {
	if region.Station == "" {
		return domain.Batch{}, fmt.Errorf("region %s has no inmet station: %w", region.ID, domain.ErrSourceUnavailable)
	}

	now := domain.Clock().Now()
	start := now.AddDate(-years, 0, 0)

	var (
		batch domain.Batch
		err   error
	)
	switch {
	case hasCapability(c.api, CapabilityDaily):
		batch, err = c.historicalDaily(ctx, region.Station, start, now)
	case hasCapability(c.api, CapabilityHistorical):
		batch, err = c.historicalRange(ctx, region.Station, start, now)
	case hasCapability(c.api, CapabilityHourlyForDate):
		batch, err = c.historicalHourly(ctx, region.Station, now, years)
	default:
		return domain.Batch{}, fmt.Errorf("inmet has no historical capability: %w", domain.ErrSourceUnavailable)
	}
	if err != nil {
		return domain.Batch{}, err
	}

	batch = dedupByDatetime(batch)
	c.logger.Info("inmet historical collection finished", "region", region.ID, "records", len(batch.Records))
	return annotate(batch, region), nil
}

// historicalDaily chunks the range into ~1-year windows against the daily
// endpoint, skipping failed windows.
func (c *Client) historicalDaily(ctx context.Context, station string, start, end time.Time) (domain.Batch, error) {
	var merged domain.Batch
	for windowStart := start; windowStart.Before(end); {
		windowEnd := windowStart.AddDate(1, 0, 0)
		if windowEnd.After(end) {
			windowEnd = end
		}

		var chunk domain.Batch
		err := c.policy().Do(ctx, func() error {
			b, err := c.api.DailyData(ctx, station, windowStart, windowEnd)
			if err != nil {
				return err
			}
			chunk = b
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.Batch{}, ctx.Err()
			}
			c.logger.Warn("inmet daily chunk failed, skipping",
				"station", station,
				"window_start", windowStart.Format("2006-01-02"),
				"window_end", windowEnd.Format("2006-01-02"),
				"error", err)
		} else {
			merged = appendBatch(merged, chunk)
		}

		windowStart = windowEnd
		if windowStart.Before(end) && c.cfg.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return domain.Batch{}, ctx.Err()
			case <-domain.Clock().After(c.cfg.ChunkPause):
			}
		}
	}
	return merged, nil
}

// historicalRange issues a single ranged call for providers that expose an
// explicit historical accessor.
func (c *Client) historicalRange(ctx context.Context, station string, start, end time.Time) (domain.Batch, error) {
	var batch domain.Batch
	err := c.policy().Do(ctx, func() error {
		b, err := c.api.HistoricalData(ctx, station, start, end)
		if err != nil {
			return err
		}
		batch = b
		return nil
	})
	if err != nil {
		return domain.Batch{}, fmt.Errorf("inmet historical for %s: %v: %w", station, err, domain.ErrSourceUnavailable)
	}
	return batch, nil
}

// historicalHourly walks month by month through the hourly-for-date
// accessor, capped at maxHourlyBackfillYears.
func (c *Client) historicalHourly(ctx context.Context, station string, end time.Time, years int) (domain.Batch, error) {
	if years > maxHourlyBackfillYears {
		years = maxHourlyBackfillYears
	}

	start := end.AddDate(-years, 0, 0)
	var merged domain.Batch
	// Anchor to the first of the month; stepping a day-30 date by one month
	// would skip February.
	for first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC); first.Before(end); first = first.AddDate(0, 1, 0) {
		var chunk domain.Batch
		err := c.policy().Do(ctx, func() error {
			b, err := c.api.HourlyDataForDate(ctx, station, first)
			if err != nil {
				return err
			}
			chunk = b
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return domain.Batch{}, ctx.Err()
			}
			c.logger.Warn("inmet hourly month failed, skipping",
				"station", station, "month", first.Format("2006-01"), "error", err)
		} else {
			merged = appendBatch(merged, chunk)
		}

		if c.cfg.ChunkPause > 0 {
			select {
			case <-ctx.Done():
				return domain.Batch{}, ctx.Err()
			case <-domain.Clock().After(c.cfg.ChunkPause):
			}
		}
	}
	return merged, nil
}

// appendBatch unions two chunks. The first chunk fixes the column order;
// columns newly seen in later chunks are appended at the end.
func appendBatch(dst, src domain.Batch) domain.Batch {
	if src.Empty() {
		return dst
	}
	if dst.Columns == nil {
		dst.Columns = src.Columns
	} else {
		for _, col := range src.Columns {
			if !dst.HasColumn(col) {
				dst.Columns = append(dst.Columns, col)
			}
		}
	}
	dst.Records = append(dst.Records, src.Records...)
	return dst
}

// dedupByDatetime removes records repeating an already-seen DATETIME,
// keeping the first occurrence. Chunk boundaries can overlap.
func dedupByDatetime(b domain.Batch) domain.Batch {
	if !b.HasColumn(domain.ColumnDatetime) {
		return b
	}
	seen := make(map[string]struct{}, len(b.Records))
	out := b.Records[:0]
	for _, rec := range b.Records {
		key := domain.FormatValue(rec[domain.ColumnDatetime])
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	b.Records = out
	return b
}

// filterSince keeps records whose DATETIME parses and is not older than the
// cutoff. Records without a parseable DATETIME are kept; dropping them
// silently would hide provider schema drift.
func filterSince(b domain.Batch, cutoff time.Time) domain.Batch {
	if !b.HasColumn(domain.ColumnDatetime) {
		return b
	}
	var kept []domain.Record
	for _, rec := range b.Records {
		s := domain.FormatValue(rec[domain.ColumnDatetime])
		ts, err := time.Parse("2006-01-02 15:04:05", s)
		if err != nil || !ts.Before(cutoff) {
			kept = append(kept, rec)
		}
	}
	b.Records = kept
	return b
}

// annotate stamps the collection metadata columns onto every record.
func annotate(b domain.Batch, region domain.Region) domain.Batch {
	if b.Empty() {
		return b
	}
	for _, col := range []string{
		domain.ColumnSource, domain.ColumnRegion, domain.ColumnLatitude, domain.ColumnLongitude,
	} {
		if !b.HasColumn(col) {
			b.Columns = append(b.Columns, col)
		}
	}
	for _, rec := range b.Records {
		rec[domain.ColumnSource] = domain.SourceINMET
		rec[domain.ColumnRegion] = region.ID
		rec[domain.ColumnLatitude] = region.Latitude
		rec[domain.ColumnLongitude] = region.Longitude
	}
	return b
}
