// Package openweather implements the primary source client against the
// OpenWeather HTTP API: current conditions from /2.5/weather and multi-year
// history from /3.0/onecall/timemachine, requested in roughly one-year
// windows.
package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/agrovale/climate-collector/internal/domain"
	"github.com/agrovale/climate-collector/internal/retry"
)

// Config carries the client's knobs; zero values get sensible defaults in New.
type Config struct {
	APIKey            string
	BaseURL           string
	MaxAttempts       int
	RetryDelay        time.Duration
	WindowPause       time.Duration
	CurrentTimeout    time.Duration
	HistoricalTimeout time.Duration
}

// Client talks to OpenWeather. Current-data requests use a short timeout and
// a fixed retry delay; historical requests use a longer timeout and
// exponential backoff. A shared circuit breaker stops hammering the API when
// it is hard-down.
type Client struct {
	cfg        Config
	current    *http.Client
	historical *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// New creates the primary source client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org/data"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CurrentTimeout <= 0 {
		cfg.CurrentTimeout = 10 * time.Second
	}
	if cfg.HistoricalTimeout <= 0 {
		cfg.HistoricalTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openweather",
		Timeout: 2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"client", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		cfg:        cfg,
		current:    &http.Client{Timeout: cfg.CurrentTimeout},
		historical: &http.Client{Timeout: cfg.HistoricalTimeout},
		breaker:    breaker,
		logger:     logger,
	}
}

// Name returns the source tag written into records and partition paths.
func (c *Client) Name() string { return domain.SourceOpenWeather }

// currentColumns fixes the CSV field order for current-conditions records.
var currentColumns = []string{
	domain.ColumnDate, domain.ColumnTime,
	"temperature", "feels_like", "temp_min", "temp_max",
	"pressure", "humidity",
	"wind_speed", "wind_deg", "clouds",
	"weather_main", "weather_description", "rain_1h",
	domain.ColumnSource, domain.ColumnRegion,
	domain.ColumnLatitude, domain.ColumnLongitude,
}

// historicalColumns fixes the CSV field order for timemachine records.
var historicalColumns = []string{
	domain.ColumnDate, domain.ColumnTime,
	"temperature", "feels_like", "pressure", "humidity",
	"dew_point", "uvi", "clouds", "visibility",
	"wind_speed", "wind_deg", "wind_gust",
	"weather_id", "weather_main", "weather_description",
	"rain_1h", "snow_1h",
	domain.ColumnSource, domain.ColumnRegion,
	domain.ColumnLatitude, domain.ColumnLongitude,
	"timestamp",
}

type currentResponse struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Wind *struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds *struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Rain map[string]float64 `json:"rain"`
}

type timemachineResponse struct {
	Data []historicalPoint `json:"data"`
}

type historicalPoint struct {
	Dt         int64   `json:"dt"`
	Temp       float64 `json:"temp"`
	FeelsLike  float64 `json:"feels_like"`
	Pressure   float64 `json:"pressure"`
	Humidity   float64 `json:"humidity"`
	DewPoint   float64 `json:"dew_point"`
	UVI        float64 `json:"uvi"`
	Clouds     float64 `json:"clouds"`
	Visibility float64 `json:"visibility"`
	WindSpeed  float64 `json:"wind_speed"`
	WindDeg    float64 `json:"wind_deg"`
	WindGust   float64 `json:"wind_gust"`
	Weather    []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain map[string]float64 `json:"rain"`
	Snow map[string]float64 `json:"snow"`
}

// FetchCurrent requests current conditions for the region's coordinates.
// The record is stamped with the collection time, matching the "one row per
// run" shape of the current-mode partitions.
func (c *Client) FetchCurrent(ctx context.Context, region domain.Region) (domain.Batch, error) {
	if c.cfg.APIKey == "" {
		return domain.Batch{}, fmt.Errorf("openweather api key not configured: %w", domain.ErrSourceUnavailable)
	}

	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", region.Latitude))
	q.Set("lon", fmt.Sprintf("%g", region.Longitude))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	reqURL := fmt.Sprintf("%s/2.5/weather?%s", c.cfg.BaseURL, q.Encode())

	policy := retry.Policy{MaxAttempts: c.cfg.MaxAttempts, Delay: retry.Fixed(c.cfg.RetryDelay)}

	var resp currentResponse
	err := policy.Do(ctx, func() error {
		body, err := c.get(ctx, c.current, reqURL)
		if err != nil {
			return err
		}
		return retryIfUnparseable(json.Unmarshal(body, &resp))
	})
	if err != nil {
		return domain.Batch{}, fmt.Errorf("openweather current for %s: %v: %w", region.ID, err, domain.ErrSourceUnavailable)
	}

	now := domain.Clock().Now()
	rec := domain.Record{
		domain.ColumnDate:      now.Format("2006-01-02"),
		domain.ColumnTime:      now.Format("15:04:05"),
		"temperature":          resp.Main.Temp,
		"feels_like":           resp.Main.FeelsLike,
		"temp_min":             resp.Main.TempMin,
		"temp_max":             resp.Main.TempMax,
		"pressure":             resp.Main.Pressure,
		"humidity":             resp.Main.Humidity,
		"rain_1h":              rainAmount(resp.Rain, "1h"),
		domain.ColumnSource:    domain.SourceOpenWeather,
		domain.ColumnRegion:    region.ID,
		domain.ColumnLatitude:  region.Latitude,
		domain.ColumnLongitude: region.Longitude,
	}
	if resp.Wind != nil {
		rec["wind_speed"] = resp.Wind.Speed
		rec["wind_deg"] = resp.Wind.Deg
	}
	if resp.Clouds != nil {
		rec["clouds"] = resp.Clouds.All
	}
	if len(resp.Weather) > 0 {
		rec["weather_main"] = resp.Weather[0].Main
		rec["weather_description"] = resp.Weather[0].Description
	}

	return domain.Batch{Columns: currentColumns, Records: []domain.Record{rec}}, nil
}

// FetchHistorical requests years of history in successive ~1-year windows
// spanning [now-years, now]. Each window is fetched independently with
// exponential backoff; failed windows are logged and skipped so partial
// results still produce a batch. A short pause between windows keeps the
// request rate polite.
func (c *Client) FetchHistorical(ctx context.Context, region domain.Region, years int) (domain.Batch, error) {
	if c.cfg.APIKey == "" {
		return domain.Batch{}, fmt.Errorf("openweather api key not configured: %w", domain.ErrSourceUnavailable)
	}

	now := domain.Clock().Now()
	start := now.AddDate(-years, 0, 0)
	c.logger.Info("starting historical collection",
		"region", region.ID, "from", start.Format("2006-01-02"), "to", now.Format("2006-01-02"))

	policy := retry.Policy{MaxAttempts: c.cfg.MaxAttempts, Delay: retry.Exponential(c.cfg.RetryDelay)}
	batch := domain.Batch{Columns: historicalColumns}

	for windowStart := start; windowStart.Before(now); {
		windowEnd := windowStart.AddDate(1, 0, 0)
		if windowEnd.After(now) {
			windowEnd = now
		}

		points, err := c.fetchWindow(ctx, policy, region, windowEnd)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Batch{}, ctx.Err()
			}
			c.logger.Warn("historical window failed, skipping",
				"region", region.ID,
				"window_start", windowStart.Format("2006-01-02"),
				"window_end", windowEnd.Format("2006-01-02"),
				"error", err)
		} else {
			for _, p := range points {
				batch.Records = append(batch.Records, historicalRecord(p, region))
			}
			c.logger.Debug("historical window collected",
				"region", region.ID, "window_end", windowEnd.Format("2006-01-02"), "points", len(points))
		}

		windowStart = windowEnd
		if windowStart.Before(now) && c.cfg.WindowPause > 0 {
			select {
			case <-ctx.Done():
				return domain.Batch{}, ctx.Err()
			case <-domain.Clock().After(c.cfg.WindowPause):
			}
		}
	}

	c.logger.Info("historical collection finished", "region", region.ID, "records", len(batch.Records))
	return batch, nil
}

func (c *Client) fetchWindow(ctx context.Context, policy retry.Policy, region domain.Region, windowEnd time.Time) ([]historicalPoint, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%g", region.Latitude))
	q.Set("lon", fmt.Sprintf("%g", region.Longitude))
	q.Set("dt", fmt.Sprintf("%d", windowEnd.Unix()))
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	reqURL := fmt.Sprintf("%s/3.0/onecall/timemachine?%s", c.cfg.BaseURL, q.Encode())

	var resp timemachineResponse
	err := policy.Do(ctx, func() error {
		body, err := c.get(ctx, c.historical, reqURL)
		if err != nil {
			return err
		}
		return retryIfUnparseable(json.Unmarshal(body, &resp))
	})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func historicalRecord(p historicalPoint, region domain.Region) domain.Record {
	ts := time.Unix(p.Dt, 0).UTC()
	rec := domain.Record{
		domain.ColumnDate:      ts.Format("2006-01-02"),
		domain.ColumnTime:      ts.Format("15:04:05"),
		"temperature":          p.Temp,
		"feels_like":           p.FeelsLike,
		"pressure":             p.Pressure,
		"humidity":             p.Humidity,
		"dew_point":            p.DewPoint,
		"uvi":                  p.UVI,
		"clouds":               p.Clouds,
		"visibility":           p.Visibility,
		"wind_speed":           p.WindSpeed,
		"wind_deg":             p.WindDeg,
		"wind_gust":            p.WindGust,
		"rain_1h":              rainAmount(p.Rain, "1h"),
		"snow_1h":              rainAmount(p.Snow, "1h"),
		domain.ColumnSource:    domain.SourceOpenWeather,
		domain.ColumnRegion:    region.ID,
		domain.ColumnLatitude:  region.Latitude,
		domain.ColumnLongitude: region.Longitude,
		"timestamp":            p.Dt,
	}
	if len(p.Weather) > 0 {
		rec["weather_id"] = p.Weather[0].ID
		rec["weather_main"] = p.Weather[0].Main
		rec["weather_description"] = p.Weather[0].Description
	}
	return rec
}

// get performs one GET through the circuit breaker, classifying failures as
// retryable or permanent.
func (c *Client) get(ctx context.Context, httpClient *http.Client, reqURL string) ([]byte, error) {
	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransient, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", domain.ErrTransient, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := fmt.Errorf("http %d", resp.StatusCode)
			// 4xx will not change on retry; 429 and 5xx might.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, retry.Permanent(statusErr)
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrTransient, statusErr)
		}
		return data, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			// Retrying inside the same call cannot close the breaker.
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	return body.([]byte), nil
}

// retryIfUnparseable marks a JSON decode failure as retryable: a truncated
// body usually means a flaky connection, not a schema change.
func retryIfUnparseable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
}

func rainAmount(m map[string]float64, key string) float64 {
	if m == nil {
		return 0
	}
	return m[key]
}
