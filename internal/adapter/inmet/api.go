// Package inmet implements the backup source client against the INMET
// station API (Brazilian national meteorology institute). Stations are
// addressed by code (e.g. "A001"); records keep INMET's uppercase column
// names with a derived DATETIME column.
package inmet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/agrovale/climate-collector/internal/domain"
)

// Capability identifies one optional accessor of a station data provider.
// The concrete provider reports which of these it supports and the client
// probes the set instead of assuming a fixed interface.
type Capability string

const (
	CapabilityHourly        Capability = "hourly_data"
	CapabilityDaily         Capability = "daily_data"
	CapabilityHistorical    Capability = "historical_data"
	CapabilityHourlyForDate Capability = "hourly_data_for_date"
)

// StationAPI is the capability surface of a station data provider. Methods
// outside the reported capability set return domain.ErrCapabilityUnsupported.
type StationAPI interface {
	Capabilities() []Capability
	HourlyData(ctx context.Context, station string, start, end time.Time) (domain.Batch, error)
	DailyData(ctx context.Context, station string, start, end time.Time) (domain.Batch, error)
	HistoricalData(ctx context.Context, station string, start, end time.Time) (domain.Batch, error)
	HourlyDataForDate(ctx context.Context, station string, date time.Time) (domain.Batch, error)
}

// API is the HTTP implementation of StationAPI against apitempo.inmet.gov.br.
// It supports the hourly and daily endpoints; the other capabilities are not
// offered by the public API.
type API struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAPI creates an INMET station API. The token is optional; the public
// station endpoints work anonymously.
func NewAPI(baseURL, token string, timeout time.Duration, logger *slog.Logger) *API {
	if baseURL == "" {
		baseURL = "https://apitempo.inmet.gov.br"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &API{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Capabilities reports the accessors the public API offers.
func (a *API) Capabilities() []Capability {
	return []Capability{CapabilityHourly, CapabilityDaily}
}

// HourlyData fetches station-hourly records for [start, end].
func (a *API) HourlyData(ctx context.Context, station string, start, end time.Time) (domain.Batch, error) {
	u := fmt.Sprintf("%s/estacao/%s/%s/%s",
		a.baseURL, start.Format("2006-01-02"), end.Format("2006-01-02"), station)
	return a.fetch(ctx, u)
}

// DailyData fetches station-daily records for [start, end].
func (a *API) DailyData(ctx context.Context, station string, start, end time.Time) (domain.Batch, error) {
	u := fmt.Sprintf("%s/estacao/diaria/%s/%s/%s",
		a.baseURL, start.Format("2006-01-02"), end.Format("2006-01-02"), station)
	return a.fetch(ctx, u)
}

// HistoricalData is not offered by the public API.
func (a *API) HistoricalData(context.Context, string, time.Time, time.Time) (domain.Batch, error) {
	return domain.Batch{}, fmt.Errorf("inmet historical_data: %w", domain.ErrCapabilityUnsupported)
}

// HourlyDataForDate is not offered by the public API.
func (a *API) HourlyDataForDate(context.Context, string, time.Time) (domain.Batch, error) {
	return domain.Batch{}, fmt.Errorf("inmet hourly_data_for_date: %w", domain.ErrCapabilityUnsupported)
}

func (a *API) fetch(ctx context.Context, reqURL string) (domain.Batch, error) {
	if a.token != "" {
		reqURL += "/" + a.token
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return domain.Batch{}, fmt.Errorf("%w: inmet api status %d: %s",
			domain.ErrTransient, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Batch{}, fmt.Errorf("%w: decode response: %v", domain.ErrTransient, err)
	}
	return batchFromRaw(raw), nil
}

// batchFromRaw turns INMET's array-of-objects payload into a batch,
// preserving the provider's own column names and deriving DATETIME from
// DT_MEDICAO/HR_MEDICAO. Column order is DATETIME first, then the native
// columns sorted for a stable CSV header.
func batchFromRaw(raw []map[string]any) domain.Batch {
	if len(raw) == 0 {
		return domain.Batch{}
	}

	native := make([]string, 0, len(raw[0]))
	for k := range raw[0] {
		native = append(native, k)
	}
	sort.Strings(native)
	columns := append([]string{domain.ColumnDatetime}, native...)

	records := make([]domain.Record, 0, len(raw))
	for _, m := range raw {
		rec := make(domain.Record, len(m)+1)
		for k, v := range m {
			rec[k] = v
		}
		rec[domain.ColumnDatetime] = combineDatetime(m)
		records = append(records, rec)
	}
	return domain.Batch{Columns: columns, Records: records}
}

// combineDatetime builds "2006-01-02 15:04:05" from INMET's DT_MEDICAO date
// and HR_MEDICAO hour. Hour values come as "1200" or "1200 UTC"; daily
// records have no hour and get midnight.
func combineDatetime(m map[string]any) string {
	date, _ := m["DT_MEDICAO"].(string)
	if date == "" {
		return ""
	}
	hour, _ := m["HR_MEDICAO"].(string)
	hour = strings.TrimSuffix(strings.TrimSpace(hour), " UTC")
	hour = strings.TrimSpace(strings.TrimSuffix(hour, "UTC"))
	if hour == "" {
		return date + " 00:00:00"
	}
	if len(hour) == 3 {
		hour = "0" + hour
	}
	if len(hour) != 4 || !isDigits(hour) {
		return date + " 00:00:00"
	}
	return fmt.Sprintf("%s %s:%s:00", date, hour[:2], hour[2:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasCapability(api StationAPI, c Capability) bool {
	return slices.Contains(api.Capabilities(), c)
}
