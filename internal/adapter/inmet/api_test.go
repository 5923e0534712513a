package inmet

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovale/climate-collector/internal/domain"
)

func stationPayload() []map[string]any {
	return []map[string]any{
		{
			"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "1200",
			"TEM_INS": "21.5", "UMD_INS": "60", "CD_ESTACAO": "A001",
		},
		{
			"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "1300",
			"TEM_INS": "22.1", "UMD_INS": "58", "CD_ESTACAO": "A001",
		},
	}
}

func TestHourlyData_ParsesAndDerivesDatetime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estacao/2026-08-22/2026-08-29/A001", r.URL.Path)
		json.NewEncoder(w).Encode(stationPayload())
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", time.Second, slog.Default())
	start := time.Date(2026, time.August, 22, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 29, 0, 0, 0, 0, time.UTC)

	batch, err := api.HourlyData(context.Background(), "A001", start, end)
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, domain.ColumnDatetime, batch.Columns[0])
	assert.Equal(t, "2026-08-29 12:00:00", batch.Records[0][domain.ColumnDatetime])
	assert.Equal(t, "21.5", batch.Records[0]["TEM_INS"])
	assert.Equal(t, "2026-08-29 13:00:00", batch.Records[1][domain.ColumnDatetime])
}

func TestDailyData_UsesDailyPathAndMidnight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/estacao/diaria/2024-01-01/2025-01-01/A001", r.URL.Path)
		json.NewEncoder(w).Encode([]map[string]any{
			{"DT_MEDICAO": "2024-06-15", "TEM_MED": "19.8", "CD_ESTACAO": "A001"},
		})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", time.Second, slog.Default())
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	batch, err := api.DailyData(context.Background(), "A001", start, end)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, "2024-06-15 00:00:00", batch.Records[0][domain.ColumnDatetime])
}

func TestFetch_TokenAppendedToPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "secret-token", time.Second, slog.Default())
	start := time.Date(2026, time.August, 22, 0, 0, 0, 0, time.UTC)
	_, err := api.HourlyData(context.Background(), "A001", start, start)
	require.NoError(t, err)
	assert.Equal(t, "/estacao/2026-08-22/2026-08-22/A001/secret-token", gotPath)
}

func TestFetch_NonOKStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", time.Second, slog.Default())
	start := time.Now()
	_, err := api.HourlyData(context.Background(), "A001", start, start)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestFetch_EmptyPayloadIsEmptyBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	api := NewAPI(srv.URL, "", time.Second, slog.Default())
	start := time.Now()
	batch, err := api.HourlyData(context.Background(), "A001", start, start)
	require.NoError(t, err)
	assert.True(t, batch.Empty())
}

func TestUnsupportedAccessors(t *testing.T) {
	api := NewAPI("http://unused", "", time.Second, slog.Default())

	assert.ElementsMatch(t,
		[]Capability{CapabilityHourly, CapabilityDaily}, api.Capabilities())

	_, err := api.HistoricalData(context.Background(), "A001", time.Now(), time.Now())
	assert.ErrorIs(t, err, domain.ErrCapabilityUnsupported)

	_, err = api.HourlyDataForDate(context.Background(), "A001", time.Now())
	assert.ErrorIs(t, err, domain.ErrCapabilityUnsupported)
}

func TestCombineDatetime(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		want string
	}{
		{"bare hour", map[string]any{"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "1200"}, "2026-08-29 12:00:00"},
		{"utc suffix", map[string]any{"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "1200 UTC"}, "2026-08-29 12:00:00"},
		{"three digit hour", map[string]any{"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "900"}, "2026-08-29 09:00:00"},
		{"daily record", map[string]any{"DT_MEDICAO": "2026-08-29"}, "2026-08-29 00:00:00"},
		{"garbage hour", map[string]any{"DT_MEDICAO": "2026-08-29", "HR_MEDICAO": "noon"}, "2026-08-29 00:00:00"},
		{"no date", map[string]any{"HR_MEDICAO": "1200"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combineDatetime(tt.in))
		})
	}
}
