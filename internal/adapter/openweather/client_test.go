package openweather_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovale/climate-collector/internal/adapter/openweather"
	"github.com/agrovale/climate-collector/internal/domain"
)

var testRegion = domain.Region{ID: "Brasilia_DF", Latitude: -15.78, Longitude: -47.92}

func newClient(baseURL string) *openweather.Client {
	return openweather.New(openweather.Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		MaxAttempts: 3,
	}, slog.Default())
}

func currentPayload() map[string]any {
	return map[string]any{
		"main": map[string]any{
			"temp": 24.5, "feels_like": 25.1, "temp_min": 20.0, "temp_max": 28.0,
			"pressure": 1013.0, "humidity": 61.0,
		},
		"wind":    map[string]any{"speed": 3.2, "deg": 140.0},
		"clouds":  map[string]any{"all": 40.0},
		"weather": []map[string]any{{"id": 802, "main": "Clouds", "description": "scattered clouds"}},
		"rain":    map[string]any{"1h": 0.3},
	}
}

func TestFetchCurrent_MapsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2.5/weather", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("appid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		assert.Equal(t, "-15.78", r.URL.Query().Get("lat"))
		json.NewEncoder(w).Encode(currentPayload())
	}))
	defer srv.Close()

	batch, err := newClient(srv.URL).FetchCurrent(context.Background(), testRegion)
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, 24.5, rec["temperature"])
	assert.Equal(t, 61.0, rec["humidity"])
	assert.Equal(t, 3.2, rec["wind_speed"])
	assert.Equal(t, "Clouds", rec["weather_main"])
	assert.Equal(t, 0.3, rec["rain_1h"])
	assert.Equal(t, domain.SourceOpenWeather, rec[domain.ColumnSource])
	assert.Equal(t, "Brasilia_DF", rec[domain.ColumnRegion])
	assert.NotEmpty(t, rec[domain.ColumnDate])
	assert.NotEmpty(t, rec[domain.ColumnTime])

	keyCols, ok := batch.KeyColumns()
	require.True(t, ok)
	assert.Equal(t, []string{domain.ColumnDate, domain.ColumnTime}, keyCols)
}

func TestFetchCurrent_OmitsAbsentWindAndClouds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := currentPayload()
		delete(payload, "wind")
		delete(payload, "clouds")
		delete(payload, "rain")
		json.NewEncoder(w).Encode(payload)
	}))
	defer srv.Close()

	batch, err := newClient(srv.URL).FetchCurrent(context.Background(), testRegion)
	require.NoError(t, err)

	rec := batch.Records[0]
	_, hasWind := rec["wind_speed"]
	assert.False(t, hasWind)
	_, hasClouds := rec["clouds"]
	assert.False(t, hasClouds)
	assert.Equal(t, 0.0, rec["rain_1h"])
}

func TestFetchCurrent_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(currentPayload())
	}))
	defer srv.Close()

	batch, err := newClient(srv.URL).FetchCurrent(context.Background(), testRegion)
	require.NoError(t, err)
	assert.Len(t, batch.Records, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCurrent_UnauthorizedIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchCurrent(context.Background(), testRegion)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, int32(1), calls.Load(), "a 401 will not change on retry")
}

func TestFetchCurrent_MissingAPIKey(t *testing.T) {
	c := openweather.New(openweather.Config{BaseURL: "http://unused"}, slog.Default())
	_, err := c.FetchCurrent(context.Background(), testRegion)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchHistorical_RequestsYearlyWindows(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	var dts []int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/3.0/onecall/timemachine", r.URL.Path)
		dt, err := strconv.ParseInt(r.URL.Query().Get("dt"), 10, 64)
		require.NoError(t, err)
		dts = append(dts, dt)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{
				"dt": dt, "temp": 22.0, "feels_like": 22.5, "pressure": 1010.0,
				"humidity": 58.0, "clouds": 20.0, "wind_speed": 2.1,
				"weather": []map[string]any{{"id": 800, "main": "Clear", "description": "clear sky"}},
			}},
		})
	}))
	defer srv.Close()

	c := openweather.New(openweather.Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		MaxAttempts: 1,
	}, slog.Default())

	batch, err := c.FetchHistorical(context.Background(), testRegion, 15)
	require.NoError(t, err)

	// One window per year, last one clamped to now.
	require.Len(t, dts, 15)
	assert.Equal(t, now.Unix(), dts[len(dts)-1])
	for i := 1; i < len(dts); i++ {
		assert.Greater(t, dts[i], dts[i-1], "windows must advance in time")
	}
	earliest := now.AddDate(-15, 0, 0)
	assert.GreaterOrEqual(t, dts[0], earliest.Unix())

	require.Len(t, batch.Records, 15)
	rec := batch.Records[0]
	assert.Equal(t, 22.0, rec["temperature"])
	assert.Equal(t, "Clear", rec["weather_main"])
	assert.Equal(t, domain.SourceOpenWeather, rec[domain.ColumnSource])
}

func TestFetchHistorical_SkipsFailedWindows(t *testing.T) {
	now := time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		dt, _ := strconv.ParseInt(r.URL.Query().Get("dt"), 10, 64)
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"dt": dt, "temp": 21.0}},
		})
	}))
	defer srv.Close()

	c := openweather.New(openweather.Config{
		APIKey:      "test-key",
		BaseURL:     srv.URL,
		MaxAttempts: 1,
	}, slog.Default())

	batch, err := c.FetchHistorical(context.Background(), testRegion, 3)
	require.NoError(t, err, "a failed window must not fail the whole pass")
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, batch.Records, 2)
}

func TestFetchHistorical_MissingAPIKey(t *testing.T) {
	c := openweather.New(openweather.Config{BaseURL: "http://unused"}, slog.Default())
	_, err := c.FetchHistorical(context.Background(), testRegion, 5)
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetchHistorical_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{}})
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).FetchHistorical(ctx, testRegion, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestName(t *testing.T) {
	c := openweather.New(openweather.Config{}, slog.Default())
	assert.Equal(t, "openweather", c.Name())
}
