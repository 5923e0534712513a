package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovale/climate-collector/internal/domain"
)

func TestKeyColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		want    []string
		ok      bool
	}{
		{
			name:    "inmet datetime",
			columns: []string{"DATETIME", "TEM_INS", "UMD_INS"},
			want:    []string{"DATETIME"},
			ok:      true,
		},
		{
			name:    "openweather date plus time",
			columns: []string{"date", "time", "temperature"},
			want:    []string{"date", "time"},
			ok:      true,
		},
		{
			name:    "datetime wins over date+time",
			columns: []string{"date", "time", "DATETIME"},
			want:    []string{"DATETIME"},
			ok:      true,
		},
		{
			name:    "date without time is not a key",
			columns: []string{"date", "temperature"},
			ok:      false,
		},
		{
			name:    "no timestamp columns",
			columns: []string{"temperature", "humidity"},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, ok := domain.Batch{Columns: tt.columns}.KeyColumns()
			require.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, cols)
		})
	}
}

func TestRecordKey(t *testing.T) {
	rec := domain.Record{"date": "2026-08-30", "time": "12:00:00"}
	assert.Equal(t, "2026-08-30 12:00:00", rec.Key([]string{"date", "time"}))

	rec = domain.Record{"DATETIME": "2026-08-30 12:00:00"}
	assert.Equal(t, "2026-08-30 12:00:00", rec.Key([]string{"DATETIME"}))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", domain.FormatValue(nil))
	assert.Equal(t, "abc", domain.FormatValue("abc"))
	assert.Equal(t, "24.5", domain.FormatValue(24.5))
	assert.Equal(t, "-21.17", domain.FormatValue(-21.17))
	assert.Equal(t, "7", domain.FormatValue(7))
	assert.Equal(t, "1756512000", domain.FormatValue(int64(1756512000)))
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"current", "historical", "both"} {
		m, err := domain.ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, domain.Mode(s), m)
	}
	_, err := domain.ParseMode("weekly")
	require.Error(t, err)
}
