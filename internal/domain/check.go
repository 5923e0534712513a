package domain

import (
	"fmt"
	"strconv"
)

// Sanity bounds for observation values. Anything outside these ranges is a
// malformed response, not weather.
const (
	minTemperatureC = -40.0
	maxTemperatureC = 55.0
	minHumidityPct  = 0.0
	maxHumidityPct  = 100.0
)

// minBatchColumns is the smallest plausible schema; fewer fields than this
// almost always means a truncated or error response.
const minBatchColumns = 5

// missingWarnRatio is the per-field missing-value ratio above which a
// warning is recorded.
const missingWarnRatio = 0.5

// boundsColumns maps each source to the columns its provider uses for
// temperature and humidity.
var boundsColumns = map[string]struct{ temperature, humidity string }{
	SourceOpenWeather: {temperature: "temperature", humidity: "humidity"},
	SourceINMET:       {temperature: "TEM_INS", humidity: "UMD_INS"},
}

// CheckResult carries the diagnostics of a passed consistency check.
type CheckResult struct {
	FieldCount int
	Warnings   []string
}

// ValidateBatch checks a fetched batch against domain-sanity bounds before
// it is accepted by the store. A returned error wraps [ErrInvalidBatch] and
// is treated like a failed fetch by the orchestrator, so a bad primary batch
// still triggers the backup attempt. High missing-value ratios are reported
// as warnings only.
func ValidateBatch(b Batch, source string) (CheckResult, error) {
	if b.Empty() {
		return CheckResult{}, fmt.Errorf("%w: no records", ErrInvalidBatch)
	}
	if len(b.Columns) < minBatchColumns {
		return CheckResult{}, fmt.Errorf("%w: only %d fields, likely malformed response", ErrInvalidBatch, len(b.Columns))
	}

	res := CheckResult{FieldCount: len(b.Columns)}
	for _, col := range b.Columns {
		missing := 0
		for _, rec := range b.Records {
			if isMissing(rec[col]) {
				missing++
			}
		}
		if ratio := float64(missing) / float64(len(b.Records)); ratio > missingWarnRatio {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("field %q is %.0f%% missing", col, ratio*100))
		}
	}

	cols, ok := boundsColumns[source]
	if !ok {
		// Unknown source: structural checks only.
		return res, nil
	}
	if err := checkBounds(b, cols.temperature, minTemperatureC, maxTemperatureC); err != nil {
		return CheckResult{}, err
	}
	if err := checkBounds(b, cols.humidity, minHumidityPct, maxHumidityPct); err != nil {
		return CheckResult{}, err
	}
	return res, nil
}

// checkBounds rejects the batch if any present numeric value in the column
// falls outside [lo, hi]. Missing and non-numeric values are skipped; the
// missing-ratio warning covers those.
func checkBounds(b Batch, column string, lo, hi float64) error {
	if !b.HasColumn(column) {
		return nil
	}
	for i, rec := range b.Records {
		v, ok := numericValue(rec[column])
		if !ok {
			continue
		}
		if v < lo || v > hi {
			return fmt.Errorf("%w: record %d has %s=%v outside [%g, %g]",
				ErrInvalidBatch, i, column, v, lo, hi)
		}
	}
	return nil
}

func isMissing(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
