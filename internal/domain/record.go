package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Source tags written into every record and used as the top-level partition
// directory name.
const (
	SourceOpenWeather = "openweather"
	SourceINMET       = "inmet"

	// SourceNone marks a region for which neither source produced data.
	SourceNone = "none"
)

// Mode selects which collection pass to run.
type Mode string

const (
	ModeCurrent    Mode = "current"
	ModeHistorical Mode = "historical"
	ModeBoth       Mode = "both"
)

// ParseMode converts a CLI/config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCurrent, ModeHistorical, ModeBoth:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown collection mode %q", s)
}

// Timestamp column names recognized when deriving a dedup key.
const (
	ColumnDate     = "date"     // OpenWeather observation date, "2006-01-02"
	ColumnTime     = "time"     // OpenWeather observation time, "15:04:05"
	ColumnDatetime = "DATETIME" // INMET combined timestamp, "2006-01-02 15:04:05"
)

// Metadata columns stamped onto every record regardless of provider.
const (
	ColumnSource    = "source"
	ColumnRegion    = "region"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
)

// Record is one timestamped observation: a flat mapping of field name to
// value. Values are numeric, string, or nil for missing.
type Record map[string]any

// Key builds the record's dedup key from the given timestamp columns,
// joining multiple columns with a single space.
func (r Record) Key(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = FormatValue(r[c])
	}
	return strings.Join(parts, " ")
}

// Batch is an ordered sequence of records returned by one source-client
// call. Columns fixes the field order for CSV output.
type Batch struct {
	Columns []string
	Records []Record
}

// Empty reports whether the batch holds no records.
func (b Batch) Empty() bool {
	return len(b.Records) == 0
}

// HasColumn reports whether the batch schema contains the named column.
func (b Batch) HasColumn(name string) bool {
	return slices.Contains(b.Columns, name)
}

// KeyColumns returns the columns forming the dedup timestamp key for this
// batch's schema. ok is false when no timestamp key can be derived, in which
// case the batch must not be merged into existing data.
func (b Batch) KeyColumns() (cols []string, ok bool) {
	if b.HasColumn(ColumnDatetime) {
		return []string{ColumnDatetime}, true
	}
	if b.HasColumn(ColumnDate) && b.HasColumn(ColumnTime) {
		return []string{ColumnDate, ColumnTime}, true
	}
	return nil, false
}

// FormatValue renders a record value the way it is written to CSV. Missing
// values become the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
