// Package domain models weather observations collected for agricultural
// monitoring regions.
//
// # Data Sources
//
// Observations come from two providers with different schemas:
//
//	OpenWeather (primary): coordinate-addressed HTTP API. Current conditions
//	from /data/2.5/weather; multi-year history from /data/3.0/onecall/timemachine,
//	fetched in roughly one-year windows. Records carry lowercase field names
//	(temperature, humidity, wind_speed, ...) plus separate "date" and "time"
//	columns stamped at collection.
//
//	INMET (backup): station-code-addressed API of the Brazilian national
//	meteorology institute. Records keep the provider's uppercase column names
//	(TEM_INS instantaneous temperature, UMD_INS relative humidity,
//	DT_MEDICAO/HR_MEDICAO measurement date and hour, ...). A combined
//	"DATETIME" column is derived so downstream code has a single timestamp.
//
// Provider-native field names are preserved rather than normalized: models
// trained on the CSV output depend on seeing each provider's own schema, with
// only the collection metadata (source, region, latitude, longitude) shared
// across sources.
//
// # Deduplication Keys
//
// Within a partition, the observation timestamp is the dedup key. Its columns
// depend on the schema: "DATETIME" alone when present, otherwise
// "date"+"time". See [Batch.KeyColumns]. A batch from which no key can be
// derived is never merged into an existing file.
//
// # Sanity Bounds
//
// Air temperature outside [-40, 55] degrees Celsius or relative humidity
// outside [0, 100] percent marks a batch as malformed, as does a schema with
// fewer than five fields. Fields that are more than half missing produce
// warnings only. See [ValidateBatch].
package domain
