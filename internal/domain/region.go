package domain

// Region is a monitored geographic point of interest. Regions are loaded
// from configuration once per run and are immutable while a collection run
// is in flight.
type Region struct {
	// ID is the unique region identifier. It becomes part of partition file
	// names, so it must not contain whitespace.
	ID          string  `json:"id" validate:"required,excludesall= \t"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude   float64 `json:"longitude" validate:"gte=-180,lte=180"`

	// Station is the INMET station code used by the backup source,
	// e.g. "A001" for Brasília.
	Station string `json:"station"`
}
