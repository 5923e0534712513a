// Package registry holds the set of monitored regions. It is a read-only
// input to the collection pipeline: regions are loaded once from the
// configured JSON file and never mutated during a run.
package registry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/agrovale/climate-collector/internal/domain"
)

var validate = validator.New()

// defaults is the built-in region set used when the regions file is missing
// or yields no valid regions.
var defaults = []domain.Region{
	{
		ID:          "Ribeirao_Preto_SP",
		Description: "Região de Ribeirão Preto - SP (Cana-de-açúcar)",
		Latitude:    -21.17,
		Longitude:   -47.81,
		Station:     "A711",
	},
	{
		ID:          "Brasilia_DF",
		Description: "Região de Brasília - DF (Soja e Milho)",
		Latitude:    -15.78,
		Longitude:   -47.93,
		Station:     "A001",
	},
}

// Registry is an immutable, id-unique set of regions.
type Registry struct {
	regions []domain.Region
	byID    map[string]domain.Region
}

type regionsFile struct {
	Regions []domain.Region `json:"regions"`
}

// Load reads the regions file. Malformed entries and duplicate ids are
// skipped with a warning; a missing or unusable file falls back to the
// built-in defaults. Load never fails: a collector with no region list
// cannot do anything useful, so degraded defaults beat crashing.
func Load(path string, logger *slog.Logger) *Registry {
	regions, err := readFile(path)
	if err != nil {
		logger.Warn("regions file unusable, using default regions", "path", path, "error", err)
		return newRegistry(defaults, logger)
	}

	r := newRegistry(regions, logger)
	if len(r.regions) == 0 {
		logger.Warn("regions file contains no valid regions, using defaults", "path", path)
		return newRegistry(defaults, logger)
	}
	logger.Info("regions loaded", "path", path, "count", len(r.regions))
	return r
}

func readFile(path string) ([]domain.Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f regionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse regions file: %w", err)
	}
	return f.Regions, nil
}

// newRegistry inserts regions one by one, enforcing id uniqueness and the
// Region validation tags at insert time.
func newRegistry(regions []domain.Region, logger *slog.Logger) *Registry {
	r := &Registry{byID: make(map[string]domain.Region, len(regions))}
	for _, region := range regions {
		if err := validate.Struct(region); err != nil {
			logger.Warn("skipping invalid region", "region", region.ID, "error", err)
			continue
		}
		if _, exists := r.byID[region.ID]; exists {
			logger.Warn("skipping duplicate region id", "region", region.ID)
			continue
		}
		r.byID[region.ID] = region
		r.regions = append(r.regions, region)
	}
	return r
}

// All returns every region in file order.
func (r *Registry) All() []domain.Region {
	return r.regions
}

// Subset resolves a list of region ids, erroring on unknown ids so a typoed
// CLI argument fails loudly instead of silently collecting nothing.
func (r *Registry) Subset(ids []string) ([]domain.Region, error) {
	regions := make([]domain.Region, 0, len(ids))
	for _, id := range ids {
		region, ok := r.byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown region id %q", id)
		}
		regions = append(regions, region)
	}
	return regions, nil
}
