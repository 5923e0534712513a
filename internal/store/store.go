// Package store persists observation batches as dated, partitioned CSV
// files and keeps repeated runs idempotent via merge-on-write.
//
// Partition layout:
//
//	<root>/<source>/<year>/<month>/<mode>_<region>_<yyyymmdd>.csv
//
// where year/month/day come from the run date, not the observation dates.
// Current-mode writes merge into an existing partition, deduplicating rows
// by the schema's timestamp key. Historical-mode always writes a fresh file;
// a collision on the computed path gets a run-timestamp suffix instead of an
// overwrite. Writes go to a temporary file in the target directory followed
// by a rename, so a half-written file is never visible under the canonical
// path. Concurrent collector processes are not supported; the scheduler is
// expected to run at most one at a time.
package store

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/agrovale/climate-collector/internal/domain"
)

// Store writes batches beneath a single data root.
type Store struct {
	root   string
	logger *slog.Logger
}

// New creates the data root if needed. Failure here is catastrophic for a
// run and is the one setup error callers should abort on.
func New(root string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create data root %s: %w", root, err)
	}
	return &Store{root: root, logger: logger}, nil
}

// PathFor resolves the canonical partition path for a run date.
func (s *Store) PathFor(source string, mode domain.Mode, regionID string, runDate time.Time) string {
	return filepath.Join(
		s.root,
		source,
		fmt.Sprintf("%d", runDate.Year()),
		fmt.Sprintf("%02d", runDate.Month()),
		fmt.Sprintf("%s_%s_%s.csv", mode, regionID, runDate.Format("20060102")),
	)
}

// Write persists a batch into its partition and returns the number of rows
// appended. Zero appended with a nil error means the merge found nothing
// new. Errors wrap domain.ErrPersistence.
func (s *Store) Write(batch domain.Batch, regionID, source string, mode domain.Mode) (int, error) {
	if batch.Empty() {
		s.logger.Warn("nothing to write", "region", regionID, "source", source, "mode", mode)
		return 0, nil
	}

	now := domain.Clock().Now()
	path := s.PathFor(source, mode, regionID, now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, persistErr("create partition directory", err)
	}

	if mode == domain.ModeHistorical {
		return s.writeHistorical(batch, path, now)
	}
	return s.writeCurrent(batch, path, now)
}

// writeHistorical always writes a fresh file. Historical batches are
// idempotently regenerable, so no merge is attempted; an existing file at
// the canonical path gets a run-timestamp suffix rather than an overwrite.
// Two historical runs of the same partition within one second can still
// collide; this is best-effort dedup avoidance, not a uniqueness guarantee.
func (s *Store) writeHistorical(batch domain.Batch, path string, now time.Time) (int, error) {
	if fileExists(path) {
		alt := suffixedPath(path, now)
		s.logger.Info("historical partition exists, writing disambiguated file",
			"path", path, "alt", alt)
		path = alt
	}
	if err := s.writeFile(path, batch.Columns, recordRows(batch, batch.Columns)); err != nil {
		return 0, err
	}
	s.logger.Info("partition written", "path", path, "records", len(batch.Records))
	return len(batch.Records), nil
}

// writeCurrent merges into an existing partition when the schema allows it.
func (s *Store) writeCurrent(batch domain.Batch, path string, now time.Time) (int, error) {
	keyCols, ok := batch.KeyColumns()
	if !ok {
		// No timestamp key derivable: writing a separate file beats a merge
		// that could silently duplicate or drop rows.
		alt := suffixedPath(path, now)
		s.logger.Warn("batch schema has no timestamp key, writing separate file", "path", alt)
		if err := s.writeFile(alt, batch.Columns, recordRows(batch, batch.Columns)); err != nil {
			return 0, err
		}
		return len(batch.Records), nil
	}

	if !fileExists(path) {
		if err := s.writeFile(path, batch.Columns, recordRows(batch, batch.Columns)); err != nil {
			return 0, err
		}
		s.logger.Info("partition written", "path", path, "records", len(batch.Records))
		return len(batch.Records), nil
	}

	header, existing, err := readCSV(path)
	if err != nil {
		return 0, err
	}

	keyIdx, ok := keyIndexes(header, keyCols)
	if !ok {
		// The file on disk predates this schema; don't guess at a merge.
		alt := suffixedPath(path, now)
		s.logger.Warn("existing partition has no timestamp key, writing separate file",
			"path", path, "alt", alt)
		if err := s.writeFile(alt, batch.Columns, recordRows(batch, batch.Columns)); err != nil {
			return 0, err
		}
		return len(batch.Records), nil
	}

	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		seen[rowKey(row, keyIdx)] = struct{}{}
	}

	var fresh []domain.Record
	for _, rec := range batch.Records {
		if _, dup := seen[rec.Key(keyCols)]; !dup {
			fresh = append(fresh, rec)
		}
	}
	if len(fresh) == 0 {
		s.logger.Info("no new records for partition", "path", path)
		return 0, nil
	}

	// Merged rows are projected onto the existing header so the file keeps a
	// single consistent schema. Columns only the new batch has do not survive
	// the projection; log them so provider schema drift stays visible.
	if dropped := missingColumns(batch.Columns, header); len(dropped) > 0 {
		s.logger.Warn("merge dropping columns absent from existing partition",
			"path", path, "columns", dropped)
	}
	rows := existing
	for _, rec := range fresh {
		rows = append(rows, projectRow(rec, header))
	}
	if err := s.writeFile(path, header, rows); err != nil {
		return 0, err
	}
	s.logger.Info("partition merged", "path", path, "appended", len(fresh))
	return len(fresh), nil
}

// writeFile writes header+rows to a temp file in the target directory and
// renames it into place.
func (s *Store) writeFile(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".partition-*")
	if err != nil {
		return persistErr("create temp file", err)
	}
	tmpName := tmp.Name()

	w := csv.NewWriter(tmp)
	writeErr := w.Write(header)
	if writeErr == nil {
		writeErr = w.WriteAll(rows)
	}
	if closeErr := tmp.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(tmpName)
		return persistErr("write csv", writeErr)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return persistErr("rename into place", err)
	}
	return nil
}

func readCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, persistErr("open existing partition", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, persistErr("read existing partition", err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func recordRows(batch domain.Batch, columns []string) [][]string {
	rows := make([][]string, len(batch.Records))
	for i, rec := range batch.Records {
		rows[i] = projectRow(rec, columns)
	}
	return rows
}

func projectRow(rec domain.Record, columns []string) []string {
	row := make([]string, len(columns))
	for i, col := range columns {
		row[i] = domain.FormatValue(rec[col])
	}
	return row
}

// missingColumns returns the columns of a batch that the on-disk header does
// not carry.
func missingColumns(columns, header []string) []string {
	var missing []string
	for _, col := range columns {
		found := false
		for _, h := range header {
			if h == col {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, col)
		}
	}
	return missing
}

// keyIndexes locates the key columns in a CSV header.
func keyIndexes(header, keyCols []string) ([]int, bool) {
	idx := make([]int, 0, len(keyCols))
	for _, kc := range keyCols {
		found := -1
		for i, h := range header {
			if h == kc {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		idx = append(idx, found)
	}
	return idx, true
}

func rowKey(row []string, keyIdx []int) string {
	key := ""
	for i, idx := range keyIdx {
		if i > 0 {
			key += " "
		}
		if idx < len(row) {
			key += row[idx]
		}
	}
	return key
}

func suffixedPath(path string, now time.Time) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%d%s", path[:len(path)-len(ext)], now.Unix(), ext)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}
