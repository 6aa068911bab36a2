package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"tidbyt.dev/timetable/model"
)

const (
	PSQLStopBatchSize = 5000
)

type PSQLStorage struct {
	db *sql.DB
}

type PSQLDatasetWriter struct {
	id      string
	db      *sql.DB
	stopBuf []model.StopRecord
}

type PSQLDatasetReader struct {
	id string
	db *sql.DB
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS dataset;
DROP TABLE IF EXISTS route_stops;
`)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS dataset (
    hash TEXT NOT NULL,
    source TEXT NOT NULL,
    retrieved_at TIMESTAMPTZ NOT NULL,
    route_count INTEGER NOT NULL,
    stop_count INTEGER NOT NULL,
    PRIMARY KEY (hash, source)
);

CREATE TABLE IF NOT EXISTS route_stops (
    hash TEXT NOT NULL,
    route_id TEXT NOT NULL,
    route_display TEXT NOT NULL,
    direction SMALLINT NOT NULL,
    direction_name TEXT NOT NULL,
    stop_order INTEGER NOT NULL,
    stop_name TEXT NOT NULL,
    time_to_next DOUBLE PRECISION,
    PRIMARY KEY (hash, route_id, direction, stop_order)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{
		db: db,
	}, nil
}

func (s *PSQLStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

func (s *PSQLStorage) ListDatasets(filter ListDatasetsFilter) ([]*DatasetMetadata, error) {
	query := `
SELECT
    hash,
    source,
    retrieved_at,
    route_count,
    stop_count
FROM dataset`

	conditions := []string{}
	params := []interface{}{}
	paramCount := 1

	if filter.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", paramCount))
		params = append(params, filter.Source)
		paramCount++
	}
	if filter.Hash != "" {
		conditions = append(conditions, fmt.Sprintf("hash = $%d", paramCount))
		params = append(params, filter.Hash)
		paramCount++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	datasets := []*DatasetMetadata{}
	for rows.Next() {
		var d DatasetMetadata
		err := rows.Scan(
			&d.Hash,
			&d.Source,
			&d.RetrievedAt,
			&d.RouteCount,
			&d.StopCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		datasets = append(datasets, &d)
	}

	return datasets, rows.Err()
}

func (s *PSQLStorage) WriteDatasetMetadata(d *DatasetMetadata) error {
	_, err := s.db.Exec(`
INSERT INTO dataset (hash, source, retrieved_at, route_count, stop_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (hash, source) DO UPDATE SET
    retrieved_at = EXCLUDED.retrieved_at,
    route_count = EXCLUDED.route_count,
    stop_count = EXCLUDED.stop_count`,
		d.Hash,
		d.Source,
		d.RetrievedAt,
		d.RouteCount,
		d.StopCount,
	)
	if err != nil {
		return fmt.Errorf("writing dataset metadata: %w", err)
	}
	return nil
}

func (s *PSQLStorage) GetReader(hash string) (DatasetReader, error) {
	return &PSQLDatasetReader{
		id: hash,
		db: s.db,
	}, nil
}

func (s *PSQLStorage) GetWriter(hash string) (DatasetWriter, error) {
	// In case dataset already exists, delete all records
	_, err := s.db.Exec(`DELETE FROM route_stops WHERE hash = $1`, hash)
	if err != nil {
		return nil, fmt.Errorf("deleting route_stops records: %w", err)
	}

	return &PSQLDatasetWriter{
		id: hash,
		db: s.db,
	}, nil
}

func (w *PSQLDatasetWriter) BeginStops() error {
	return nil
}

func (w *PSQLDatasetWriter) WriteStop(stop *model.StopRecord) error {
	w.stopBuf = append(w.stopBuf, *stop)

	if len(w.stopBuf) >= PSQLStopBatchSize {
		err := w.flushStops()
		if err != nil {
			return fmt.Errorf("flushing route_stops: %w", err)
		}
	}

	return nil
}

func (w *PSQLDatasetWriter) EndStops() error {
	if len(w.stopBuf) > 0 {
		err := w.flushStops()
		if err != nil {
			return fmt.Errorf("flushing route_stops: %w", err)
		}
	}
	return nil
}

func (w *PSQLDatasetWriter) flushStops() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(pq.CopyIn(
		"route_stops", "hash", "route_id", "route_display", "direction", "direction_name", "stop_order", "stop_name", "time_to_next",
	))
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, stop := range w.stopBuf {
		var timeToNext sql.NullFloat64
		if stop.TimeToNext != nil {
			timeToNext = sql.NullFloat64{Float64: *stop.TimeToNext, Valid: true}
		}
		_, err = stmt.Exec(
			w.id,
			stop.RouteID,
			stop.RouteDisplay,
			int16(stop.Direction),
			stop.DirectionName,
			stop.Order,
			stop.StopName,
			timeToNext,
		)
		if err != nil {
			return fmt.Errorf("COPY route_stop: %w", err)
		}
	}

	_, err = stmt.Exec()
	if err != nil {
		return fmt.Errorf("executing statement: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}

	w.stopBuf = nil

	return nil
}

func (w *PSQLDatasetWriter) Close() error {
	_, err := w.db.Exec(`ANALYZE route_stops`)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	return nil
}

func (r *PSQLDatasetReader) Stops() ([]*model.StopRecord, error) {
	return r.StopsFor(StopFilter{})
}

func (r *PSQLDatasetReader) StopsFor(filter StopFilter) ([]*model.StopRecord, error) {
	query := `
SELECT route_id, route_display, direction, direction_name, stop_order, stop_name, time_to_next
FROM route_stops
WHERE hash = $1`

	params := []interface{}{r.id}
	if filter.RouteID != "" {
		params = append(params, filter.RouteID)
		query += fmt.Sprintf(" AND route_id = $%d", len(params))
	}
	if filter.Direction != 0 {
		params = append(params, int16(filter.Direction))
		query += fmt.Sprintf(" AND direction = $%d", len(params))
	}

	query += " ORDER BY route_id, direction, stop_order"

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying route_stops: %w", err)
	}
	defer rows.Close()

	return scanStops(rows)
}
