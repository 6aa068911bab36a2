package storage

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/timetable/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStorage struct {
	SQLiteConfig

	metaDB   *sql.DB
	datasets map[string]*sql.DB
	mutex    sync.Mutex
}

type SQLiteDatasetWriter struct {
	db              *sql.DB
	stopInsertQuery *sql.Stmt
	stopInsertTx    *sql.Tx
}

type SQLiteDatasetReader struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/timetable.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS dataset (
    hash TEXT NOT NULL,
    source TEXT NOT NULL,
    retrieved_at TIMESTAMP NOT NULL,
    route_count INTEGER NOT NULL,
    stop_count INTEGER NOT NULL,
PRIMARY KEY (hash, source)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dataset table: %w", err)
	}

	return &SQLiteStorage{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		metaDB:   db,
		datasets: map[string]*sql.DB{},
	}, nil
}

func (s *SQLiteStorage) ListDatasets(filter ListDatasetsFilter) ([]*DatasetMetadata, error) {
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
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		params = append(params, filter.Source)
	}
	if filter.Hash != "" {
		conditions = append(conditions, "hash = ?")
		params = append(params, filter.Hash)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY retrieved_at DESC"

	rows, err := s.metaDB.Query(query, params...)
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

func (s *SQLiteStorage) WriteDatasetMetadata(d *DatasetMetadata) error {
	_, err := s.metaDB.Exec(`
INSERT INTO dataset (
    hash,
    source,
    retrieved_at,
    route_count,
    stop_count
)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (hash, source) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    route_count = excluded.route_count,
    stop_count = excluded.stop_count
`,
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

func (s *SQLiteStorage) GetReader(dataset string) (DatasetReader, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	db, found := s.datasets[dataset]
	if found {
		return &SQLiteDatasetReader{db: db}, nil
	}
	if !s.OnDisk {
		return nil, fmt.Errorf("dataset %s does not exist", dataset)
	}

	sourceName := s.Directory + "/" + dataset + ".db"
	if _, err := os.Stat(sourceName); os.IsNotExist(err) {
		return nil, fmt.Errorf("dataset %s does not exist at %s", dataset, sourceName)
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s.datasets[dataset] = db

	return &SQLiteDatasetReader{db: db}, nil
}

func (s *SQLiteStorage) GetWriter(dataset string) (DatasetWriter, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, found := s.datasets[dataset]; found {
		old.Close()
		delete(s.datasets, dataset)
	}

	sourceName := ":memory:"
	if s.OnDisk {
		sourceName = s.Directory + "/" + dataset + ".db"
		// delete file if it exists
		if _, err := os.Stat(sourceName); err == nil {
			err := os.Remove(sourceName)
			if err != nil {
				return nil, fmt.Errorf("removing existing database: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
CREATE TABLE route_stops (
    route_id TEXT NOT NULL,
    route_display TEXT NOT NULL,
    direction INTEGER NOT NULL,
    direction_name TEXT NOT NULL,
    stop_order INTEGER NOT NULL,
    stop_name TEXT NOT NULL,
    time_to_next REAL,
PRIMARY KEY (route_id, direction, stop_order)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating route_stops table: %w", err)
	}

	s.datasets[dataset] = db

	return &SQLiteDatasetWriter{db: db}, nil
}

func (w *SQLiteDatasetWriter) BeginStops() error {
	// transaction with prepared statement.
	var err error
	w.stopInsertTx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning route_stops insert transaction: %w", err)
	}

	w.stopInsertQuery, err = w.stopInsertTx.Prepare(`
INSERT INTO route_stops (route_id, route_display, direction, direction_name, stop_order, stop_name, time_to_next)
VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		w.stopInsertTx.Rollback()
		w.stopInsertTx = nil
		return fmt.Errorf("preparing route_stops insert: %w", err)
	}

	return nil
}

func (w *SQLiteDatasetWriter) WriteStop(stop *model.StopRecord) error {
	if w.stopInsertQuery == nil {
		return fmt.Errorf("WriteStop called outside BeginStops/EndStops")
	}

	var timeToNext sql.NullFloat64
	if stop.TimeToNext != nil {
		timeToNext = sql.NullFloat64{Float64: *stop.TimeToNext, Valid: true}
	}

	_, err := w.stopInsertQuery.Exec(
		stop.RouteID,
		stop.RouteDisplay,
		stop.Direction,
		stop.DirectionName,
		stop.Order,
		stop.StopName,
		timeToNext,
	)
	if err != nil {
		w.stopInsertQuery.Close()
		w.stopInsertTx.Rollback()
		w.stopInsertTx = nil
		w.stopInsertQuery = nil
		return fmt.Errorf("inserting route stop: %w", err)
	}

	return nil
}

func (w *SQLiteDatasetWriter) EndStops() error {
	if w.stopInsertTx == nil {
		return fmt.Errorf("no route_stops insert transaction")
	}

	// commit transaction and clean up
	w.stopInsertQuery.Close()
	err := w.stopInsertTx.Commit()
	if err != nil {
		return fmt.Errorf("committing route_stops insert transaction: %w", err)
	}
	w.stopInsertTx = nil
	w.stopInsertQuery = nil

	return nil
}

func (w *SQLiteDatasetWriter) Close() error {
	if w.stopInsertTx != nil {
		w.stopInsertQuery.Close()
		w.stopInsertTx.Rollback()
		w.stopInsertTx = nil
		w.stopInsertQuery = nil
	}
	return nil
}

func (r *SQLiteDatasetReader) Stops() ([]*model.StopRecord, error) {
	return r.StopsFor(StopFilter{})
}

func (r *SQLiteDatasetReader) StopsFor(filter StopFilter) ([]*model.StopRecord, error) {
	query := `
SELECT route_id, route_display, direction, direction_name, stop_order, stop_name, time_to_next
FROM route_stops`

	conditions := []string{}
	params := []interface{}{}
	if filter.RouteID != "" {
		conditions = append(conditions, "route_id = ?")
		params = append(params, filter.RouteID)
	}
	if filter.Direction != 0 {
		conditions = append(conditions, "direction = ?")
		params = append(params, filter.Direction)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY route_id, direction, stop_order"

	rows, err := r.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying route_stops: %w", err)
	}
	defer rows.Close()

	return scanStops(rows)
}

// Shared between the sqlite and postgres readers.
func scanStops(rows *sql.Rows) ([]*model.StopRecord, error) {
	stops := []*model.StopRecord{}
	for rows.Next() {
		s := &model.StopRecord{}
		timeToNext := sql.NullFloat64{}
		err := rows.Scan(
			&s.RouteID,
			&s.RouteDisplay,
			&s.Direction,
			&s.DirectionName,
			&s.Order,
			&s.StopName,
			&timeToNext,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning route stop: %w", err)
		}
		if timeToNext.Valid {
			t := timeToNext.Float64
			s.TimeToNext = &t
		}
		stops = append(stops, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating route stops: %w", err)
	}

	return stops, nil
}
