package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marketsync/config"
	"marketsync/series"
	"marketsync/timeutil"
)

// SQLiteBackend stores all datasets in a single embedded database file,
// one row per observation keyed by (dataset_id, sub, time_ms)
type SQLiteBackend struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewSQLiteBackend opens (or creates) the database. config["db_path"] falls
// back to marketsync.db under the DATA_DIR environment setting, then the
// ./data/marketsync.db default.
func NewSQLiteBackend(cfg map[string]string) (Backend, error) {
	dbPath := cfg["db_path"]
	if dbPath == "" && config.AppConfig != nil && config.AppConfig.DataDir != "" {
		dbPath = filepath.Join(config.AppConfig.DataDir, "marketsync.db")
	}
	if dbPath == "" {
		dbPath = "data/marketsync.db"
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	backend := &SQLiteBackend{db: db, dbPath: dbPath}
	if err := backend.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("✅ SQLite storage initialized: %s", dbPath)
	return backend, nil
}

func (b *SQLiteBackend) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS dataset_rows (
		dataset_id TEXT NOT NULL,
		sub        TEXT NOT NULL,
		time_ms    INTEGER NOT NULL,
		row_values TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (dataset_id, sub, time_ms)
	);
	CREATE INDEX IF NOT EXISTS idx_dataset_rows_sub ON dataset_rows(sub);
	`
	if _, err := b.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Name returns the backend name
func (b *SQLiteBackend) Name() string {
	return "SQLite"
}

// Save replaces the stored rows for a dataset inside one transaction
func (b *SQLiteBackend) Save(id, sub string, table series.Table) error {
	if table.IsEmpty() {
		log.Printf("⚠️ Skipping save of empty table for %s/%s", sub, id)
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dataset_rows WHERE dataset_id = ? AND sub = ?`, id, sub); err != nil {
		return fmt.Errorf("failed to clear dataset %s: %w", id, err)
	}

	stmt, err := tx.Prepare(`INSERT INTO dataset_rows (dataset_id, sub, time_ms, row_values) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range table {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal row values: %w", err)
		}
		if _, err := stmt.Exec(id, sub, row.TimeMs, string(values)); err != nil {
			return fmt.Errorf("failed to insert row at %d: %w", row.TimeMs, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset %s: %w", id, err)
	}
	return nil
}

// Load reads the dataset rows ordered by time
func (b *SQLiteBackend) Load(id, sub string) (series.Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(
		`SELECT time_ms, row_values FROM dataset_rows WHERE dataset_id = ? AND sub = ? ORDER BY time_ms ASC`,
		id, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}
	defer rows.Close()

	var table series.Table
	for rows.Next() {
		var timeMs int64
		var valuesJSON string
		if err := rows.Scan(&timeMs, &valuesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values := make(map[string]float64)
		if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
			return nil, fmt.Errorf("failed to parse row values: %w", err)
		}
		table = append(table, series.Row{TimeMs: timeMs, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dataset %s: %w", id, err)
	}
	if table.IsEmpty() {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}
	return table, nil
}

// Exists reports whether any rows are stored for the dataset
func (b *SQLiteBackend) Exists(id, sub string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count int
	err := b.db.QueryRow(
		`SELECT COUNT(1) FROM dataset_rows WHERE dataset_id = ? AND sub = ? LIMIT 1`,
		id, sub).Scan(&count)
	return err == nil && count > 0
}

// Delete removes all rows for a dataset
func (b *SQLiteBackend) Delete(id, sub string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.Exec(`DELETE FROM dataset_rows WHERE dataset_id = ? AND sub = ?`, id, sub); err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

// List aggregates stored datasets with row counts and last update times
func (b *SQLiteBackend) List(sub string) ([]DatasetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	query := `SELECT dataset_id, sub, COUNT(*), SUM(LENGTH(row_values)), MAX(updated_at)
		FROM dataset_rows`
	args := []interface{}{}
	if sub != "" {
		query += ` WHERE sub = ?`
		args = append(args, sub)
	}
	query += ` GROUP BY dataset_id, sub ORDER BY dataset_id`

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var infos []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		var sizeBytes int64
		var modified time.Time
		if err := rows.Scan(&info.ID, &info.Sub, &info.Rows, &sizeBytes, &modified); err != nil {
			return nil, fmt.Errorf("failed to scan dataset info: %w", err)
		}
		info.Size = timeutil.FormatSize(sizeBytes)
		info.Modified = modified
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// TimeRangeOf returns the stored min and max timestamps for a dataset
func (b *SQLiteBackend) TimeRangeOf(id, sub string) (int64, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var startMs, endMs sql.NullInt64
	err := b.db.QueryRow(
		`SELECT MIN(time_ms), MAX(time_ms) FROM dataset_rows WHERE dataset_id = ? AND sub = ?`,
		id, sub).Scan(&startMs, &endMs)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query time range for %s: %w", id, err)
	}
	if !startMs.Valid || !endMs.Valid {
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}
	return startMs.Int64, endMs.Int64, nil
}

// Close closes the database handle
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
