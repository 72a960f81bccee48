// Package storage defines the pluggable persistence contract for dataset
// tables and its built-in backends.
package storage

import (
	"errors"
	"strings"
	"time"

	"marketsync/series"
)

// ErrDatasetNotFound is returned by Load and TimeRangeOf when the addressed
// dataset does not exist
var ErrDatasetNotFound = errors.New("dataset not found")

// DatasetInfo describes one stored dataset, returned by List
type DatasetInfo struct {
	ID       string    `json:"id"`
	Sub      string    `json:"sub"`
	Size     string    `json:"size"`
	Rows     int64     `json:"rows,omitempty"`
	Modified time.Time `json:"modified"`
}

// Backend is the storage adapter contract. Datasets are addressed by
// (id, sub) where id is typically "{symbol}_{timeframe}" and sub namespaces
// by data source name. Implementations do not need to be safe for concurrent
// writers to the same dataset; the scheduler serializes access per backend.
type Backend interface {
	// Name returns the registered backend name, also used as the lock key
	Name() string

	// Save persists the full table for a dataset, replacing any previous
	// contents. Saving an empty table succeeds without writing.
	Save(id, sub string, table series.Table) error

	// Load returns the stored table, or ErrDatasetNotFound
	Load(id, sub string) (series.Table, error)

	// Exists reports whether the dataset has been saved before
	Exists(id, sub string) bool

	// Delete removes a dataset. Deleting a missing dataset is a no-op.
	Delete(id, sub string) error

	// List enumerates stored datasets, optionally filtered by sub
	// (empty sub means all)
	List(sub string) ([]DatasetInfo, error)

	// TimeRangeOf returns the min and max timestamps of a stored dataset,
	// or ErrDatasetNotFound
	TimeRangeOf(id, sub string) (startMs, endMs int64, err error)

	// Close releases backend resources
	Close() error
}

// Factory builds a backend instance from task-level configuration
type Factory func(config map[string]string) (Backend, error)

// SafeID makes a dataset id usable as a file or table name component
func SafeID(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}
