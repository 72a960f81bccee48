package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"marketsync/config"
	"marketsync/series"
	"marketsync/timeutil"
)

// LocalFileBackend stores each dataset as one JSON file under
// {dataDir}/{sub}/{id}.json
type LocalFileBackend struct {
	dataDir string
}

// NewLocalFileBackend creates the backend. config["data_dir"] falls back to
// the DATA_DIR environment setting, then the ./data default.
func NewLocalFileBackend(cfg map[string]string) (Backend, error) {
	dataDir := cfg["data_dir"]
	if dataDir == "" && config.AppConfig != nil {
		dataDir = config.AppConfig.DataDir
	}
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &LocalFileBackend{dataDir: dataDir}, nil
}

// Name returns the backend name
func (b *LocalFileBackend) Name() string {
	return "LocalFile"
}

func (b *LocalFileBackend) filePath(id, sub string) string {
	return filepath.Join(b.dataDir, sub, SafeID(id)+".json")
}

// Save writes the table as indented JSON. An empty table is accepted with a
// warning and nothing is written.
func (b *LocalFileBackend) Save(id, sub string, table series.Table) error {
	if table.IsEmpty() {
		log.Printf("⚠️ Skipping save of empty table for %s/%s", sub, id)
		return nil
	}

	dir := filepath.Join(b.dataDir, sub)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dataset %s: %w", id, err)
	}
	if err := os.WriteFile(b.filePath(id, sub), data, 0644); err != nil {
		return fmt.Errorf("failed to write dataset %s: %w", id, err)
	}
	return nil
}

// Load reads a dataset file back into a table
func (b *LocalFileBackend) Load(id, sub string) (series.Table, error) {
	data, err := os.ReadFile(b.filePath(id, sub))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
		}
		return nil, fmt.Errorf("failed to read dataset %s: %w", id, err)
	}

	var table series.Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", id, err)
	}
	return table, nil
}

// Exists reports whether the dataset file is present
func (b *LocalFileBackend) Exists(id, sub string) bool {
	_, err := os.Stat(b.filePath(id, sub))
	return err == nil
}

// Delete removes the dataset file if present
func (b *LocalFileBackend) Delete(id, sub string) error {
	err := os.Remove(b.filePath(id, sub))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

// List walks the data directory and returns dataset metadata. An empty sub
// lists every sub-directory.
func (b *LocalFileBackend) List(sub string) ([]DatasetInfo, error) {
	var subs []string
	if sub != "" {
		subs = []string{sub}
	} else {
		entries, err := os.ReadDir(b.dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to read data directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				subs = append(subs, e.Name())
			}
		}
	}

	var infos []DatasetInfo
	for _, s := range subs {
		entries, err := os.ReadDir(filepath.Join(b.dataDir, s))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read directory %s: %w", s, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			fi, err := e.Info()
			if err != nil {
				continue
			}
			infos = append(infos, DatasetInfo{
				ID:       strings.TrimSuffix(e.Name(), ".json"),
				Sub:      s,
				Size:     timeutil.FormatSize(fi.Size()),
				Modified: fi.ModTime(),
			})
		}
	}
	return infos, nil
}

// TimeRangeOf loads the dataset and returns its time span
func (b *LocalFileBackend) TimeRangeOf(id, sub string) (int64, int64, error) {
	table, err := b.Load(id, sub)
	if err != nil {
		return 0, 0, err
	}
	return table.MinTime(), table.MaxTime(), nil
}

// Close is a no-op for file storage
func (b *LocalFileBackend) Close() error {
	return nil
}
