package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketsync/config"
	"marketsync/series"
)

// SeriesPoint is the relational row shape for stored observations
type SeriesPoint struct {
	DatasetID string    `gorm:"primaryKey;size:255"`
	Sub       string    `gorm:"primaryKey;size:255"`
	TimeMs    int64     `gorm:"primaryKey"`
	RowValues string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// TableName keeps the table name stable regardless of gorm pluralization
func (SeriesPoint) TableName() string {
	return "series_points"
}

// PostgresBackend stores datasets in PostgreSQL via gorm
type PostgresBackend struct {
	db *gorm.DB
}

// postgresDSN assembles the connection string: config["dsn"] wins outright,
// otherwise per-task keys, then the DB_* environment settings, then the
// local defaults
func postgresDSN(cfg map[string]string) string {
	if dsn := cfg["dsn"]; dsn != "" {
		return dsn
	}
	host := cfg["host"]
	port := cfg["port"]
	user := cfg["user"]
	password := cfg["password"]
	dbname := cfg["dbname"]
	sslmode := cfg["sslmode"]
	if config.AppConfig != nil {
		if host == "" {
			host = config.AppConfig.DBHost
		}
		if port == "" {
			port = config.AppConfig.DBPort
		}
		if user == "" {
			user = config.AppConfig.DBUser
		}
		if password == "" {
			password = config.AppConfig.DBPassword
		}
		if dbname == "" {
			dbname = config.AppConfig.DBName
		}
		if sslmode == "" {
			sslmode = config.AppConfig.DBSSLMode
		}
	}
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "5432"
	}
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// NewPostgresBackend connects and migrates the schema. config["dsn"] is the
// full connection string; otherwise host/port/user/password/dbname/sslmode
// keys are assembled into one, falling back to the DB_* environment settings.
func NewPostgresBackend(cfg map[string]string) (Backend, error) {
	dsn := postgresDSN(cfg)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.AutoMigrate(&SeriesPoint{}); err != nil {
		return nil, fmt.Errorf("failed to migrate series_points table: %w", err)
	}

	log.Println("✅ PostgreSQL storage connected")
	return &PostgresBackend{db: db}, nil
}

// Name returns the backend name
func (b *PostgresBackend) Name() string {
	return "Postgres"
}

// Save replaces the stored rows for a dataset inside one transaction
func (b *PostgresBackend) Save(id, sub string, table series.Table) error {
	if table.IsEmpty() {
		log.Printf("⚠️ Skipping save of empty table for %s/%s", sub, id)
		return nil
	}

	points := make([]SeriesPoint, 0, len(table))
	for _, row := range table {
		values, err := json.Marshal(row.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal row values: %w", err)
		}
		points = append(points, SeriesPoint{
			DatasetID: id,
			Sub:       sub,
			TimeMs:    row.TimeMs,
			RowValues: string(values),
		})
	}

	err := b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("dataset_id = ? AND sub = ?", id, sub).
			Delete(&SeriesPoint{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(points, 500).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save dataset %s to PostgreSQL: %w", id, err)
	}
	return nil
}

// Load reads the dataset rows ordered by time
func (b *PostgresBackend) Load(id, sub string) (series.Table, error) {
	var points []SeriesPoint
	err := b.db.Where("dataset_id = ? AND sub = ?", id, sub).
		Order("time_ms ASC").Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}

	table := make(series.Table, 0, len(points))
	for _, p := range points {
		values := make(map[string]float64)
		if err := json.Unmarshal([]byte(p.RowValues), &values); err != nil {
			return nil, fmt.Errorf("failed to parse row values: %w", err)
		}
		table = append(table, series.Row{TimeMs: p.TimeMs, Values: values})
	}
	return table, nil
}

// Exists reports whether any rows are stored for the dataset
func (b *PostgresBackend) Exists(id, sub string) bool {
	var count int64
	err := b.db.Model(&SeriesPoint{}).
		Where("dataset_id = ? AND sub = ?", id, sub).
		Limit(1).Count(&count).Error
	return err == nil && count > 0
}

// Delete removes all rows for a dataset
func (b *PostgresBackend) Delete(id, sub string) error {
	err := b.db.Where("dataset_id = ? AND sub = ?", id, sub).
		Delete(&SeriesPoint{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

// List aggregates stored datasets with row counts and last update times
func (b *PostgresBackend) List(sub string) ([]DatasetInfo, error) {
	type aggRow struct {
		DatasetID string
		Sub       string
		Rows      int64
		Modified  time.Time
	}

	query := b.db.Model(&SeriesPoint{}).
		Select("dataset_id, sub, COUNT(*) AS rows, MAX(updated_at) AS modified").
		Group("dataset_id, sub").Order("dataset_id")
	if sub != "" {
		query = query.Where("sub = ?", sub)
	}

	var results []aggRow
	if err := query.Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	infos := make([]DatasetInfo, 0, len(results))
	for _, r := range results {
		infos = append(infos, DatasetInfo{ID: r.DatasetID, Sub: r.Sub, Rows: r.Rows, Modified: r.Modified})
	}
	return infos, nil
}

// TimeRangeOf returns the stored min and max timestamps for a dataset
func (b *PostgresBackend) TimeRangeOf(id, sub string) (int64, int64, error) {
	type spanRow struct {
		StartMs *int64
		EndMs   *int64
	}
	var span spanRow
	err := b.db.Model(&SeriesPoint{}).
		Select("MIN(time_ms) AS start_ms, MAX(time_ms) AS end_ms").
		Where("dataset_id = ? AND sub = ?", id, sub).
		Scan(&span).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, 0, fmt.Errorf("failed to query time range for %s: %w", id, err)
	}
	if span.StartMs == nil || span.EndMs == nil {
		return 0, 0, fmt.Errorf("%w: %s/%s", ErrDatasetNotFound, sub, id)
	}
	return *span.StartMs, *span.EndMs, nil
}

// Close closes the underlying connection pool
func (b *PostgresBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
