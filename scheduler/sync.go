package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketsync/datasource"
	"marketsync/series"
	"marketsync/storage"
	"marketsync/timeutil"
)

// SyncEngine performs the incremental per-symbol synchronization: decide what
// is missing, fetch only that, merge and persist. Storage access is
// serialized per backend through the lock manager; the fetch itself happens
// outside the lock.
type SyncEngine struct {
	locks *LockManager
}

// NewSyncEngine creates the engine sharing the scheduler's lock registry
func NewSyncEngine(locks *LockManager) *SyncEngine {
	return &SyncEngine{locks: locks}
}

// SyncSymbol brings one dataset up to date. It returns a human-readable
// outcome message; a non-nil error means this symbol's sync failed.
func (e *SyncEngine) SyncSymbol(ctx context.Context, task *Task, symbol string, source datasource.DataSource, backend storage.Backend) (string, error) {
	tfMs, err := timeutil.ParseTimeframeToMilliseconds(task.Timeframe)
	if err != nil {
		return "", err
	}

	id := task.DatasetID(symbol)
	sub := source.Name()
	lock := e.locks.GetLock(backend.Name())

	// load-and-decide phase under the backend lock
	lock.Lock()
	var cached series.Table
	if backend.Exists(id, sub) {
		cached, err = backend.Load(id, sub)
		if err != nil && !errors.Is(err, storage.ErrDatasetNotFound) {
			lock.Unlock()
			return "", fmt.Errorf("failed to load cached data for %s: %w", id, err)
		}
	}
	lock.Unlock()

	var nextExpectedMs int64
	if cached.IsEmpty() {
		// align the range start to a period boundary; weeks start Monday
		nextExpectedMs, err = timeutil.PrevBoundaryMs(task.Timeframe, time.UnixMilli(task.TimeRange.StartMs))
		if err != nil {
			return "", err
		}
	} else {
		nextExpectedMs = cached.MaxTime() + tfMs
	}

	effectiveEndMs := task.TimeRange.EffectiveEndMs()

	// the cache must lag by at least one full period beyond the last complete
	// period boundary, otherwise only the still-open period is missing
	if nextExpectedMs >= effectiveEndMs-tfMs {
		return fmt.Sprintf("%s: no update needed", id), nil
	}

	fetched, err := source.Fetch(ctx, symbol, task.Timeframe, nextExpectedMs, &effectiveEndMs)
	if err != nil {
		return "", fmt.Errorf("fetch failed for %s: %w", symbol, err)
	}
	if fetched.IsEmpty() {
		return fmt.Sprintf("%s: no new rows from source", id), nil
	}

	merged := series.Merge(cached, fetched)
	newRows := merged.Len() - cached.Len()

	lock.Lock()
	err = backend.Save(id, sub, merged)
	lock.Unlock()
	if err != nil {
		return "", fmt.Errorf("save failed for %s: %w", id, err)
	}

	msg := fmt.Sprintf("%s: %d rows total, %d new, span %d-%d",
		id, merged.Len(), newRows, merged.MinTime(), merged.MaxTime())
	log.Printf("✅ Synced %s", msg)
	return msg, nil
}
