package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"marketsync/datasource"
	"marketsync/series"
	"marketsync/storage"
)

// fakeSource serves canned rows per symbol and records fetch calls
type fakeSource struct {
	mu      sync.Mutex
	name    string
	rows    map[string]series.Table
	err     error
	panics  string // when set, Fetch panics with this message
	calls   []fetchCall
	block   chan struct{} // when set, Fetch blocks until closed
	closed  atomic.Bool
	started chan struct{} // signalled when a Fetch begins
}

type fetchCall struct {
	symbol  string
	startMs int64
	endMs   int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		name: "FakeSource",
		rows: make(map[string]series.Table),
	}
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, symbol, timeframe string, startMs int64, endMs *int64) (series.Table, error) {
	f.mu.Lock()
	until := int64(0)
	if endMs != nil {
		until = *endMs
	}
	f.calls = append(f.calls, fetchCall{symbol: symbol, startMs: startMs, endMs: until})
	block := f.block
	started := f.started
	panics := f.panics
	fetchErr := f.err
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panics != "" {
		panic(panics)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out series.Table
	for _, row := range f.rows[symbol] {
		if row.TimeMs >= startMs && (endMs == nil || row.TimeMs < *endMs) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSource) CloseConnections() { f.closed.Store(true) }

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeBackend is an in-memory storage backend that detects concurrent access
// to its critical operations
type fakeBackend struct {
	mu       sync.Mutex
	name     string
	data     map[string]series.Table
	saves    int
	closed   atomic.Bool
	inOp     atomic.Int32
	overlaps atomic.Int32
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, data: make(map[string]series.Table)}
}

func (b *fakeBackend) key(id, sub string) string { return sub + "/" + id }

// enterOp flags overlapping entry into storage operations. The sync engine
// must hold the backend lock around every call, so overlap means the lock
// discipline is broken.
func (b *fakeBackend) enterOp() func() {
	if b.inOp.Add(1) > 1 {
		b.overlaps.Add(1)
	}
	return func() { b.inOp.Add(-1) }
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Save(id, sub string, table series.Table) error {
	defer b.enterOp()()
	b.mu.Lock()
	defer b.mu.Unlock()
	if table.IsEmpty() {
		return nil
	}
	cp := make(series.Table, len(table))
	copy(cp, table)
	b.data[b.key(id, sub)] = cp
	b.saves++
	return nil
}

func (b *fakeBackend) Load(id, sub string) (series.Table, error) {
	defer b.enterOp()()
	b.mu.Lock()
	defer b.mu.Unlock()
	table, ok := b.data[b.key(id, sub)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", storage.ErrDatasetNotFound, sub, id)
	}
	cp := make(series.Table, len(table))
	copy(cp, table)
	return cp, nil
}

func (b *fakeBackend) Exists(id, sub string) bool {
	defer b.enterOp()()
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[b.key(id, sub)]
	return ok
}

func (b *fakeBackend) Delete(id, sub string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, b.key(id, sub))
	return nil
}

func (b *fakeBackend) List(sub string) ([]storage.DatasetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var infos []storage.DatasetInfo
	for key := range b.data {
		infos = append(infos, storage.DatasetInfo{ID: key, Sub: sub})
	}
	return infos, nil
}

func (b *fakeBackend) TimeRangeOf(id, sub string) (int64, int64, error) {
	table, err := b.Load(id, sub)
	if err != nil {
		return 0, 0, err
	}
	return table.MinTime(), table.MaxTime(), nil
}

func (b *fakeBackend) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *fakeBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

// fakeFactories registers both fakes on a scheduler and returns them
func fakeFactories(s *Scheduler) (*fakeSource, *fakeBackend) {
	source := newFakeSource()
	backend := newFakeBackend("FakeBackend")
	s.RegisterSourceFactory("FakeSource", func(config map[string]string) (datasource.DataSource, error) {
		return source, nil
	})
	s.RegisterStorageFactory("FakeBackend", func(config map[string]string) (storage.Backend, error) {
		return backend, nil
	})
	return source, backend
}
