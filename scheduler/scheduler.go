package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"marketsync/datasource"
	"marketsync/storage"
	"marketsync/timeutil"
)

const (
	// DefaultPollInterval is how often the control loop checks admission
	// windows
	DefaultPollInterval = 5 * time.Second

	// stopTimeout bounds how long Stop waits for the control loop and
	// in-flight executions
	stopTimeout = 30 * time.Second
)

// StateListener is notified after every task state transition. Used by the
// websocket hub to push live status.
type StateListener func(name string, state TaskState)

// Scheduler orchestrates recurring sync tasks: it owns the task registry,
// the plugin registries, the admission windows, a bounded worker pool and
// the control loop that dispatches due tasks.
type Scheduler struct {
	mu sync.RWMutex

	tasks  map[string]*Task
	states map[string]*TaskState

	// per-task plugin instances
	sources  map[string]datasource.DataSource
	storages map[string]storage.Backend

	sourceFactories  map[string]datasource.Factory
	storageFactories map[string]storage.Factory

	slots  *timeutil.TimeSlotManager
	locks  *LockManager
	engine *SyncEngine

	// workers is the pool semaphore; a slot is held for the whole execution
	workers chan struct{}
	wg      sync.WaitGroup

	pollInterval time.Duration
	tasksFile    string

	running  bool
	stopChan chan struct{}
	loopDone chan struct{}

	listener StateListener
}

// Options configures a scheduler
type Options struct {
	MaxWorkers   int
	PollInterval time.Duration
	// TasksFile enables task persistence when non-empty
	TasksFile string
}

// New creates a scheduler with the built-in source and storage plugins
// registered
func New(opts Options) *Scheduler {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	locks := NewLockManager()
	s := &Scheduler{
		tasks:            make(map[string]*Task),
		states:           make(map[string]*TaskState),
		sources:          make(map[string]datasource.DataSource),
		storages:         make(map[string]storage.Backend),
		sourceFactories:  make(map[string]datasource.Factory),
		storageFactories: make(map[string]storage.Factory),
		slots:            timeutil.NewTimeSlotManager(),
		locks:            locks,
		engine:           NewSyncEngine(locks),
		workers:          make(chan struct{}, opts.MaxWorkers),
		pollInterval:     opts.PollInterval,
		tasksFile:        opts.TasksFile,
	}

	s.RegisterSourceFactory("CryptoSpot", datasource.NewCryptoSpot)
	s.RegisterSourceFactory("CryptoUMFuture", datasource.NewCryptoUMFuture)
	s.RegisterSourceFactory("Fred", datasource.NewFred)
	s.RegisterSourceFactory("FearGreed", datasource.NewFearGreed)
	s.RegisterSourceFactory("GlobalMarket", datasource.NewGlobalMarket)

	s.RegisterStorageFactory("LocalFile", storage.NewLocalFileBackend)
	s.RegisterStorageFactory("SQLite", storage.NewSQLiteBackend)
	s.RegisterStorageFactory("MongoDB", storage.NewMongoBackend)
	s.RegisterStorageFactory("Postgres", storage.NewPostgresBackend)

	return s
}

// RegisterSourceFactory registers a data source plugin by name
func (s *Scheduler) RegisterSourceFactory(name string, factory datasource.Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceFactories[name] = factory
}

// RegisterStorageFactory registers a storage plugin by name
func (s *Scheduler) RegisterStorageFactory(name string, factory storage.Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storageFactories[name] = factory
}

// ListSourcePlugins returns the registered data source plugin names, sorted
func (s *Scheduler) ListSourcePlugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sourceFactories))
	for name := range s.sourceFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListStoragePlugins returns the registered storage plugin names, sorted
func (s *Scheduler) ListStoragePlugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.storageFactories))
	for name := range s.storageFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetStateListener installs the state transition callback
func (s *Scheduler) SetStateListener(listener StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = listener
}

// setState mutates a task's run-state under the scheduler lock and notifies
// the listener
func (s *Scheduler) setState(name string, mutate func(*TaskState)) {
	s.mu.Lock()
	state, ok := s.states[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	mutate(state)
	state.LastUpdatedAt = time.Now()
	snapshot := *state
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(name, snapshot)
	}
}

// AddTask validates and registers a task. It is all-or-nothing: any failure
// while instantiating plugins or registering the admission window rolls back
// everything created so far.
func (s *Scheduler) AddTask(task Task, overwrite bool) error {
	if task.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if len(task.Symbols) == 0 {
		return fmt.Errorf("task %s must declare at least one symbol", task.Name)
	}
	if task.Timeframe == "" {
		task.Timeframe = DefaultTimeframe
	}
	if !validTimeframe(task.Timeframe) {
		return fmt.Errorf("unsupported timeframe %q, supported: %v", task.Timeframe, SupportedTimeframes)
	}
	if task.TimeRangeStr == "" {
		task.TimeRangeStr = DefaultTimeRange
	}
	timeRange, err := timeutil.ParseTimeRange(task.TimeRangeStr)
	if err != nil {
		return err
	}
	task.TimeRange = timeRange

	// an empty slot is allowed: the task can still be triggered manually but
	// is never dispatched by the control loop
	if task.Slot.Start != "" || task.Slot.End != "" {
		slot, err := timeutil.NewTimeSlot(task.Slot.Start, task.Slot.End)
		if err != nil {
			return err
		}
		task.Slot = slot
	}

	s.mu.Lock()
	if _, exists := s.tasks[task.Name]; exists && !overwrite {
		s.mu.Unlock()
		return fmt.Errorf("task %q already exists, set overwrite to replace", task.Name)
	}
	sourceFactory, ok := s.sourceFactories[task.SourceName]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown data source plugin: %s", task.SourceName)
	}
	storageFactory, ok := s.storageFactories[task.StorageName]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown storage plugin: %s", task.StorageName)
	}
	s.mu.Unlock()

	// instantiate plugins outside the lock, rolling back on failure
	source, err := sourceFactory(task.SourceConfig)
	if err != nil {
		return fmt.Errorf("failed to create data source %s: %w", task.SourceName, err)
	}
	backend, err := storageFactory(task.StorageConfig)
	if err != nil {
		source.CloseConnections()
		return fmt.Errorf("failed to create storage %s: %w", task.StorageName, err)
	}
	if err := s.slots.AddSlot(task.Name, task.Slot, overwrite); err != nil {
		source.CloseConnections()
		backend.Close()
		return err
	}

	s.mu.Lock()
	status := StatusCreated
	if _, exists := s.tasks[task.Name]; exists {
		status = StatusReplaced
		if oldSource, ok := s.sources[task.Name]; ok {
			oldSource.CloseConnections()
		}
		if oldBackend, ok := s.storages[task.Name]; ok {
			oldBackend.Close()
		}
	}
	s.tasks[task.Name] = &task
	s.sources[task.Name] = source
	s.storages[task.Name] = backend
	now := time.Now()
	s.states[task.Name] = &TaskState{
		Status:        status,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	s.mu.Unlock()

	log.Printf("✅ Task %s added (source=%s storage=%s timeframe=%s symbols=%d)",
		task.Name, task.SourceName, task.StorageName, task.Timeframe, len(task.Symbols))
	s.persistTasks()
	return nil
}

// DeleteTask tears a task down: run-state first, then its admission window,
// then its plugin instances, then the task itself. A concurrently running
// execution sees a stale but consistent view.
func (s *Scheduler) DeleteTask(name string) error {
	s.mu.Lock()
	if _, ok := s.tasks[name]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	if state, ok := s.states[name]; ok {
		state.Status = StatusDeleted
		state.LastUpdatedAt = time.Now()
	}
	s.mu.Unlock()

	s.slots.DeleteSlot(name)

	s.mu.Lock()
	if source, ok := s.sources[name]; ok {
		source.CloseConnections()
		delete(s.sources, name)
	}
	if backend, ok := s.storages[name]; ok {
		backend.Close()
		delete(s.storages, name)
	}
	delete(s.tasks, name)
	delete(s.states, name)
	s.mu.Unlock()

	log.Printf("Task %s deleted", name)
	s.persistTasks()
	return nil
}

// GetTask returns a copy of a task definition
func (s *Scheduler) GetTask(name string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[name]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return *task, nil
}

// ListTasks returns copies of all task definitions, sorted by name
func (s *Scheduler) ListTasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tasks := make([]Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, *task)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks
}

// GetState returns a copy of a task's run-state
func (s *Scheduler) GetState(name string) (TaskState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[name]
	if !ok {
		return TaskState{}, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return *state, nil
}

// StatesSnapshot returns copies of every task's run-state
func (s *Scheduler) StatesSnapshot() map[string]TaskState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]TaskState, len(s.states))
	for name, state := range s.states {
		snapshot[name] = *state
	}
	return snapshot
}

// IsRunning reports whether the control loop is active
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Start launches the control loop. Calling it while already running is a
// no-op with a warning.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("⚠️ Scheduler already running, ignoring start")
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.loopDone = make(chan struct{})
	stopChan := s.stopChan
	loopDone := s.loopDone
	s.mu.Unlock()

	log.Printf("Scheduler started (poll interval %s)", s.pollInterval)
	go s.run(stopChan, loopDone)
}

// Stop halts the control loop, waits (bounded) for in-flight executions,
// closes source connections and clears run-state. Safe to call twice.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	loopDone := s.loopDone
	s.mu.Unlock()

	select {
	case <-loopDone:
	case <-time.After(stopTimeout):
		log.Println("⚠️ Scheduler control loop did not stop within timeout")
	}

	workersDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-time.After(stopTimeout):
		log.Println("⚠️ In-flight task executions did not finish within timeout")
	}

	s.mu.Lock()
	for name, source := range s.sources {
		source.CloseConnections()
		log.Printf("Closed source connections for task %s", name)
	}
	for name, state := range s.states {
		s.states[name] = &TaskState{
			Status:        StatusStopped,
			CreatedAt:     state.CreatedAt,
			LastUpdatedAt: time.Now(),
		}
	}
	s.mu.Unlock()

	log.Println("Scheduler stopped")
}

// run is the control loop: reap finished executions, evaluate admission
// windows, dispatch due tasks
func (s *Scheduler) run(stopChan, loopDone chan struct{}) {
	defer close(loopDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
			s.reapFinished()
			s.dispatchDue()
		}
	}
}

// reapFinished clears execution handles whose work has completed, keeping
// the historical counters
func (s *Scheduler) reapFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.states {
		if state.done != nil && !state.executionPending() {
			state.done = nil
			state.cancel = nil
		}
	}
}

// dispatchDue submits every task whose admission window just opened to the
// worker pool. A task with an execution still in flight is skipped, as is
// any dispatch when the pool is saturated.
func (s *Scheduler) dispatchDue() {
	for _, task := range s.ListTasks() {
		if !s.slots.IsInSlot(task.Name, true) {
			s.setState(task.Name, func(st *TaskState) {
				if st.Status != StatusCreated && st.Status != StatusReplaced {
					st.Status = StatusWaiting
				}
			})
			continue
		}
		s.TriggerTask(task.Name)
	}
}

// TriggerTask dispatches one task to the worker pool immediately, bypassing
// its admission window. Used by the control loop and the management API.
func (s *Scheduler) TriggerTask(name string) bool {
	s.mu.Lock()
	task, ok := s.tasks[name]
	if !ok {
		s.mu.Unlock()
		return false
	}
	state := s.states[name]
	if state.executionPending() {
		s.mu.Unlock()
		log.Printf("⚠️ Skipped task %s: previous execution still running", name)
		return false
	}

	select {
	case s.workers <- struct{}{}:
	default:
		s.mu.Unlock()
		log.Printf("⚠️ Skipped task %s: worker pool saturated", name)
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	state.done = done
	state.cancel = cancel
	state.Status = StatusRunning
	state.LastUpdatedAt = time.Now()
	taskCopy := *task
	source := s.sources[name]
	backend := s.storages[name]
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			close(done)
			<-s.workers
			s.wg.Done()
		}()
		s.executeTask(ctx, &taskCopy, source, backend)
	}()
	return true
}

// CancelTask cancels a task's in-flight execution, if any
func (s *Scheduler) CancelTask(name string) bool {
	s.mu.Lock()
	state, ok := s.states[name]
	if !ok || !state.executionPending() || state.cancel == nil {
		s.mu.Unlock()
		return false
	}
	cancel := state.cancel
	s.mu.Unlock()

	cancel()
	s.setState(name, func(st *TaskState) {
		st.Status = StatusStopped
	})
	return true
}

// executeTask runs one full task execution on a pool worker: every symbol in
// order, sequentially. A per-symbol failure is logged, kept in ErrorMessage
// and the loop continues to the next symbol; the run still ends completed.
// Cancellation ends the run stopped, and failed is reserved for errors the
// loop does not handle.
func (s *Scheduler) executeTask(ctx context.Context, task *Task, source datasource.DataSource, backend storage.Backend) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Task %s aborted: %v", task.Name, r)
			s.setState(task.Name, func(st *TaskState) {
				st.RunCount++
				st.Status = StatusFailed
				st.LastRunStatus = StatusFailed
				st.ErrorMessage = fmt.Sprintf("unexpected error: %v", r)
			})
		}
	}()

	now := time.Now()
	s.setState(task.Name, func(st *TaskState) {
		st.Status = StatusExecuting
		st.LastRunTime = &now
	})
	log.Printf("Executing task %s (%d symbols)", task.Name, len(task.Symbols))

	failures := 0
	cancelled := false
	for _, symbol := range task.Symbols {
		if ctx.Err() != nil {
			log.Printf("⚠️ Task %s cancelled before symbol %s", task.Name, symbol)
			cancelled = true
			break
		}
		msg, err := s.engine.SyncSymbol(ctx, task, symbol, source, backend)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("⚠️ Task %s cancelled during symbol %s", task.Name, symbol)
				cancelled = true
				break
			}
			failures++
			log.Printf("❌ Task %s symbol %s failed: %v", task.Name, symbol, err)
			s.setState(task.Name, func(st *TaskState) {
				st.ErrorMessage = err.Error()
			})
			continue
		}
		log.Printf("Task %s %s", task.Name, msg)
	}

	s.setState(task.Name, func(st *TaskState) {
		st.RunCount++
		if cancelled {
			st.Status = StatusStopped
			st.LastRunStatus = StatusStopped
			return
		}
		st.Status = StatusCompleted
		st.LastRunStatus = StatusCompleted
		if failures == 0 {
			st.ErrorMessage = ""
		}
	})
	log.Printf("Task %s finished with %d/%d symbols failed", task.Name, failures, len(task.Symbols))
}
