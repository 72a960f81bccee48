package scheduler

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-co-op/gocron"
)

const maxTasksBackups = 7

// Maintenance runs the housekeeping jobs that are independent of the sync
// control loop: nightly tasks-file backups with pruning and a weekly storage
// report.
type Maintenance struct {
	cron      *gocron.Scheduler
	scheduler *Scheduler
	tasksFile string
}

// NewMaintenance creates the maintenance runner
func NewMaintenance(s *Scheduler, tasksFile string) *Maintenance {
	return &Maintenance{
		cron:      gocron.NewScheduler(time.UTC),
		scheduler: s,
		tasksFile: tasksFile,
	}
}

// Start registers and launches the maintenance jobs
func (m *Maintenance) Start() {
	m.cron.Every(1).Day().At("00:30").Do(func() {
		if err := m.backupTasksFile(); err != nil {
			log.Printf("⚠️ Tasks file backup failed: %v", err)
		}
	})

	m.cron.Every(1).Sunday().At("01:00").Do(func() {
		m.logStorageReport()
	})

	m.cron.StartAsync()
	log.Println("Maintenance jobs started")
}

// Stop halts the maintenance jobs
func (m *Maintenance) Stop() {
	m.cron.Stop()
}

// backupTasksFile copies the tasks file to a dated backup and prunes old ones
func (m *Maintenance) backupTasksFile() error {
	if m.tasksFile == "" {
		return nil
	}
	data, err := os.ReadFile(m.tasksFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read tasks file: %w", err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak", m.tasksFile, time.Now().UTC().Format("20060102"))
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	log.Printf("Tasks file backed up to %s", backupPath)

	return m.pruneBackups()
}

// pruneBackups keeps only the newest maxTasksBackups backup files
func (m *Maintenance) pruneBackups() error {
	matches, err := filepath.Glob(m.tasksFile + ".*.bak")
	if err != nil {
		return err
	}
	if len(matches) <= maxTasksBackups {
		return nil
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-maxTasksBackups] {
		if err := os.Remove(old); err != nil {
			log.Printf("⚠️ Failed to remove old backup %s: %v", old, err)
		}
	}
	return nil
}

// logStorageReport logs dataset counts per task storage backend
func (m *Maintenance) logStorageReport() {
	m.scheduler.mu.RLock()
	backends := make(map[string]int)
	for name, backend := range m.scheduler.storages {
		infos, err := backend.List("")
		if err != nil {
			log.Printf("⚠️ Storage report failed for task %s: %v", name, err)
			continue
		}
		backends[backend.Name()] += len(infos)
	}
	m.scheduler.mu.RUnlock()

	for backend, count := range backends {
		log.Printf("Storage report: %s holds %d datasets", backend, count)
	}
}
