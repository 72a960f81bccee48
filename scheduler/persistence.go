package scheduler

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// persistTasks writes the current task definitions to the tasks file.
// Disabled when no file is configured.
func (s *Scheduler) persistTasks() {
	if s.tasksFile == "" {
		return
	}

	tasks := s.ListTasks()
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		log.Printf("❌ Failed to marshal tasks: %v", err)
		return
	}

	dir := filepath.Dir(s.tasksFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("❌ Failed to create tasks directory: %v", err)
		return
	}
	if err := os.WriteFile(s.tasksFile, data, 0644); err != nil {
		log.Printf("❌ Failed to save tasks file: %v", err)
		return
	}
	log.Printf("Saved %d tasks to %s", len(tasks), s.tasksFile)
}

// LoadTasks reconstructs tasks from the tasks file written by persistTasks.
// A missing file is not an error. Tasks that fail validation are skipped with
// a warning so one bad entry cannot block startup.
func (s *Scheduler) LoadTasks() error {
	if s.tasksFile == "" {
		return nil
	}

	data, err := os.ReadFile(s.tasksFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("No tasks file at %s, starting empty", s.tasksFile)
			return nil
		}
		return fmt.Errorf("failed to read tasks file: %w", err)
	}

	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return fmt.Errorf("failed to parse tasks file: %w", err)
	}

	loaded := 0
	for _, task := range tasks {
		if err := s.AddTask(task, true); err != nil {
			log.Printf("⚠️ Skipping persisted task %s: %v", task.Name, err)
			continue
		}
		loaded++
	}
	log.Printf("Loaded %d/%d tasks from %s", loaded, len(tasks), s.tasksFile)
	return nil
}
