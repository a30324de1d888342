package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Task is one entry in the external .nav/tasks.json plan file. Unlike the
// conversation itself, the task list is allowed to persist across processes
// — it is a plain file the user edits via the /tasks command, not
// conversation state the core reconstructs.
type Task struct {
	ID          int    `json:"id"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
	ActiveForm  string `json:"active_form,omitempty"`
	Status      string `json:"status"`
}

const tasksFileName = "tasks.json"

func tasksPath(workDir string) string {
	return filepath.Join(workDir, ".nav", tasksFileName)
}

// LoadTasks reads the task list from .nav/tasks.json. A missing file is not
// an error — it simply means there are no tasks yet.
func LoadTasks(workDir string) ([]Task, error) {
	data, err := os.ReadFile(tasksPath(workDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	return tasks, nil
}

// SaveTasks writes the task list to .nav/tasks.json, creating the .nav
// directory if needed.
func SaveTasks(workDir string, tasks []Task) error {
	dir := filepath.Join(workDir, ".nav")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create .nav directory: %w", err)
	}
	data, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize tasks: %w", err)
	}
	return os.WriteFile(tasksPath(workDir), data, 0644)
}

// AddTask appends a new pending task, auto-assigning the next ID.
func AddTask(tasks []Task, content, description string) []Task {
	maxID := 0
	for _, t := range tasks {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return append(tasks, Task{
		ID:          maxID + 1,
		Content:     content,
		Description: description,
		Status:      "pending",
	})
}

// SetTaskStatus changes the status of the task with the given ID.
func SetTaskStatus(tasks []Task, id int, status string) error {
	switch status {
	case "pending", "in_progress", "completed":
	default:
		return fmt.Errorf("invalid status %q (must be pending, in_progress, or completed)", status)
	}
	for i := range tasks {
		if tasks[i].ID == id {
			tasks[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("task %d not found", id)
}

// TaskSummary renders a one-line-per-task status summary for injection into
// the system prompt, read fresh once per turn.
func TaskSummary(tasks []Task) string {
	if len(tasks) == 0 {
		return "No tasks tracked in .nav/tasks.json."
	}

	var sb strings.Builder
	pending, inProgress, completed := 0, 0, 0
	for _, t := range tasks {
		switch t.Status {
		case "pending":
			pending++
			fmt.Fprintf(&sb, "  [ ] %d. %s\n", t.ID, t.Content)
		case "in_progress":
			inProgress++
			fmt.Fprintf(&sb, "  [~] %d. %s\n", t.ID, t.Content)
		case "completed":
			completed++
			fmt.Fprintf(&sb, "  [x] %d. %s\n", t.ID, t.Content)
		}
	}
	fmt.Fprintf(&sb, "\n%d tasks (%d pending, %d in progress, %d completed)",
		len(tasks), pending, inProgress, completed)
	return sb.String()
}
