package config

import (
	"fmt"
	"regexp"
)

var taskNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks the manifest for structural errors.
func (m *Manifest) Validate() error {
	if m.Concurrency < 0 {
		return fmt.Errorf("concurrency: must be >= 0, got %d", m.Concurrency)
	}
	if len(m.Tasks) == 0 {
		return fmt.Errorf("tasks: at least one task is required")
	}

	seen := make(map[string]struct{}, len(m.Tasks))
	for i, task := range m.Tasks {
		if task == nil {
			return fmt.Errorf("tasks[%d]: task entry must not be empty", i)
		}
		if task.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		if !taskNamePattern.MatchString(task.Name) {
			return fmt.Errorf("%s: name must match %s", taskField(task.Name, "name"), taskNamePattern)
		}
		if _, dup := seen[task.Name]; dup {
			return fmt.Errorf("%s: duplicate task name", taskField(task.Name, "name"))
		}
		seen[task.Name] = struct{}{}
		if len(task.Command) == 0 {
			return fmt.Errorf("%s: command is required", taskField(task.Name, "command"))
		}
		if task.Command[0] == "" {
			return fmt.Errorf("%s: command executable must not be empty", taskField(task.Name, "command"))
		}
	}
	return nil
}

func taskField(task, field string) string {
	return fmt.Sprintf("task %s: %s", task, field)
}
