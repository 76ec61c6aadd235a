package config

import (
	"fmt"
	"os"
	"os/exec"
)

// Manifest describes a set of tasks to execute and how many may run at once.
type Manifest struct {
	// Concurrency bounds the number of tasks running simultaneously.
	// Zero (or omitted) means unlimited.
	Concurrency int `yaml:"concurrency"`

	Tasks []*Task `yaml:"tasks"`
}

// Task is one launch entry from the manifest. Tasks start in manifest order,
// subject to the concurrency limit.
type Task struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`

	// ResolvedWorkdir is Workdir resolved against the manifest directory.
	// Populated by Load.
	ResolvedWorkdir string `yaml:"-"`
}

// Cmd assembles the launch specification for the task. The returned command
// has not been started.
func (t *Task) Cmd() *exec.Cmd {
	cmd := exec.Command(t.Command[0], t.Command[1:]...)
	if t.ResolvedWorkdir != "" {
		cmd.Dir = t.ResolvedWorkdir
	}
	env := os.Environ()
	if t.Env != nil {
		overrides := make([]string, 0, len(t.Env))
		for k, v := range t.Env {
			overrides = append(overrides, fmt.Sprintf("%s=%s", k, v))
		}
		env = append(env, overrides...)
	}
	cmd.Env = env
	return cmd
}
