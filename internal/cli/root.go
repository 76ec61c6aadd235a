package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	manifestFile string
}

// NewRootCmd builds the spawnwait command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "spawnwait",
		Short: "Run a manifest of commands as supervised child processes",
		Long: "spawnwait executes the tasks in a YAML manifest as local child processes,\n" +
			"bounding how many run at once and reporting each completion as it happens.\n" +
			"Ctrl-C interrupts every running task and waits for them to finish.",
	}

	root.PersistentFlags().
		StringVarP(&opts.manifestFile, "file", "f", "tasks.yaml", "Path to the task manifest")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newValidateCmd(opts))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		var status *exitStatusError
		if errors.As(err, &status) {
			if status.msg != "" {
				fmt.Fprintln(os.Stderr, status.msg)
			}
			os.Exit(status.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitStatusError carries a specific process exit code out of a subcommand.
type exitStatusError struct {
	code int
	msg  string
}

func (e *exitStatusError) Error() string {
	return e.msg
}
