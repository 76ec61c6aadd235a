package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/spawnwait/internal/config"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		jobs        int
		metricsAddr string
		useTUI      bool
		jsonLogs    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the manifest tasks with bounded concurrency",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(opts.manifestFile)
			if err != nil {
				return err
			}

			limit := doc.Concurrency
			if cmd.Flags().Changed("jobs") {
				if jobs < 0 {
					return &exitStatusError{code: 2, msg: "--jobs must be >= 0"}
				}
				limit = jobs
			}

			r := &runner{
				manifest:    doc,
				limit:       limit,
				metricsAddr: metricsAddr,
				useTUI:      useTUI,
				jsonLogs:    jsonLogs || !term.IsTerminal(int(os.Stdout.Fd())),
				stdout:      cmd.OutOrStdout(),
				stderr:      cmd.ErrOrStderr(),
			}
			return r.run()
		},
	}

	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0,
		"Maximum tasks running at once (0 = unlimited, overrides the manifest)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve Prometheus metrics on this address while tasks run")
	cmd.Flags().BoolVar(&useTUI, "tui", false,
		"Render a live status table instead of streaming task output")
	cmd.Flags().BoolVar(&jsonLogs, "json", false,
		"Force JSON log output even on a terminal")

	return cmd
}
