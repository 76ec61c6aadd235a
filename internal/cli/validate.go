package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/spawnwait/internal/config"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the manifest and print the execution plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(opts.manifestFile)
			if err != nil {
				return err
			}

			limit := "unlimited"
			if doc.Concurrency > 0 {
				limit = fmt.Sprintf("%d", doc.Concurrency)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Manifest %s: %d task(s), concurrency %s\n",
				opts.manifestFile, len(doc.Tasks), limit)
			fmt.Fprintln(cmd.OutOrStdout(), "Launch order:")
			for i, task := range doc.Tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s\n", i+1, task.Name)
			}
			return nil
		},
	}
	return cmd
}
