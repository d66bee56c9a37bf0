package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve the configured kernel over stdin and stdout",
		Long: "Serve the configured kernel over stdin and stdout as JSON lines.\n" +
			"The worker exits when stdin is closed. Logs are written to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.app.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
