package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kbridge/internal/app"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Drive a scenario of kernel calls through the bridge",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			process, _ := cmd.Flags().GetBool("process")
			repeat, _ := cmd.Flags().GetInt("repeat")
			flush, _ := cmd.Flags().GetBool("flush")
			_, err := c.app.Run(cmd.Context(), args[0], app.RunOptions{
				Process: process,
				Repeat:  repeat,
				Flush:   flush,
			})
			return err
		},
	}
	cmd.Flags().BoolP("process", "p", false, "Run the kernel in a spawned worker process")
	cmd.Flags().IntP("repeat", "r", 1, "Run the scenario rounds this many times")
	cmd.Flags().Bool("flush", false, "Flush the worker cache after the last round")
	return cmd
}
