package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <call>",
		Short: "Print the cache key and canonical form of a call description",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := c.app.Hash(args[0])
			return err
		},
	}
}
