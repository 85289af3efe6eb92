package cli

import (
	"github.com/spf13/cobra"

	"tokenomics-indexer/internal/app"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Run a single indexing pass for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Index(cmd.Context(), cmd.OutOrStdout(), app.IndexOptions{Force: indexForce})
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Overwrite today's record if it already exists")
}
