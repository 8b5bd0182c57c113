package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed all stored chunks",
	Long: `Re-embed every stored chunk with the configured embedding provider.
Use after switching providers or models with the same vector dimension.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.ReindexAll(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Reindexed %d chunks\n", n)
	return nil
}
