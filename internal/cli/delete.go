package cli

import (
	"fmt"

	"engram/pkg/memory"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <source> <source-id>",
	Short: "Delete everything stored under a source",
	Long: `Delete all chunks stored under the given (source, source-id) pair.
Source is one of: conversation, file, text.`,
	Args: cobra.ExactArgs(2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.DeleteBySource(cmd.Context(), memory.Source(args[0]), args[1])
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d chunks\n", n)
	return nil
}
