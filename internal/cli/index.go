package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index files into memory",
	Long: `Index one or more files into the memory store. Markdown and source
files get structure-aware chunking; everything else is split on paragraph
boundaries. Unchanged content is skipped by the duplicate check.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	total := 0
	for _, path := range args {
		n, err := svc.IndexFile(cmd.Context(), path)
		if err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		fmt.Printf("%s: %d chunks\n", path, n)
		total += n
	}
	fmt.Printf("Indexed %d chunks from %d files\n", total, len(args))
	return nil
}
