package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the entire memory store",
	Long:  `Delete every chunk and the embedding cache. Requires --yes.`,
	RunE:  runClear,
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm wiping the store")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to wipe the store without --yes")
	}

	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Memory store cleared")
	return nil
}
