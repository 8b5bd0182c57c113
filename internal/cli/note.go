package cli

import (
	"fmt"
	"strings"

	"engram/pkg/memory"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var noteID string

var noteCmd = &cobra.Command{
	Use:   "note <text>...",
	Short: "Store a free-text note",
	Long: `Store a note in the memory store. All arguments are joined into one
text. Without --id a short random note id is generated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runNote,
}

func init() {
	noteCmd.Flags().StringVar(&noteID, "id", "", "note id (appending to an existing id groups notes together)")
	rootCmd.AddCommand(noteCmd)
}

func runNote(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	id := noteID
	if id == "" {
		id, err = gonanoid.New()
		if err != nil {
			return fmt.Errorf("generate note id: %w", err)
		}
	}

	text := strings.Join(args, " ")
	n, err := svc.IndexText(cmd.Context(), memory.SourceText, id, text, map[string]interface{}{"kind": "note"})
	if err != nil {
		return err
	}
	fmt.Printf("Stored note %s (%d chunks)\n", id, n)
	return nil
}
