package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <conversation-id>",
	Short: "Mark an indexed conversation as archived",
	Long: `Flag every stored chunk of a conversation as archived. Archived
chunks stay searchable; the flag marks the transcript as closed.`,
	Args: cobra.ExactArgs(1),
	RunE: runArchive,
}

var archivedCmd = &cobra.Command{
	Use:   "archived",
	Short: "List archived conversations",
	RunE:  runArchived,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(archivedCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	n, err := svc.MarkArchived(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Printf("No chunks found for conversation %s\n", args[0])
		return nil
	}
	fmt.Printf("Archived conversation %s (%d chunks)\n", args[0], n)
	return nil
}

func runArchived(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	convs, err := svc.ArchivedConversations(cmd.Context())
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No archived conversations")
		return nil
	}
	for _, c := range convs {
		fmt.Printf("%s  %d chunks  last %s\n", c.ConversationID, c.ChunkCount, c.LastCreatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
