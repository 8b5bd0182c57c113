package cli

import (
	"fmt"
	"strings"

	"engram/pkg/memory"

	"github.com/spf13/cobra"
)

var (
	searchLimit    int
	searchMinScore float64
	searchSources  []string
	searchVecW     float64
	searchTextW    float64
)

var searchCmd = &cobra.Command{
	Use:   "search <query>...",
	Short: "Search stored memory",
	Long: `Run a hybrid search over the memory store. Results blend semantic
similarity with keyword relevance and are printed best-first with their
scores.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", memory.DefaultSearchLimit, "maximum results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", memory.DefaultMinScore, "minimum combined score")
	searchCmd.Flags().StringSliceVar(&searchSources, "sources", nil, "restrict to source types (conversation, file, text)")
	searchCmd.Flags().Float64Var(&searchVecW, "vector-weight", 0, "semantic score weight (0 uses the configured default)")
	searchCmd.Flags().Float64Var(&searchTextW, "text-weight", 0, "keyword score weight (0 uses the configured default)")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	opts := memory.SearchOptions{
		Query:        strings.Join(args, " "),
		Limit:        searchLimit,
		MinScore:     &searchMinScore,
		VectorWeight: searchVecW,
		TextWeight:   searchTextW,
	}
	for _, s := range searchSources {
		opts.Sources = append(opts.Sources, memory.Source(s))
	}

	results, err := svc.Search(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No results")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s/%s\n", i+1, r.Score, r.Chunk.Source, r.Chunk.SourceID)
		fmt.Printf("   %s\n", summarize(r.Chunk.Content, 200))
	}
	return nil
}

func summarize(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
