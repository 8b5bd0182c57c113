package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, _, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := svc.Stats(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("Chunks:  %d\n", st.TotalChunks)
	fmt.Printf("Sources: %d\n", st.TotalSources)
	fmt.Printf("Size:    %s\n", formatBytes(st.StorageSizeBytes))
	lookups := st.CacheHits + st.CacheMisses
	if lookups > 0 {
		fmt.Printf("Cache:   %d hits / %d misses (%.1f%% hit rate)\n",
			st.CacheHits, st.CacheMisses, 100*float64(st.CacheHits)/float64(lookups))
	}
	return nil
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
