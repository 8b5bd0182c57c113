package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"engram/internal/observability"

	"github.com/spf13/cobra"
)

var watchMetricsAddr string

var watchCmd = &cobra.Command{
	Use:   "watch <file>...",
	Short: "Watch files and keep their memory fresh",
	Long: `Index the given files, then watch them and reindex on change until
interrupted. With --metrics-addr a Prometheus endpoint is served while
watching.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	svc, logg, cleanup, err := openService()
	if err != nil {
		return err
	}
	defer cleanup()

	for _, path := range args {
		if _, err := svc.IndexFile(cmd.Context(), path); err != nil {
			return fmt.Errorf("index %s: %w", path, err)
		}
		if err := svc.Watch(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}

	if watchMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(watchMetricsAddr, mux); err != nil {
				zl := logg.GetZerolog()
				zl.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		fmt.Printf("Serving metrics on %s/metrics\n", watchMetricsAddr)
	}

	fmt.Printf("Watching %d files, press Ctrl+C to stop\n", len(args))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
