package cli

import (
	"time"

	"engram/internal/config"
	"engram/internal/logger"
	"engram/internal/tracing"
	"engram/pkg/memory"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Engram - long-term memory store for conversational agents",
	Long: `Engram stores conversations, files and notes as searchable long-term
memory. Content is chunked, embedded and indexed for hybrid semantic plus
keyword search, all in a single local store file.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.engram/engram.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// openService loads config, builds the logger and opens the memory service.
// The returned cleanup closes both.
func openService() (*memory.Service, *logger.Logger, func(), error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	if err := tracing.InitOpenTelemetry("engram"); err != nil {
		zl := logg.GetZerolog()
		zl.Warn().Err(err).Msg("Tracing initialization failed")
	}

	svc, err := memory.New(memory.Config{
		StoragePath:  cfg.StorePath(),
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Provider:     cfg.Embedding.Provider,
		Model:        cfg.Embedding.Model,
		APIKey:       cfg.Embedding.APIKey,
		Dimension:    cfg.Embedding.Dimension,
		VectorWeight: cfg.Search.VectorWeight,
		TextWeight:   cfg.Search.TextWeight,
		CacheTTL:     time.Duration(cfg.Storage.CacheTTLHours) * time.Hour,
		Logger:       logg.GetZerolog(),
	})
	if err != nil {
		logg.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		svc.Close()
		logg.Close()
	}
	return svc, logg, cleanup, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
