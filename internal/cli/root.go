package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/config"
	"github.com/jordanmatta/recollect/internal/embedding"
	"github.com/jordanmatta/recollect/internal/ingest"
	"github.com/jordanmatta/recollect/internal/ranking"
	"github.com/jordanmatta/recollect/internal/storage"
)

var dbPath string

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recollect",
		Short: "Local semantic memory for AI conversations",
		Long: `Recollect - Collect, embed, and search AI conversations from claude-code,
claude-desktop, cursor, windsurf and chatgpt. Everything stays on your machine.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to database file (default: ~/.recollect/recollect.db)")

	rootCmd.AddCommand(
		NewCollectCommand(),
		NewIngestCommand(),
		NewSearchCommand(),
		NewListCommand(),
		NewWorkerCommand(),
		NewWatchCommand(),
		NewStatsCommand(),
		NewBrowseCommand(),
	)

	return rootCmd
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the config file plus the --db override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbPath
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	store, err := storage.Open(cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func newEmbedder(cfg *config.Config) *embedding.Client {
	return embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey,
		embedding.WithModel(cfg.Embedding.Model),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
	)
}

func newGateway(cfg *config.Config, store storage.Store, mode string) *ingest.Gateway {
	deriver := ingest.NewDeriver(store, newEmbedder(cfg), nil)
	if mode == "" {
		mode = cfg.Ingest.Mode
	}
	return ingest.NewGateway(store, deriver, mode, nil)
}

func rankingParams(cfg *config.Config) ranking.Params {
	return ranking.Params{
		Weight:       cfg.Ranking.RecencyWeight,
		Decay:        cfg.Ranking.Decay,
		RecentWindow: cfg.Ranking.RecentWindow,
		RecentBoost:  cfg.Ranking.RecentBoost,
	}
}
