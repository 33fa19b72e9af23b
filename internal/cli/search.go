package cli

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/ranking"
	"github.com/jordanmatta/recollect/internal/storage"
)

func NewSearchCommand() *cobra.Command {
	var limit int
	var threshold float64
	var source, project, topic, workspace string
	var showContext bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search conversations semantically",
		Long: `Embed the query and rank stored conversations by a blend of vector
similarity and recency.`,
		Example: `  # Search across everything
  recollect search "docker compose networking"

  # Narrow to one tool and project
  recollect search "jwt middleware" --source cursor --project api

  # Raise the similarity floor
  recollect search "database migration" --threshold 0.7 --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			filter := storage.SearchFilter{
				Limit:     limit,
				Threshold: threshold,
				Source:    source,
				Project:   project,
				Topic:     topic,
				Workspace: workspace,
			}
			return runSearch(cmd, query, filter, showContext)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", -1, "Minimum similarity (default from config)")
	cmd.Flags().StringVar(&source, "source", "", "Filter by source tool")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project")
	cmd.Flags().StringVar(&topic, "topic", "", "Filter by topic")
	cmd.Flags().StringVar(&workspace, "workspace", "", "Filter by workspace path")
	cmd.Flags().BoolVar(&showContext, "context", false, "Show the full content preview")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, filter storage.SearchFilter, showContext bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if filter.Threshold < 0 {
		filter.Threshold = cfg.Search.Threshold
	}
	if filter.Limit <= 0 {
		filter.Limit = cfg.Search.Limit
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	vec, err := newEmbedder(cfg).Embed(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	candidates, err := store.SearchSimilar(ctx, vec, filter)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := ranking.Rank(candidates, time.Now(), rankingParams(cfg))
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d result(s) for '%s':\n\n", len(results), query)
	for i, result := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, result.Combined, result.Title)
		fmt.Printf("   Source: %s", result.Source)
		if result.Project != "" {
			fmt.Printf(" | Project: %s", result.Project)
		}
		if len(result.Topics) > 0 {
			fmt.Printf(" | %s", strings.Join(result.Topics, ", "))
		}
		fmt.Printf(" | %s (similarity %.3f)\n", result.CreatedAt.Format("2006-01-02 15:04"), result.Similarity)

		if showContext {
			fmt.Printf("\n   %s\n", strings.ReplaceAll(result.ContentPreview, "\n", "\n   "))
		} else {
			preview := result.ContentPreview
			if len(preview) > 100 {
				cut := 100
				for cut > 0 && !utf8.RuneStart(preview[cut]) {
					cut--
				}
				preview = preview[:cut] + "..."
			}
			fmt.Printf("   %s\n", preview)
		}
		fmt.Println()
	}

	return nil
}
