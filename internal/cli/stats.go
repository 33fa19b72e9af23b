package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show statistics about stored conversations",
		Long:  `Display totals, pending derivations, and source/project breakdowns.`,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get statistics: %w", err)
	}

	fmt.Println("Recollect Statistics")
	fmt.Println("====================")
	fmt.Printf("\nRaw records: %d (%d pending, %d failed)\n", stats.TotalRaw, stats.PendingRaw, stats.FailedRaw)
	fmt.Printf("Derived conversations: %d\n", stats.TotalDerived)
	fmt.Printf("Total messages: %d\n", stats.TotalMessages)

	if stats.EarliestDerivedAt != nil && stats.LatestDerivedAt != nil {
		fmt.Printf("Timespan: %s to %s\n",
			stats.EarliestDerivedAt.Format("2006-01-02"),
			stats.LatestDerivedAt.Format("2006-01-02"))
	}

	if len(stats.SourceBreakdown) > 0 {
		fmt.Println("\nConversations by Source:")
		for source, count := range stats.SourceBreakdown {
			fmt.Printf("  %s: %d\n", source, count)
		}
	}

	if len(stats.ProjectBreakdown) > 0 {
		fmt.Println("\nConversations by Project:")
		for project, count := range stats.ProjectBreakdown {
			fmt.Printf("  %s: %d\n", project, count)
		}
	}

	return nil
}
