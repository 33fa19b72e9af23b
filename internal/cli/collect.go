package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/adapter"
	"github.com/jordanmatta/recollect/internal/ingest"
	"github.com/jordanmatta/recollect/internal/models"
	"github.com/jordanmatta/recollect/internal/normalizer"
	"github.com/jordanmatta/recollect/internal/storage"
)

func NewCollectCommand() *cobra.Command {
	var source string
	var since time.Duration
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect conversations from installed AI tools",
		Long: `Scan local AI tool storage, normalize and merge what is found, and ingest
each surviving conversation.`,
		Example: `  # Collect from every known tool
  recollect collect

  # Collect only cursor conversations
  recollect collect --source cursor

  # Collect the last week and show what would be stored
  recollect collect --since 168h --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(source, since, dryRun, verbose)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Only collect from this source (claude-code, claude-desktop, cursor, windsurf, chatgpt)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only collect conversations updated within this window (e.g. 168h)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be ingested without writing")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show per-adapter details and quality flags")

	return cmd
}

func runCollect(source string, since time.Duration, dryRun, verbose bool) error {
	var sinceTime *time.Time
	if since > 0 {
		t := time.Now().Add(-since)
		sinceTime = &t
	}

	var collected []models.Conversation
	for _, a := range adapter.All() {
		if source != "" && a.Name() != source {
			continue
		}
		convs, stats := a.Collect(sinceTime)
		collected = append(collected, convs...)

		fmt.Printf("%s: %d conversation(s), %d message(s)", stats.Source, stats.Conversations, stats.Messages)
		if stats.Skipped > 0 {
			fmt.Printf(", %d duplicate(s) skipped", stats.Skipped)
		}
		if len(stats.Failures) > 0 {
			fmt.Printf(", %d parse failure(s)", len(stats.Failures))
		}
		fmt.Println()

		if verbose {
			if stats.Warnings > 0 {
				fmt.Printf("  %d timestamp(s) could not be parsed and were defaulted\n", stats.Warnings)
			}
			for _, failure := range stats.Failures {
				fmt.Printf("  failed: %s [%s] %s\n", failure.Path, failure.Strategy, failure.Reason)
			}
		}
	}

	if len(collected) == 0 {
		fmt.Println("Nothing to collect.")
		return nil
	}

	normalized, nstats := normalizer.Normalize(collected, source)
	merged := normalizer.Merge(normalized)
	valid, report := normalizer.ValidateQuality(merged)

	fmt.Printf("\nNormalized %d -> %d (removed %d duplicate(s), %d invalid)\n",
		nstats.TotalInput, nstats.TotalOutput, nstats.DuplicatesRemoved, nstats.InvalidRemoved)
	fmt.Printf("Merged into %d conversation(s), %d passed validation\n", len(merged), len(valid))

	if verbose {
		for _, issue := range report.Issues {
			fmt.Printf("  flag: %s %s %s\n", issue.ConversationID, issue.Flag, issue.Detail)
		}
		for _, dropped := range report.Dropped {
			fmt.Printf("  dropped: %s %s\n", dropped.ConversationID, dropped.Detail)
		}
	}

	if dryRun {
		fmt.Println("\nDry run, nothing stored.")
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	gateway := newGateway(cfg, store, "")
	ctx := context.Background()

	stored, duplicates, failed := 0, 0, 0
	for _, conv := range valid {
		input, err := conversationInput(conv)
		if err != nil {
			failed++
			continue
		}
		if _, err := gateway.Ingest(ctx, input); err != nil {
			if errors.Is(err, storage.ErrDuplicateConversation) {
				duplicates++
				continue
			}
			failed++
			fmt.Printf("  ingest failed for %s: %v\n", conv.ID, err)
			continue
		}
		stored++
	}

	fmt.Printf("\nStored %d conversation(s)", stored)
	if duplicates > 0 {
		fmt.Printf(", %d already present", duplicates)
	}
	if failed > 0 {
		fmt.Printf(", %d failed", failed)
	}
	fmt.Println()
	return nil
}

// conversationInput converts one normalized conversation into an ingest
// payload.
func conversationInput(conv models.Conversation) (ingest.Input, error) {
	payload, err := json.Marshal(conv)
	if err != nil {
		return ingest.Input{}, fmt.Errorf("encode conversation: %w", err)
	}
	created := conv.CreatedAt
	return ingest.Input{
		Source:               conv.Source,
		SourceConversationID: conv.ID,
		Workspace:            conv.Workspace,
		Title:                conv.Title,
		Content:              payload,
		Metadata:             conv.Metadata,
		SourceCreatedAt:      &created,
		Project:              conv.Project,
		Topics:               conv.Topics,
	}, nil
}
