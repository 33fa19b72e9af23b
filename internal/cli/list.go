package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/storage"
)

func NewListCommand() *cobra.Command {
	var limit, offset int
	var filterSource string
	var filterProject string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent conversations",
		Long:  `List recently derived conversations, newest first.`,
		Example: `  # List recent conversations
  recollect list

  # List conversations from one tool
  recollect list --source claude-code

  # Page through a project
  recollect list --project backend --limit 20 --offset 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(limit, offset, filterSource, filterProject)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of conversations")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of conversations to skip")
	cmd.Flags().StringVar(&filterSource, "source", "", "Filter by source tool")
	cmd.Flags().StringVar(&filterProject, "project", "", "Filter by project")

	return cmd
}

func runList(limit, offset int, filterSource, filterProject string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.ListDerived(context.Background(), storage.ListFilter{
		Limit:   limit,
		Offset:  offset,
		Source:  filterSource,
		Project: filterProject,
	})
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	for _, rec := range records {
		fmt.Printf("%s  %s\n", rec.CreatedAt.Format("2006-01-02 15:04"), rec.Title)
		fmt.Printf("  %s", rec.Source)
		if rec.Project != "" {
			fmt.Printf(" | %s", rec.Project)
		}
		if len(rec.Topics) > 0 {
			fmt.Printf(" | %s", strings.Join(rec.Topics, ", "))
		}
		fmt.Printf(" | %d message(s)\n", rec.MessageCount)
	}

	if len(records) == 0 {
		fmt.Println("No conversations found.")
	}
	return nil
}
