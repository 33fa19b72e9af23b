package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/ingest"
)

func NewIngestCommand() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest one conversation payload",
		Long: `Read a JSON payload from a file (or stdin with "-") and store it. The
payload needs "source" and "content"; content holds the conversation JSON.`,
		Example: `  # Ingest from a file
  recollect ingest conversation.json

  # Ingest from stdin, queueing derivation for the worker
  cat conversation.json | recollect ingest - --mode queued`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runIngest(path, mode)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Derivation mode: sync or queued (default from config)")

	return cmd
}

func runIngest(path, mode string) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	var input ingest.Input
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
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

	gateway := newGateway(cfg, store, mode)
	result, err := gateway.Ingest(context.Background(), input)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if result.Derived != nil {
		fmt.Printf("Stored and derived %s\n", result.Derived.ID)
		fmt.Printf("  Title: %s\n", result.Derived.Title)
		if result.Derived.Project != "" {
			fmt.Printf("  Project: %s\n", result.Derived.Project)
		}
		fmt.Printf("  Topics: %v\n", result.Derived.Topics)
	} else {
		fmt.Printf("Stored %s (%s)\n", result.RawID, result.Status)
	}
	return nil
}
