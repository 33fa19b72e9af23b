package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/ingest"
)

func NewWorkerCommand() *cobra.Command {
	var batchSize int
	var idleInterval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background derivation worker",
		Long: `Poll the store for raw records that still need embedding and classification.
Runs until interrupted.`,
		Example: `  # Run until Ctrl+C
  recollect worker

  # Drain the current queue and exit
  recollect worker --once`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(batchSize, idleInterval, once)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Records per poll (default from config)")
	cmd.Flags().DurationVar(&idleInterval, "idle-interval", 0, "Sleep between empty polls (default from config)")
	cmd.Flags().BoolVar(&once, "once", false, "Process pending records once and exit")

	return cmd
}

func runWorker(batchSize int, idleInterval time.Duration, once bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	wcfg := ingest.WorkerConfig{
		BatchSize:    cfg.Worker.BatchSize,
		IdleInterval: cfg.Worker.IdleInterval,
		MaxRetries:   cfg.Worker.MaxRetries,
	}
	if batchSize > 0 {
		wcfg.BatchSize = batchSize
	}
	if idleInterval > 0 {
		wcfg.IdleInterval = idleInterval
	}

	deriver := ingest.NewDeriver(store, newEmbedder(cfg), nil)
	worker := ingest.NewWorker(store, deriver, wcfg, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		total := 0
		for {
			processed, err := worker.ProcessBatch(ctx)
			if err != nil {
				return fmt.Errorf("worker batch failed: %w", err)
			}
			total += processed
			if processed == 0 {
				break
			}
		}
		fmt.Printf("Processed %d record(s)\n", total)
		return nil
	}

	fmt.Println("Worker running (Ctrl+C to stop)...")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
