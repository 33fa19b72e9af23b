package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/adapter"
	"github.com/jordanmatta/recollect/internal/watcher"
)

func NewWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch AI tool storage and ingest new conversations",
		Long: `Follow the session directories of installed AI tools and collect whenever
they change. Runs in the foreground until interrupted.`,
		Example: `  # Watch with the default 10s debounce
  recollect watch

  # React faster to new sessions
  recollect watch --debounce 3s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounce, "Quiet period before a changed source is collected")

	return cmd
}

func runWatch(debounce time.Duration) error {
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
	w := watcher.New(adapter.All(), gateway, debounce, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching for new conversations (Ctrl+C to stop)...")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
