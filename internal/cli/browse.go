package cli

import (
	"github.com/spf13/cobra"

	"github.com/jordanmatta/recollect/internal/tui"
)

func NewBrowseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse conversations in a TUI",
		Long:  `Open an interactive terminal UI to browse and keyword-search stored conversations.`,
		Example: `  # Browse the default store
  recollect browse

  # Browse a specific database
  recollect browse --db custom.db`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return tui.NewBrowser(store).Run()
		},
	}
}
