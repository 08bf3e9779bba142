package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoutlabs/cryptoscout/internal/config"
	"github.com/scoutlabs/cryptoscout/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or reset the analyzed-items history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the history entries without modifying them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		store := history.New(cfg.HistoryPath, cfg.Retention)
		store.Load()

		entries := store.Snapshot()
		if len(entries) == 0 {
			fmt.Printf("history is empty (%s)\n", cfg.HistoryPath)
			return nil
		}

		fmt.Printf("%d entries in %s (retention %s)\n\n", len(entries), cfg.HistoryPath, cfg.Retention)
		for _, e := range entries {
			age := time.Since(e.LastSeen).Round(time.Minute)
			fmt.Printf("  %s  %s  (%s ago)\n", e.ID, e.LastSeen.Format(time.RFC3339), age)
		}
		return nil
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the history so the next run treats all items as new",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		store := history.New(cfg.HistoryPath, cfg.Retention)
		if err := store.Reset(); err != nil {
			return err
		}
		fmt.Printf("history reset (%s)\n", cfg.HistoryPath)
		return nil
	},
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyResetCmd)
}
