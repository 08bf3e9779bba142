package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:   "cryptoscout",
	Short: "Scheduled crypto news opportunity scout",
	Long: `cryptoscout periodically pulls crypto news from RSS feeds, CoinGecko
trending and Twitter search, filters out items it has already analyzed,
asks an AI model which of the rest are trading opportunities, and posts
them to a Telegram channel.`,
	RunE: runScout,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.Flags().BoolVar(&flagOnce, "once", false, "run a single workflow iteration and exit")
	runCmd.Flags().BoolVar(&flagOnce, "once", false, "run a single workflow iteration and exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
