package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scoutlabs/cryptoscout/internal/ai"
	"github.com/scoutlabs/cryptoscout/internal/config"
	"github.com/scoutlabs/cryptoscout/internal/history"
	"github.com/scoutlabs/cryptoscout/internal/pipeline"
	"github.com/scoutlabs/cryptoscout/internal/sources"
	"github.com/scoutlabs/cryptoscout/internal/telegram"
)

var flagOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled workflow",
	RunE:  runScout,
}

func runScout(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if cfg.TelegramToken == "" || cfg.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set")
	}

	sender, err := telegram.NewSender(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return err
	}

	newsSources := sources.DefaultRSSSources()
	newsSources = append(newsSources,
		sources.NewCoinGeckoClient(),
		sources.NewTwitterClient(cfg.TwitterBearerToken, "crypto OR bitcoin OR ethereum"),
	)

	store := history.New(cfg.HistoryPath, cfg.Retention)

	p := pipeline.New(pipeline.Options{
		Sources:              newsSources,
		Classifier:           ai.NewClassifier(cfg.OpenAIAPIKey),
		Sender:               sender,
		Store:                store,
		FetchLimit:           cfg.FetchLimit,
		BatchSize:            cfg.BatchSize,
		RunInterval:          cfg.RunInterval,
		RetryAttempts:        cfg.RetryAttempts,
		RetryBaseDelay:       cfg.RetryBaseDelay,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		QuietHoursStart:      cfg.QuietHoursStart,
		QuietHoursEnd:        cfg.QuietHoursEnd,
	})

	ctx := cmd.Context()

	if flagOnce {
		store.Load()
		return p.Trigger(ctx)
	}

	log.Info("starting scheduler",
		"interval", cfg.RunInterval, "history", cfg.HistoryPath,
		"sources", len(newsSources))

	if err := p.Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrShutdown) {
			log.Error("scout stopped after repeated failures")
		}
		return err
	}

	log.Info("scout stopped gracefully")
	return nil
}
