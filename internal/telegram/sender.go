package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/scoutlabs/cryptoscout/internal/models"
)

// Sender delivers opportunity alerts to a single Telegram channel. Sends are
// paced at one message per second to stay under the bot API limits.
type Sender struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
}

func NewSender(token string, chatID int64) (*Sender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &Sender{
		api:     api,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}, nil
}

// SendOpportunity formats and delivers one alert. The caller decides what a
// failure means; one failed message never blocks the rest of the batch.
func (s *Sender) SendOpportunity(ctx context.Context, item models.AnalyzedItem) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(s.chatID, formatOpportunity(item, time.Now()))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}

func formatOpportunity(item models.AnalyzedItem, at time.Time) string {
	oppType := "N/A"
	riskLevel := "N/A"
	explanation := "No analysis available"
	if item.Analysis != nil {
		if item.Analysis.OpportunityType != "" {
			oppType = item.Analysis.OpportunityType
		}
		if item.Analysis.RiskLevel != "" {
			riskLevel = item.Analysis.RiskLevel
		}
		if item.Analysis.Explanation != "" {
			explanation = item.Analysis.Explanation
		}
	}

	link := item.Link
	if link == "" {
		link = "N/A"
	}

	return fmt.Sprintf(`🚀 *Crypto Opportunity Detected*

*Source:* %s
*Title:* %s

*Type:* %s
*Risk Level:* %s

*Analysis:*
%s

*Link:* %s

_Analyzed at %s_`,
		item.Source,
		item.Title,
		oppType,
		riskLevel,
		explanation,
		link,
		at.Format("2006-01-02 15:04:05"))
}
