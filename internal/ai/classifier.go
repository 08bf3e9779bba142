package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/scoutlabs/cryptoscout/internal/models"
)

const analysisModel = "gpt-4o-mini"

type Classifier struct {
	client openai.Client
}

func NewClassifier(apiKey string) *Classifier {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Classifier{client: client}
}

// AnalyzeBatch asks the model whether each item in the batch is a trading or
// investment opportunity. The model responds with JSON keyed item_1..item_n,
// matched back to items by position. A failed API call is returned to the
// caller. A response that cannot be parsed is not an error: items are carried
// through as non-opportunities so they still count as analyzed.
func (c *Classifier) AnalyzeBatch(ctx context.Context, batch []models.NewsItem) ([]models.AnalyzedItem, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	prompt := buildAnalysisPrompt(batch)

	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: analysisModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String("You are a crypto market analyst. Identify trading and investment opportunities in news items and respond with structured JSON."),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(prompt),
					},
				},
			},
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(4000),
	})
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response from openai")
	}

	return matchAnalysis(batch, response.Choices[0].Message.Content), nil
}

func buildAnalysisPrompt(batch []models.NewsItem) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following crypto news items and identify potential trading or investment opportunities.\n\n")
	sb.WriteString("For each item, determine:\n")
	sb.WriteString("1. Is this a significant opportunity? (YES/NO)\n")
	sb.WriteString("2. What type of opportunity? (price movement, new listing, partnership, technology breakthrough, market trend, etc.)\n")
	sb.WriteString("3. Risk level (LOW/MEDIUM/HIGH)\n")
	sb.WriteString("4. Brief explanation (max 2 sentences)\n\n")
	sb.WriteString("Content to analyze:\n\n")

	for i, item := range batch {
		summary := item.Summary
		if len(summary) > 500 {
			summary = summary[:500]
		}
		sb.WriteString(fmt.Sprintf("Source %d (%s):\n", i+1, item.Source))
		sb.WriteString(fmt.Sprintf("Title: %s\n", item.Title))
		sb.WriteString(fmt.Sprintf("Summary: %s\n\n", summary))
	}

	sb.WriteString("Respond in JSON format for each item:\n")
	sb.WriteString(`{"item_1": {"is_opportunity": true, "opportunity_type": "type", "risk_level": "LOW/MEDIUM/HIGH", "explanation": "brief explanation"}, ...}`)

	return sb.String()
}

// matchAnalysis pairs the model response with the batch by position. Items the
// model skipped are kept as non-opportunities.
func matchAnalysis(batch []models.NewsItem, content string) []models.AnalyzedItem {
	analyzed := make([]models.AnalyzedItem, 0, len(batch))

	parsed, err := parseAnalysisResponse(content)
	if err != nil {
		log.Warn("could not parse analysis response, treating batch as no-opportunity", "err", err)
		for _, item := range batch {
			analyzed = append(analyzed, models.AnalyzedItem{NewsItem: item})
		}
		return analyzed
	}

	for i, item := range batch {
		out := models.AnalyzedItem{NewsItem: item}
		if analysis, ok := parsed[fmt.Sprintf("item_%d", i+1)]; ok {
			a := analysis
			out.Analysis = &a
			out.IsOpportunity = a.IsOpportunity
		}
		analyzed = append(analyzed, out)
	}

	return analyzed
}

// parseAnalysisResponse tolerates the model wrapping its JSON in markdown code
// fences, with or without a language tag.
func parseAnalysisResponse(content string) (map[string]models.Analysis, error) {
	text := strings.TrimSpace(content)

	if idx := strings.Index(text, "```json"); idx >= 0 {
		text = text[idx+len("```json"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	} else if idx := strings.Index(text, "```"); idx >= 0 {
		text = text[idx+len("```"):]
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}

	var parsed map[string]models.Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}
