package models

import (
	"context"
	"time"
)

type NewsItem struct {
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Link      string    `json:"link"`
	Summary   string    `json:"summary"`
	Published time.Time `json:"published,omitempty"`
}

type NewsSource interface {
	FetchItems(ctx context.Context, limit int) ([]NewsItem, error)
	GetName() string
}

type Analysis struct {
	IsOpportunity   bool   `json:"is_opportunity"`
	OpportunityType string `json:"opportunity_type"`
	RiskLevel       string `json:"risk_level"`
	Explanation     string `json:"explanation"`
}

// AnalyzedItem pairs an item with its classification. Analysis is nil when the
// model response could not be matched to the item; such items still count as
// analyzed and must be recorded.
type AnalyzedItem struct {
	NewsItem
	Analysis      *Analysis `json:"ai_analysis,omitempty"`
	IsOpportunity bool      `json:"is_opportunity"`
}

type SendResult struct {
	Title string
	Err   error
}

// SendReport accumulates per-message delivery outcomes for one run. A failed
// send never blocks the remaining messages; the orchestrator inspects the
// report afterwards.
type SendReport struct {
	Results []SendResult
}

func (r *SendReport) Add(title string, err error) {
	r.Results = append(r.Results, SendResult{Title: title, Err: err})
}

func (r *SendReport) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

func (r *SendReport) Failed() int {
	return len(r.Results) - r.Sent()
}
