package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/scoutlabs/cryptoscout/internal/models"
)

type TwitterClient struct {
	bearerToken string
	query       string
	client      *http.Client
}

type twitterSearchResponse struct {
	Data []struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func NewTwitterClient(bearerToken, query string) *TwitterClient {
	return &TwitterClient{
		bearerToken: bearerToken,
		query:       query,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *TwitterClient) FetchItems(ctx context.Context, limit int) ([]models.NewsItem, error) {
	if c.bearerToken == "" {
		log.Debug("twitter bearer token not set, skipping search")
		return nil, nil
	}
	if limit > 100 {
		limit = 100
	}
	if limit < 10 {
		// API minimum for max_results.
		limit = 10
	}

	params := url.Values{}
	params.Set("query", fmt.Sprintf("%s -is:retweet lang:en", c.query))
	params.Set("max_results", fmt.Sprintf("%d", limit))
	params.Set("tweet.fields", "created_at,public_metrics")

	endpoint := "https://api.twitter.com/2/tweets/search/recent?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.bearerToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter search returned status %d", resp.StatusCode)
	}

	var search twitterSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&search); err != nil {
		return nil, err
	}

	items := make([]models.NewsItem, 0, len(search.Data))
	for _, tweet := range search.Data {
		title := tweet.Text
		if runes := []rune(title); len(runes) > 100 {
			title = string(runes[:100]) + "..."
		}
		items = append(items, models.NewsItem{
			Source:  "Twitter/X",
			Title:   "Tweet: " + title,
			Summary: tweet.Text,
			Link:    "https://twitter.com/i/web/status/" + tweet.ID,
		})
	}

	return items, nil
}

func (c *TwitterClient) GetName() string {
	return "Twitter/X"
}
