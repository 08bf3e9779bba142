package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scoutlabs/cryptoscout/internal/models"
)

type CoinGeckoClient struct {
	baseURL string
	client  *http.Client
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID            string  `json:"id"`
			Name          string  `json:"name"`
			Symbol        string  `json:"symbol"`
			MarketCapRank int     `json:"market_cap_rank"`
			Score         float64 `json:"score"`
		} `json:"item"`
	} `json:"coins"`
}

func NewCoinGeckoClient() *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: "https://api.coingecko.com/api/v3",
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchItems maps the top trending coins to pseudo news items so they flow
// through the same dedup and analysis path as articles.
func (c *CoinGeckoClient) FetchItems(ctx context.Context, limit int) ([]models.NewsItem, error) {
	if limit > 5 {
		limit = 5
	}

	url := c.baseURL + "/search/trending"
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var trending trendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&trending); err != nil {
		return nil, err
	}

	items := make([]models.NewsItem, 0, limit)
	for _, coin := range trending.Coins {
		if len(items) >= limit {
			break
		}

		item := coin.Item
		items = append(items, models.NewsItem{
			Source:  "CoinGecko",
			Title:   fmt.Sprintf("Trending: %s (%s)", item.Name, item.Symbol),
			Summary: fmt.Sprintf("Market Cap Rank: #%d | Score: %g", item.MarketCapRank, item.Score),
			Link:    fmt.Sprintf("https://www.coingecko.com/en/coins/%s", item.ID),
		})
	}

	return items, nil
}

func (c *CoinGeckoClient) GetName() string {
	return "CoinGecko"
}
