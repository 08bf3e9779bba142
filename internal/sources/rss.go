package sources

import (
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"

	"github.com/scoutlabs/cryptoscout/internal/models"
)

const feedUserAgent = "Mozilla/5.0 (compatible; CryptoScoutBot/1.0)"

// DefaultFeeds are the crypto news outlets polled every run.
var DefaultFeeds = map[string]string{
	"CoinTelegraph":    "https://cointelegraph.com/rss",
	"CoinDesk":         "https://www.coindesk.com/arc/outboundfeeds/rss/",
	"NewsBTC":          "https://www.newsbtc.com/feed/",
	"CryptoSlate":      "https://cryptoslate.com/feed/",
	"Bitcoin Magazine": "https://bitcoinmagazine.com/.rss/full/",
	"The Block":        "https://www.theblock.co/rss.xml",
}

type RSSFeed struct {
	name   string
	url    string
	parser *gofeed.Parser
}

func NewRSSFeed(name, url string) *RSSFeed {
	parser := gofeed.NewParser()
	parser.UserAgent = feedUserAgent

	return &RSSFeed{
		name:   name,
		url:    url,
		parser: parser,
	}
}

// DefaultRSSSources builds one source per entry in DefaultFeeds.
func DefaultRSSSources() []models.NewsSource {
	srcs := make([]models.NewsSource, 0, len(DefaultFeeds))
	for name, url := range DefaultFeeds {
		srcs = append(srcs, NewRSSFeed(name, url))
	}
	return srcs
}

func (f *RSSFeed) FetchItems(ctx context.Context, limit int) ([]models.NewsItem, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing %s feed: %w", f.name, err)
	}

	items := make([]models.NewsItem, 0, limit)
	for _, entry := range feed.Items {
		if len(items) >= limit {
			break
		}

		item := models.NewsItem{
			Source:  f.name,
			Title:   entry.Title,
			Link:    entry.Link,
			Summary: entry.Description,
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		}
		items = append(items, item)
	}

	return items, nil
}

func (f *RSSFeed) GetName() string {
	return f.name
}
