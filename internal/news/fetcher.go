package news

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/mmcdole/gofeed"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	maxTitleLength = 200
	itemsPerFeed   = 5
)

var sourceNames = map[string]string{
	"coindesk":      "CoinDesk",
	"cointelegraph": "CoinTelegraph",
	"cryptopotato":  "CryptoPotato",
	"beincrypto":    "BeInCrypto",
}

// FeedParser downloads and parses one feed.
type FeedParser interface {
	ParseURLWithContext(feedURL string, ctx context.Context) (*gofeed.Feed, error)
}

// Fetcher reads the latest items of a fixed list of RSS feeds.
type Fetcher struct {
	parser  FeedParser
	feeds   []string
	timeout time.Duration
}

func NewFetcher(feeds []string, timeout time.Duration) *Fetcher {
	return &Fetcher{parser: gofeed.NewParser(), feeds: feeds, timeout: timeout}
}

// Latest returns the newest items across all feeds, newest first. A feed
// that fails is logged and left out; an error is returned only when every
// feed failed.
func (f *Fetcher) Latest(ctx context.Context) ([]types.NewsItem, error) {
	var (
		items    []types.NewsItem
		failures int
		lastErr  error
	)
	for _, feedURL := range f.feeds {
		feedItems, err := f.fetchFeed(ctx, feedURL)
		if err != nil {
			log.Errorf("Error parsing feed %s: %v", feedURL, err)
			failures++
			lastErr = err
			continue
		}
		items = append(items, feedItems...)
	}
	if len(f.feeds) > 0 && failures == len(f.feeds) {
		return nil, errors.Wrap(lastErr, "all news feeds failed")
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Published.After(items[j].Published)
	})
	return items, nil
}

func (f *Fetcher) fetchFeed(ctx context.Context, feedURL string) ([]types.NewsItem, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	source := SourceName(feedURL)
	var out []types.NewsItem
	for _, entry := range feed.Items {
		if len(out) >= itemsPerFeed {
			break
		}
		if entry == nil || strings.TrimSpace(entry.Link) == "" {
			continue
		}
		item := types.NewsItem{
			Title:  truncate(strings.TrimSpace(entry.Title), maxTitleLength),
			Link:   strings.TrimSpace(entry.Link),
			Source: source,
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = *entry.UpdatedParsed
		}
		out = append(out, item)
	}
	return out, nil
}

// SourceName turns a feed url into a display name.
func SourceName(feedURL string) string {
	lower := strings.ToLower(feedURL)
	for key, name := range sourceNames {
		if strings.Contains(lower, key) {
			return name
		}
	}
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return feedURL
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
