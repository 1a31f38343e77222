package news

import (
	"context"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Source lists recent news, newest first.
type Source interface {
	Latest(ctx context.Context) ([]types.NewsItem, error)
}

// Publisher announces a single item.
type Publisher interface {
	PublishNews(ctx context.Context, item types.NewsItem) error
}

// Poller announces news that has not been announced before.
type Poller struct {
	source    Source
	cache     *Cache
	publisher Publisher
	perPoll   int
}

func NewPoller(source Source, cache *Cache, publisher Publisher, perPoll int) *Poller {
	return &Poller{source: source, cache: cache, publisher: publisher, perPoll: perPoll}
}

// Poll looks at the newest perPoll items and publishes the unseen ones. An
// item is remembered only after it was published, so a failed post is tried
// again on the next poll.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	items, err := p.source.Latest(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "could not fetch news")
	}
	if p.perPoll > 0 && len(items) > p.perPoll {
		items = items[:p.perPoll]
	}

	posted := 0
	for _, item := range items {
		if p.cache.Seen(item.Link) {
			continue
		}
		if err := p.publisher.PublishNews(ctx, item); err != nil {
			log.Errorf("Failed to post news %s: %v", item.Link, err)
			metrics.DeliveriesFailed.Inc()
			continue
		}
		if err := p.cache.Mark(item.Link); err != nil {
			log.Errorf("Posted news %s but could not remember it: %v", item.Link, err)
		}
		metrics.NewsPosted.Inc()
		posted++
	}
	if posted > 0 {
		log.Infof("Posted %d new news item(s)", posted)
	}
	return posted, nil
}
