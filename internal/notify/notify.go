package notify

import (
	"context"

	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Message is a MarkdownV2 formatted chat message.
type Message struct {
	Text           string
	DisablePreview bool
}

// Sink delivers a message to a chat.
type Sink interface {
	Deliver(ctx context.Context, channel int64, m Message) error
}

// EventPublisher receives every triggered alert as a machine readable event.
type EventPublisher interface {
	PublishAlert(ctx context.Context, a types.Alert) error
}

// AlertNotifier announces triggered alerts in the chat the alert was created
// in, mirrors them to the broadcast chat and publishes them as events.
type AlertNotifier struct {
	sink      Sink
	broadcast int64
	events    EventPublisher
}

// NewAlertNotifier builds a notifier. broadcast may be zero and events may be
// nil to disable them.
func NewAlertNotifier(sink Sink, broadcast int64, events EventPublisher) *AlertNotifier {
	return &AlertNotifier{sink: sink, broadcast: broadcast, events: events}
}

// AlertTriggered makes one delivery attempt per destination. The returned
// error is that of the owner's chat; broadcast and event failures are only
// logged.
func (n *AlertNotifier) AlertTriggered(ctx context.Context, a types.Alert) error {
	msg := Message{Text: FormatTriggered(a), DisablePreview: true}

	err := n.sink.Deliver(ctx, a.DeliveryChannel, msg)

	if n.broadcast != 0 && n.broadcast != a.DeliveryChannel {
		if berr := n.sink.Deliver(ctx, n.broadcast, msg); berr != nil {
			metrics.DeliveriesFailed.Inc()
			log.Errorf("Failed to mirror alert %s to broadcast chat: %v", a.UniqueID, berr)
		}
	}

	if n.events != nil {
		if perr := n.events.PublishAlert(ctx, a); perr != nil {
			log.Errorf("Failed to publish alert event %s: %v", a.UniqueID, perr)
		}
	}

	return errors.Wrapf(err, "could not deliver alert %s", a.UniqueID)
}

// AlertCreated tells the broadcast chat about a new alert set in another chat.
func (n *AlertNotifier) AlertCreated(ctx context.Context, a types.Alert) error {
	if n.broadcast == 0 || n.broadcast == a.DeliveryChannel {
		return nil
	}
	return n.sink.Deliver(ctx, n.broadcast, Message{Text: FormatCreatedNotice(a), DisablePreview: true})
}

// NewsPublisher posts news items to one chat.
type NewsPublisher struct {
	sink    Sink
	channel int64
}

func NewNewsPublisher(sink Sink, channel int64) *NewsPublisher {
	return &NewsPublisher{sink: sink, channel: channel}
}

func (p *NewsPublisher) PublishNews(ctx context.Context, item types.NewsItem) error {
	return p.sink.Deliver(ctx, p.channel, Message{Text: FormatNews(item)})
}
