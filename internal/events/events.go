// Package events publishes complaint lifecycle events to a message broker so
// other systems (notifications, reporting) can follow complaint progress.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/civictrack/apiserver/internal/mq"
	"github.com/civictrack/apiserver/types"
)

// Type names a lifecycle event.
type Type string

const (
	ComplaintCreated       Type = "complaint.created"
	ComplaintUpvoted       Type = "complaint.upvoted"
	ComplaintStatusChanged Type = "complaint.status_changed"
	ComplaintDeleted       Type = "complaint.deleted"
)

// AttrEventType carries the event type as a message attribute so consumers
// can filter without decoding the body.
const AttrEventType = "event_type"

// Event is the message body for every lifecycle event.
type Event struct {
	Type        Type         `json:"type"`
	ComplaintID int          `json:"complaint_id"`
	ActorID     int          `json:"actor_id,omitempty"`
	Status      types.Status `json:"status,omitempty"`
	Upvotes     int          `json:"upvotes,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MQPublisher publishes events as JSON on a single channel. Events for the
// same complaint share an ordering key.
type MQPublisher struct {
	queue   *mq.MQ
	channel string
}

// NewMQPublisher publishes to channel through queue.
func NewMQPublisher(queue *mq.MQ, channel string) *MQPublisher {
	return &MQPublisher{queue: queue, channel: channel}
}

func (p *MQPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	attrs := map[string]string{
		AttrEventType:      string(event.Type),
		mq.AttrOrderingKey: strconv.Itoa(event.ComplaintID),
	}
	if _, err := p.queue.PublishJSON(ctx, p.channel, event, attrs); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NopPublisher drops events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Decode parses an event from a broker message.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, fmt.Errorf("decode event %s: %w", msg.ID, err)
	}
	return event, nil
}
