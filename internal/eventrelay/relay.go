package eventrelay

import (
	"context"
	"log/slog"
	"time"

	"github.com/fieldops/fieldops/internal/eventbus"
	"github.com/fieldops/fieldops/pkg/pubsub"
)

const (
	producer       = "fieldops-server"
	publishTimeout = 10 * time.Second
)

// Relay forwards assignment lifecycle events from the in-process bus to a
// topic exchange. Downstream contract and execution services consume
// assignment.accepted.v1 and assignment.auto_accepted.v1.
type Relay struct {
	bus       *eventbus.Bus
	publisher pubsub.Publisher
}

func New(bus *eventbus.Bus, publisher pubsub.Publisher) *Relay {
	return &Relay{
		bus:       bus,
		publisher: publisher,
	}
}

type payload struct {
	AssignmentID string            `json:"assignment_id"`
	Attributes   map[string]string `json:"attributes"`
}

// Start blocks until ctx is cancelled. Publishing failures are logged and
// the event is dropped.
func (r *Relay) Start(ctx context.Context) {
	subID, ch := r.bus.Subscribe(256)
	defer r.bus.Unsubscribe(subID)

	slog.Info("event relay started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("event relay stopped")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.relay(ctx, event)
		}
	}
}

func RoutingKey(t eventbus.EventType) string {
	return string(t) + ".v1"
}

func (r *Relay) relay(ctx context.Context, event *eventbus.Event) {
	key := RoutingKey(event.Type)
	prod := producer
	msg := pubsub.Envelope{
		Meta: pubsub.Meta{
			ID:       event.ID,
			Type:     key,
			Time:     event.CreatedAt,
			Producer: &prod,
		},
		Data: payload{
			AssignmentID: event.ResourceID,
			Attributes:   event.Metadata,
		},
	}
	if cid := event.Metadata["service_order_id"]; cid != "" {
		msg.Meta.CorrelationID = &cid
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, key, msg); err != nil {
		slog.Error("event relay: failed to publish",
			"event_id", event.ID,
			"event_type", event.Type,
			"assignment_id", event.ResourceID,
			"error", err,
		)
	}
}
