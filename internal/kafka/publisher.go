package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/domain"
)

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"

	eventVersion = 1
)

// NewEnvelope wraps payload for eventType. key becomes the correlation id.
func NewEnvelope(producer, eventType, key string, payload any) (domain.Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return domain.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: key,
		Payload:       raw,
	}, nil
}

// EventPublisher implements domain.Publisher with one async producer per
// topic. Messages are keyed by entity id so one user's events stay ordered.
type EventPublisher struct {
	service   string
	producers map[string]*Producer
}

func NewEventPublisher(brokers []string, service string, log *zap.Logger) *EventPublisher {
	topics := []string{
		domain.TopicCartEvents,
		domain.TopicOrderEvents,
		domain.TopicReviewEvents,
		domain.TopicCatalogEvent,
	}
	ep := &EventPublisher{service: service, producers: make(map[string]*Producer, len(topics))}
	for _, t := range topics {
		p := NewProducer(brokers, t, 256, log)
		p.Start()
		ep.producers[t] = p
	}
	return ep
}

func (ep *EventPublisher) Publish(ctx context.Context, eventType, key string, payload any) error {
	env, err := NewEnvelope(ep.service, eventType, key, payload)
	if err != nil {
		return err
	}
	p, ok := ep.producers[domain.TopicFor(eventType)]
	if !ok {
		return fmt.Errorf("no producer for %s", eventType)
	}
	return p.Publish(ctx, domain.PartitionKey(key), MustMarshal(env),
		kafka.Header{Key: HeaderEventType, Value: []byte(eventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(eventVersion))},
	)
}

// Close flushes every producer.
func (ep *EventPublisher) Close() {
	for _, p := range ep.producers {
		p.Close()
	}
	for _, p := range ep.producers {
		p.WaitClosed()
	}
}

var _ domain.Publisher = (*EventPublisher)(nil)
