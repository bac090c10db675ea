package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/domain"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope("storefront-api", domain.EventReviewSubmitted, "p1", domain.ReviewSubmittedPayload{
		ReviewID: "r1", ProductID: "p1", UserID: "u1", Rating: 4,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "p1", env.CorrelationID)

	decoded, err := UnmarshalEnvelope(MustMarshal(env))
	require.NoError(t, err)
	assert.Equal(t, domain.EventReviewSubmitted, decoded.EventType)

	p, err := UnwrapPayload[domain.ReviewSubmittedPayload](decoded.Payload)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Rating)
	assert.Equal(t, "u1", p.UserID)
}

func TestNewEnvelopeRejectsUnencodablePayload(t *testing.T) {
	_, err := NewEnvelope("svc", domain.EventCartItemAdded, "u1", make(chan int))
	assert.Error(t, err)
}

func TestTopicRouting(t *testing.T) {
	assert.Equal(t, domain.TopicCartEvents, domain.TopicFor(domain.EventCartItemAdded))
	assert.Equal(t, domain.TopicOrderEvents, domain.TopicFor(domain.EventOrderConfirmed))
	assert.Equal(t, domain.TopicOrderEvents, domain.TopicFor(domain.EventOrderStatusChanged))
	assert.Equal(t, domain.TopicReviewEvents, domain.TopicFor(domain.EventReviewSubmitted))
	assert.Equal(t, domain.TopicCatalogEvent, domain.TopicFor(domain.EventProductDeleted))
}
