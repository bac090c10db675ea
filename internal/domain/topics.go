package domain

const (
	TopicCartEvents   = "shop.cart.events"
	TopicOrderEvents  = "shop.order.events"
	TopicReviewEvents = "shop.review.events"
	TopicCatalogEvent = "shop.catalog.events"
)

// TopicFor maps an event type to the topic it is published on.
func TopicFor(eventType string) string {
	switch eventType {
	case EventCartItemAdded:
		return TopicCartEvents
	case EventOrderConfirmed, EventOrderStatusChanged:
		return TopicOrderEvents
	case EventReviewSubmitted:
		return TopicReviewEvents
	default:
		return TopicCatalogEvent
	}
}

// Partition key = user_id atau product_id, supaya event satu entitas tetap berurutan.
func PartitionKey(id string) []byte { return []byte(id) }
