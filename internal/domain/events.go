package domain

import (
	"encoding/json"
	"time"
)

const (
	EventCartItemAdded      = "CartItemAdded"
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventReviewSubmitted    = "ReviewSubmitted"
	EventProductDeleted     = "ProductDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // user id atau product id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload per event ----

type CartItemAddedPayload struct {
	UserID    string  `json:"user_id"`
	LineID    string  `json:"line_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	StockLeft int     `json:"stock_left"`
}

type OrderConfirmedPayload struct {
	UserID    string   `json:"user_id"`
	UserEmail string   `json:"user_email,omitempty"`
	UserName  string   `json:"user_name,omitempty"`
	Status    Status   `json:"status"`
	LineIDs   []string `json:"line_ids"`
}

type OrderStatusChangedPayload struct {
	LineID  string `json:"line_id"`
	Status  Status `json:"status"`
	Matched bool   `json:"matched"`
	AdminID string `json:"admin_id"`
}

type ReviewSubmittedPayload struct {
	ReviewID  string `json:"review_id"`
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
	Updated   bool   `json:"updated"`
}

type ProductDeletedPayload struct {
	ProductID      string `json:"product_id"`
	LinesRemoved   int64  `json:"lines_removed"`
	ReviewsRemoved int64  `json:"reviews_removed"`
}
