package redisx

import (
	"fmt"
	"time"
)

const (
	// Idempotency add-to-cart: idem:cart:add:{user_id}:{idempotency_key} -> response JSON
	KeyIdemCartAdd = "idem:cart:add:%s:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInFlight    = 30 * time.Second
	TTLDedup       = 48 * time.Hour
)

func CartAddKey(userID, idemKey string) string { return fmt.Sprintf(KeyIdemCartAdd, userID, idemKey) }

func DedupKey(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
