package redisx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:cart:add:u1:abc", CartAddKey("u1", "abc"))
	assert.Equal(t, "dedup:rating:e-1", DedupKey("rating", "e-1"))
	assert.Greater(t, TTLIdempotency, TTLInFlight)
}
