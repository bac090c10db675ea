package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("KAFKA_BROKERS", "")
	c := Load()
	assert.Equal(t, DriverMemory, c.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, c.KafkaBrokers)
	assert.False(t, c.ReviewRequirePurchase)
	assert.Equal(t, 4, c.WorkerConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("REVIEW_REQUIRE_PURCHASE", "true")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("WORKER_CONCURRENCY", "not-a-number")

	c := Load()
	assert.Equal(t, DriverPostgres, c.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.True(t, c.ReviewRequirePurchase)
	assert.InDelta(t, 2.5, c.RateLimitRPS, 1e-9)
	assert.Equal(t, 4, c.WorkerConcurrency)
}

func TestSharedStore(t *testing.T) {
	assert.False(t, Config{StoreDriver: DriverMemory}.SharedStore())
	assert.False(t, Config{StoreDriver: "sqlite"}.SharedStore())
	assert.True(t, Config{StoreDriver: DriverPostgres}.SharedStore())
	assert.True(t, Config{StoreDriver: DriverMongo}.SharedStore())
}
