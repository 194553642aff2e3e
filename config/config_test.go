package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"STORE_DRIVER", "ORDER_MAX_ATTEMPTS", "MAX_DEPOSIT", "REDIS_ENABLED", "EVENTS_TRANSPORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Business.OrderMaxAttempts)
	assert.Equal(t, int64(20000), cfg.Business.MaxDeposit)
	assert.Equal(t, 10*time.Second, cfg.Business.OrderTimeout())
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "kafka", cfg.Kafka.Transport)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("ORDER_MAX_ATTEMPTS", "3")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("OUTBOX_POLL_MILLIS", "250")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Business.OrderMaxAttempts)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Business.OutboxPollInterval())
}

func TestGetBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_FLAG", "maybe")
	assert.True(t, getBool("SOME_FLAG", true))
}
