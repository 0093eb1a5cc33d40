package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"STORE_DRIVER", "DB_LOCK_TIMEOUT", "OUTBOX_MAX_RETRIES", "SHIPPING_FLAT_FEE", "SENDGRID_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 3*time.Second, cfg.DBLockTimeout)
	assert.Equal(t, 3, cfg.OutboxMaxRetries)
	assert.Equal(t, "50", cfg.ShippingFee.String())
	assert.False(t, cfg.SendGridEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_WORKER_INTERVAL", "5s")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	t.Setenv("SHIPPING_FLAT_FEE", "12.50")
	t.Setenv("SMS_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 25, cfg.OutboxBatchSize)
	assert.Equal(t, "12.5", cfg.ShippingFee.String())
	assert.True(t, cfg.SMSEnabled)
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("STORE_RETRY_ATTEMPTS", "many")
	t.Setenv("DB_LOCK_TIMEOUT", "3")
	t.Setenv("SENDGRID_ENABLED", "yes please")

	cfg := Load()
	require.Equal(t, 3, cfg.StoreRetryAttempts)
	require.Equal(t, 3*time.Second, cfg.DBLockTimeout)
	require.False(t, cfg.SendGridEnabled)
}

func TestLoad_ZeroShippingFee(t *testing.T) {
	t.Setenv("SHIPPING_FLAT_FEE", "0")

	cfg := Load()
	assert.True(t, cfg.ShippingFee.IsZero(), cfg.ShippingFee.String())
}
