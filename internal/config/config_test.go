package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"JWT_SECRET", "HTTP_ADDR", "STORE_DRIVER", "REDIS_ADDR", "KAFKA_BROKERS", "LOW_STOCK_THRESHOLD", "INVENTORY_WORKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 8, cfg.InventoryWorkers)
	assert.Empty(t, cfg.JWTSecret)
	assert.ErrorIs(t, cfg.Validate(), ErrNoJWTSecret)
}

func TestJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORE_DRIVER", "memory")
	cfg := Load()
	assert.Equal(t, DevJWTSecret, cfg.JWTSecret)
	require.NoError(t, cfg.Validate())

	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("JWT_SECRET", "s3cret")
	cfg = Load()
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("LOW_STOCK_THRESHOLD", "2")
	t.Setenv("INVENTORY_WORKERS", "lots")

	cfg := Load()
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2, cfg.LowStockThreshold)
	assert.Equal(t, 8, cfg.InventoryWorkers)
}
