package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("OUTBOX_BATCH_SIZE", "50")
	t.Setenv("DLQ_BASE_DELAY", "90s")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("MEDIA_URL_TTL", "not-a-duration")
	t.Setenv("LOCAL_STORE_PATH", "/tmp/device.db")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")

	cfg := Load()
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 50, cfg.OutboxBatchSize)
	require.Equal(t, 90*time.Second, cfg.DLQBaseDelay)
	require.False(t, cfg.AutoMigrate)
	require.Equal(t, 15*time.Minute, cfg.MediaURLTTL)
	require.Equal(t, "/tmp/device.db", cfg.LocalStorePath)
	require.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	require.Equal(t, time.Minute, cfg.SessionSweepInterval)
	require.Equal(t, "Europe/Berlin", cfg.Location().String())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{DefaultTimezone: "Mars/Olympus"}
	require.Equal(t, time.UTC, cfg.Location())
}
