package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
)

func record(seq uint64, risk string) domain.PredictionRecord {
	return domain.PredictionRecord{
		Email:        "Pat@Example.com",
		ConnectionID: "c-1",
		Seq:          seq,
		Prediction:   domain.PredictionResult{"risk": risk},
		RecordedAt:   time.Date(2024, 5, 1, 12, 0, int(seq), 0, time.UTC),
	}
}

// storedEntries reads the raw list for email, newest first.
func storedEntries(t *testing.T, client *goredis.Client, email string) []HistoryEntry {
	t.Helper()
	raw, err := client.LRange(context.Background(), historyKey(email), 0, -1).Result()
	require.NoError(t, err)

	entries := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		require.NoError(t, json.Unmarshal([]byte(r), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestHistoryStore_Record(t *testing.T) {
	client := setupTestClient(t)
	store := NewHistoryStore(client, 10)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, record(1, "Low Risk")))
	require.NoError(t, store.Record(ctx, record(2, "High Risk")))

	entries := storedEntries(t, client, "pat@example.com")
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[0].Seq)
	assert.Equal(t, "High Risk", entries[0].Prediction["risk"])
	assert.Equal(t, "c-1", entries[1].ConnectionID)
	assert.True(t, entries[1].RecordedAt.Equal(record(1, "").RecordedAt))

	ttl, err := client.TTL(ctx, "history:pat@example.com").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestHistoryStore_TrimsToLimit(t *testing.T) {
	client := setupTestClient(t)
	store := NewHistoryStore(client, 3)
	ctx := context.Background()

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, store.Record(ctx, record(seq, "Low Risk")))
	}

	entries := storedEntries(t, client, "pat@example.com")
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(5), entries[0].Seq)
	assert.Equal(t, uint64(3), entries[2].Seq)
}

func TestHistoryStore_DefaultLimit(t *testing.T) {
	client := setupTestClient(t)
	store := NewHistoryStore(client, 0)

	require.NoError(t, store.Record(context.Background(), record(1, "Low Risk")))
	assert.Equal(t, int64(defaultLimit), store.limit)
	assert.Len(t, storedEntries(t, client, "PAT@example.com"), 1)
}

func TestNewClient_InstrumentsCommands(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	m := metrics.NewStoreMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	client, err := NewClient(ctx, testRedisURL, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, HealthCheck(client)(ctx))
	require.NoError(t, NewHistoryStore(client, 5).Record(ctx, record(1, "Low Risk")))

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Operations.WithLabelValues("redis", "ping", "success")), 2.0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("redis", "pipeline", "success")))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope", nil)
	require.Error(t, err)
}
