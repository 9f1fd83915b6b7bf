package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

const (
	historyKeyPrefix = "history:"
	historyKeyTTL    = 30 * 24 * time.Hour
	defaultLimit     = 100
)

// HistoryEntry is one stored prediction. Entries are JSON encoded, newest first.
type HistoryEntry struct {
	ConnectionID string                  `json:"connectionId"`
	Seq          uint64                  `json:"seq"`
	Prediction   domain.PredictionResult `json:"prediction"`
	RecordedAt   time.Time               `json:"recordedAt"`
}

// HistoryStore appends predictions to history:<email> and trims the list to limit.
type HistoryStore struct {
	rdb   *goredis.Client
	limit int64
}

var _ domain.HistoryRecorder = (*HistoryStore)(nil)

func NewHistoryStore(rdb *goredis.Client, limit int) *HistoryStore {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &HistoryStore{rdb: rdb, limit: int64(limit)}
}

func (s *HistoryStore) Record(ctx context.Context, rec domain.PredictionRecord) error {
	payload, err := json.Marshal(HistoryEntry{
		ConnectionID: rec.ConnectionID,
		Seq:          rec.Seq,
		Prediction:   rec.Prediction,
		RecordedAt:   rec.RecordedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode history entry: %w", err)
	}

	key := historyKey(rec.Email)

	// Pipeline: LPUSH, LTRIM, EXPIRE
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, s.limit-1)
	pipe.Expire(ctx, key, historyKeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record history pipeline failed: %w", err)
	}
	return nil
}

func historyKey(email string) string {
	return historyKeyPrefix + strings.ToLower(email)
}
