package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pscheid92/vitalpulse/internal/domain"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
}

var _ domain.HistoryRecorder = (*HistoryRepo)(nil)

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

func (r *HistoryRepo) Record(ctx context.Context, rec domain.PredictionRecord) error {
	prediction, err := json.Marshal(rec.Prediction)
	if err != nil {
		return fmt.Errorf("failed to encode prediction: %w", err)
	}

	var risk *string
	if label, ok := rec.Prediction.Risk(); ok {
		risk = &label
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO prediction_history (email, connection_id, seq, prediction, risk, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, strings.ToLower(rec.Email), rec.ConnectionID, int64(rec.Seq), prediction, risk, rec.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to insert prediction history: %w", err)
	}
	return nil
}
