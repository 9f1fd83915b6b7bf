package domain

import (
	"context"
	"time"
)

// PredictionRecord is one prediction handed to the record store.
type PredictionRecord struct {
	Email        string
	ConnectionID string
	Seq          uint64
	Prediction   PredictionResult
	RecordedAt   time.Time
}

// HistoryRecorder persists prediction history. Failures never affect a session.
type HistoryRecorder interface {
	Record(ctx context.Context, rec PredictionRecord) error
}

// SessionVerifier checks an email/session-key pair against the record store.
type SessionVerifier interface {
	VerifySession(ctx context.Context, email, sessionKey string) error
}
