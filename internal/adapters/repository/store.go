// Package repository persists score records.
package repository

import (
	"context"

	"github.com/okian/padeliq/internal/domain/model"
)

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 50

// Store provides read/write access to score records.
type Store interface {
	// Save persists rec. Saving a run id twice replaces the earlier record.
	Save(ctx context.Context, rec model.ScoreRecord) error

	// Latest returns the most recent record for a (user, video) pair.
	// Returns ErrNotFound if the pair was never scored.
	Latest(ctx context.Context, userID, videoID string) (model.ScoreRecord, error)

	// History returns up to limit records of a user, newest first.
	History(ctx context.Context, userID string, limit int) ([]model.ScoreRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) int

	Close() error
}

func validate(rec model.ScoreRecord) error {
	if rec.RunID == "" || rec.UserID == "" || rec.VideoID == "" {
		return ErrInvalidRecord
	}
	return nil
}

func historyLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit == 0:
		return DefaultHistoryLimit, nil
	}
	return limit, nil
}
