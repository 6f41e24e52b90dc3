package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/metrics"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	byRun  map[string]model.ScoreRecord
	byUser map[string][]string // run ids, oldest first
	closed bool
}

var _ Store = (*MemoryStore)(nil)

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *MemoryStore {
	return &MemoryStore{
		byRun:  make(map[string]model.ScoreRecord),
		byUser: make(map[string][]string),
	}
}

// Save stores rec.
func (s *MemoryStore) Save(ctx context.Context, rec model.ScoreRecord) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("save", time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(rec); err != nil {
		metrics.RecordStoreError("save")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.byRun[rec.RunID]; !ok {
		s.byUser[rec.UserID] = append(s.byUser[rec.UserID], rec.RunID)
	}
	s.byRun[rec.RunID] = clone(rec)
	return nil
}

// Latest returns the newest record for the pair.
func (s *MemoryStore) Latest(ctx context.Context, userID, videoID string) (model.ScoreRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("latest", time.Since(start).Seconds()) }()

	if err := ctx.Err(); err != nil {
		return model.ScoreRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  model.ScoreRecord
		found bool
	)
	for _, id := range s.byUser[userID] {
		rec := s.byRun[id]
		if rec.VideoID != videoID {
			continue
		}
		// ties keep the later save
		if !found || !rec.RunAt.Before(best.RunAt) {
			best, found = rec, true
		}
	}
	if !found {
		return model.ScoreRecord{}, ErrNotFound
	}
	return clone(best), nil
}

// History returns the user's records, newest first.
func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]model.ScoreRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, err := historyLimit(limit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.byUser[userID]
	out := make([]model.ScoreRecord, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, clone(s.byRun[ids[i]]))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RunAt.After(out[j].RunAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byRun)
}

// Close marks the store closed; records stay readable.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func clone(rec model.ScoreRecord) model.ScoreRecord {
	if rec.Strokes != nil {
		rec.Strokes = append([]model.StrokeSummary(nil), rec.Strokes...)
	}
	rec.Metrics.Coverage = clonePtr(rec.Metrics.Coverage)
	rec.Metrics.Consistency = clonePtr(rec.Metrics.Consistency)
	rec.Metrics.NetEffectiveness = clonePtr(rec.Metrics.NetEffectiveness)
	return rec
}

func clonePtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
