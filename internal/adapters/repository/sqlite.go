package repository

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
	count  atomic.Int64
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path, applies pending migrations and returns the store.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer; modernc serializes anyway and this avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", o.busyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, logger: o.logger}
	if err := s.migrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}

	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM score_records`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	s.count.Store(n)

	s.logger.Info(ctx, "sqlite store ready", logger.String("path", path), logger.Int("records", int(n)))
	return s, nil
}

func (s *SQLiteStore) migrateUp() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{l: s.logger}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *SQLiteStore) Version(ctx context.Context) (uint, error) {
	var v uint
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations LIMIT 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}

// Save upserts rec by run id.
func (s *SQLiteStore) Save(ctx context.Context, rec model.ScoreRecord) error {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("save", time.Since(start).Seconds()) }()

	if err := validate(rec); err != nil {
		metrics.RecordStoreError("save")
		return err
	}
	m, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	st, err := json.Marshal(rec.Strokes)
	if err != nil {
		return fmt.Errorf("failed to encode strokes: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO score_records (
			run_id, user_id, video_id, kind, composite, skill_level, force_tier,
			racket_detected, run_at_ns, metrics, strokes, stroke_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING`,
		rec.RunID, rec.UserID, rec.VideoID, string(rec.Kind), rec.Composite, string(rec.SkillLevel),
		rec.ForceTier, rec.RacketDetected, rec.RunAt.UnixNano(), string(m), string(st), len(rec.Strokes),
	)
	if err != nil {
		metrics.RecordStoreError("save")
		return fmt.Errorf("failed to insert record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		s.count.Add(1)
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE score_records SET
			user_id = ?, video_id = ?, kind = ?, composite = ?, skill_level = ?, force_tier = ?,
			racket_detected = ?, run_at_ns = ?, metrics = ?, strokes = ?, stroke_count = ?
		WHERE run_id = ?`,
		rec.UserID, rec.VideoID, string(rec.Kind), rec.Composite, string(rec.SkillLevel), rec.ForceTier,
		rec.RacketDetected, rec.RunAt.UnixNano(), string(m), string(st), len(rec.Strokes), rec.RunID,
	)
	if err != nil {
		metrics.RecordStoreError("save")
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

const selectColumns = `run_id, user_id, video_id, kind, composite, skill_level, force_tier,
	racket_detected, run_at_ns, metrics, strokes`

// Latest returns the newest record for the pair.
func (s *SQLiteStore) Latest(ctx context.Context, userID, videoID string) (model.ScoreRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("latest", time.Since(start).Seconds()) }()

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM score_records
		WHERE user_id = ? AND video_id = ?
		ORDER BY run_at_ns DESC, rowid DESC LIMIT 1`, userID, videoID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScoreRecord{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError("latest")
		return model.ScoreRecord{}, err
	}
	return rec, nil
}

// History returns the user's records, newest first.
func (s *SQLiteStore) History(ctx context.Context, userID string, limit int) ([]model.ScoreRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("history", time.Since(start).Seconds()) }()

	limit, err := historyLimit(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM score_records
		WHERE user_id = ?
		ORDER BY run_at_ns DESC, rowid DESC LIMIT ?`, userID, limit)
	if err != nil {
		metrics.RecordStoreError("history")
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []model.ScoreRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			metrics.RecordStoreError("history")
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(context.Context) int {
	return int(s.count.Load())
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(r scanner) (model.ScoreRecord, error) {
	var (
		rec          model.ScoreRecord
		kind, skill  string
		runAt        int64
		mJSON, sJSON string
	)
	err := r.Scan(&rec.RunID, &rec.UserID, &rec.VideoID, &kind, &rec.Composite, &skill,
		&rec.ForceTier, &rec.RacketDetected, &runAt, &mJSON, &sJSON)
	if err != nil {
		return model.ScoreRecord{}, err
	}
	rec.Kind = model.VideoKind(kind)
	rec.SkillLevel = model.SkillLevel(skill)
	rec.RunAt = time.Unix(0, runAt).UTC()
	if err := json.Unmarshal([]byte(mJSON), &rec.Metrics); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("failed to decode metrics of %s: %w", rec.RunID, err)
	}
	if err := json.Unmarshal([]byte(sJSON), &rec.Strokes); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("failed to decode strokes of %s: %w", rec.RunID, err)
	}
	return rec, nil
}

// migrateLogger adapts the service logger to migrate.Logger.
type migrateLogger struct {
	l logger.Logger
}

func (m migrateLogger) Printf(format string, v ...any) {
	m.l.Debug(context.Background(), fmt.Sprintf("migrate: "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }
