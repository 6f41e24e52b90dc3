package repository_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/okian/padeliq/internal/adapters/repository"
	"github.com/okian/padeliq/internal/domain/model"
	"github.com/okian/padeliq/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

func record(runID, user, video string, at time.Duration) model.ScoreRecord {
	cons := 100 / 1.01
	return model.ScoreRecord{
		RunID:      runID,
		UserID:     user,
		VideoID:    video,
		Kind:       model.KindSingle,
		Metrics:    model.MetricSet{Technique: 55.5, Rhythm: 1.0 / 3, Power: 100, Consistency: &cons},
		Composite:  61.123456789,
		SkillLevel: model.SkillAdvanced,
		ForceTier:  4,
		Strokes: []model.StrokeSummary{
			{Type: model.StrokeSmash, Quality: 30, Start: 1.2, End: 2, Zone: model.ZoneNet, Slot: model.SlotSingle},
		},
		RacketDetected: true,
		RunAt:          base.Add(at),
	}
}

func stores(t *testing.T) map[string]func() repository.Store {
	return map[string]func() repository.Store{
		"memory": func() repository.Store { return repository.NewInMemoryStore() },
		"sqlite": func() repository.Store {
			path := filepath.Join(t.TempDir(), "scores.db")
			s, err := repository.NewSQLiteStore(context.Background(), path, repository.WithLogger(logger.Nop()))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, open := range stores(t) {
		Convey("Given an empty "+name+" store", t, func() {
			s := open()
			defer s.Close()

			Convey("Then lookups miss", func() {
				_, err := s.Latest(ctx, "u1", "v1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(s.Count(ctx), ShouldEqual, 0)
			})

			Convey("When a record is saved", func() {
				want := record("r1", "u1", "v1", 0)
				So(s.Save(ctx, want), ShouldBeNil)

				Convey("Then it reads back identical", func() {
					got, err := s.Latest(ctx, "u1", "v1")
					So(err, ShouldBeNil)
					So(cmp.Diff(want, got), ShouldBeEmpty)
					So(s.Count(ctx), ShouldEqual, 1)
				})
			})

			Convey("When a pair is scored twice", func() {
				So(s.Save(ctx, record("r1", "u1", "v1", 0)), ShouldBeNil)
				So(s.Save(ctx, record("r2", "u1", "v1", time.Minute)), ShouldBeNil)
				So(s.Save(ctx, record("r3", "u1", "v2", 2*time.Minute)), ShouldBeNil)

				Convey("Then the latest run wins", func() {
					got, err := s.Latest(ctx, "u1", "v1")
					So(err, ShouldBeNil)
					So(got.RunID, ShouldEqual, "r2")
				})

				Convey("And history is newest first", func() {
					hist, err := s.History(ctx, "u1", 2)
					So(err, ShouldBeNil)
					So(hist, ShouldHaveLength, 2)
					So(hist[0].RunID, ShouldEqual, "r3")
					So(hist[1].RunID, ShouldEqual, "r2")

					all, err := s.History(ctx, "u1", 0)
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 3)
				})
			})

			Convey("When a run id is saved again", func() {
				So(s.Save(ctx, record("r1", "u1", "v1", 0)), ShouldBeNil)
				updated := record("r1", "u1", "v1", 0)
				updated.Composite = 12
				updated.Strokes = nil
				So(s.Save(ctx, updated), ShouldBeNil)

				Convey("Then it is replaced", func() {
					got, err := s.Latest(ctx, "u1", "v1")
					So(err, ShouldBeNil)
					So(got.Composite, ShouldEqual, 12)
					So(got.Strokes, ShouldBeNil)
					So(s.Count(ctx), ShouldEqual, 1)
				})
			})

			Convey("When input is invalid", func() {
				So(errors.Is(s.Save(ctx, model.ScoreRecord{RunID: "x"}), repository.ErrInvalidRecord), ShouldBeTrue)
				_, err := s.History(ctx, "u1", -1)
				So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
			})
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scores.db")

	Convey("Given a database written by an earlier process", t, func() {
		s, err := repository.NewSQLiteStore(ctx, path, repository.WithLogger(logger.Nop()))
		So(err, ShouldBeNil)
		So(s.Save(ctx, record("r1", "u1", "v1", 0)), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then reopening keeps records and the schema version", func() {
			s, err := repository.NewSQLiteStore(ctx, path, repository.WithLogger(logger.Nop()))
			So(err, ShouldBeNil)
			defer s.Close()
			So(s.Count(ctx), ShouldEqual, 1)
			v, err := s.Version(ctx)
			So(err, ShouldBeNil)
			So(v, ShouldEqual, 2)
		})
	})
}

func TestMemoryStoreIsolation(t *testing.T) {
	Convey("Given a saved record", t, func() {
		ctx := context.Background()
		s := repository.NewInMemoryStore()
		rec := record("r1", "u1", "v1", 0)
		So(s.Save(ctx, rec), ShouldBeNil)

		Convey("Then callers cannot mutate the stored copy", func() {
			rec.Strokes[0].Quality = 0
			*rec.Metrics.Consistency = 0
			got, _ := s.Latest(ctx, "u1", "v1")
			So(got.Strokes[0].Quality, ShouldEqual, 30)
			So(*got.Metrics.Consistency, ShouldAlmostEqual, 100/1.01, 1e-12)
		})
	})
}
