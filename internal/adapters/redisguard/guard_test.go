package redisguard_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/okian/padeliq/internal/adapters/redisguard"
	. "github.com/smartystreets/goconvey/convey"
)

// These tests need a reachable Redis, e.g. PADELIQ_TEST_REDIS_ADDR=localhost:6379.
func connect(t *testing.T) *redisguard.Guard {
	t.Helper()
	addr := os.Getenv("PADELIQ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PADELIQ_TEST_REDIS_ADDR not set")
	}
	g, err := redisguard.Connect(context.Background(), addr,
		redisguard.WithPrefix("padeliq:test:"+uuid.NewString()+":"),
		redisguard.WithTTL(time.Minute),
	)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestRedisGuard(t *testing.T) {
	g := connect(t)
	ctx := context.Background()

	Convey("Given a Redis-backed guard", t, func() {
		key := uuid.NewString()

		Convey("Then a key is admitted once until released", func() {
			ok, err := g.TryAcquire(ctx, key)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(g.Size(), ShouldEqual, 1)

			ok, err = g.TryAcquire(ctx, key)
			So(err, ShouldBeNil)
			So(ok, ShouldBeFalse)

			So(g.Release(ctx, key), ShouldBeNil)
			So(g.Size(), ShouldEqual, 0)

			ok, err = g.TryAcquire(ctx, key)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(g.Release(ctx, key), ShouldBeNil)
		})

		Convey("Then releasing an unknown key is a no-op", func() {
			So(g.Release(ctx, "never-held"), ShouldBeNil)
		})
	})
}
