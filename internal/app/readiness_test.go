package app

import (
	"context"
	"testing"
)

type okPing struct{}

func (okPing) Err() error { return nil }

type errPing struct{ err error }

func (e errPing) Err() error { return e.err }

type fakeRedis struct {
	ok  bool
	err error
}

func (f fakeRedis) Ping(_ context.Context) RedisPingResult {
	if f.ok {
		return okPing{}
	}
	return errPing{err: f.err}
}

type fakePool struct{ err error }

func (f fakePool) Ping(_ context.Context) error { return f.err }

func TestBuildReadinessChecks_Success(t *testing.T) {
	db, red := BuildReadinessChecks(fakePool{}, fakeRedis{ok: true})
	if err := db(context.Background()); err != nil {
		t.Fatalf("db check: %v", err)
	}
	if err := red(context.Background()); err != nil {
		t.Fatalf("redis check: %v", err)
	}
}

func TestBuildReadinessChecks_NotConfigured(t *testing.T) {
	db, red := BuildReadinessChecks(nil, nil)
	if err := db(context.Background()); err == nil {
		t.Fatalf("expected db not configured error")
	}
	if err := red(context.Background()); err == nil {
		t.Fatalf("expected redis not configured error")
	}
}

func TestBuildReadinessChecks_RedisError(t *testing.T) {
	_, red := BuildReadinessChecks(fakePool{}, fakeRedis{ok: false, err: context.DeadlineExceeded})
	if err := red(context.Background()); err == nil {
		t.Fatalf("expected redis error")
	}
}
