package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFromClient(client), mr
}

func TestRevokeToken(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	revoked, err := c.IsTokenRevoked(ctx, "01HTOKEN")
	if err != nil {
		t.Fatalf("IsTokenRevoked() error = %v", err)
	}
	if revoked {
		t.Fatal("fresh token reported revoked")
	}

	if err := c.RevokeToken(ctx, "01HTOKEN", time.Hour); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	revoked, err = c.IsTokenRevoked(ctx, "01HTOKEN")
	if err != nil {
		t.Fatalf("IsTokenRevoked() error = %v", err)
	}
	if !revoked {
		t.Fatal("revoked token not reported revoked")
	}

	mr.FastForward(2 * time.Hour)
	revoked, _ = c.IsTokenRevoked(ctx, "01HTOKEN")
	if revoked {
		t.Error("revocation should expire with the token")
	}
}

func TestRevokeToken_ExpiredIsNoop(t *testing.T) {
	c, mr := newTestCache(t)

	if err := c.RevokeToken(context.Background(), "expired", 0); err != nil {
		t.Fatalf("RevokeToken() error = %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("keys = %v, want none", mr.Keys())
	}
}

func TestIsTokenRevoked_RedisDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	if _, err := c.IsTokenRevoked(context.Background(), "any"); err == nil {
		t.Fatal("expected error when Redis is unavailable")
	}
}

func TestAllowGeneration_Burst(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	limit := PerMinute(6, 3)

	for i := 0; i < 3; i++ {
		res, err := c.AllowGeneration(ctx, "user-1", limit)
		if err != nil {
			t.Fatalf("AllowGeneration() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied within burst", i+1)
		}
		if res.Remaining != int64(2-i) {
			t.Errorf("request %d remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	res, err := c.AllowGeneration(ctx, "user-1", limit)
	if err != nil {
		t.Fatalf("AllowGeneration() error = %v", err)
	}
	if res.Allowed {
		t.Fatal("request beyond burst allowed")
	}
	// 6 per minute refills one token every 10s.
	if res.RetryAfter <= 9*time.Second || res.RetryAfter > 10*time.Second {
		t.Errorf("RetryAfter = %v, want about 10s", res.RetryAfter)
	}
	if res.Limit != limit {
		t.Errorf("Limit = %+v, want %+v", res.Limit, limit)
	}
	if until := time.Until(res.ResetAt); until < 25*time.Second || until > 31*time.Second {
		t.Errorf("ResetAt in %v, want about 30s", until)
	}

	other, _ := c.AllowGeneration(ctx, "user-2", limit)
	if !other.Allowed {
		t.Error("buckets should be per user")
	}
}

func TestAllowGeneration_KeyExpiresOnceFull(t *testing.T) {
	c, mr := newTestCache(t)

	if _, err := c.AllowGeneration(context.Background(), "user-1", PerMinute(6, 3)); err != nil {
		t.Fatal(err)
	}
	ttl := mr.TTL(rateLimitGeneratePrefix + "user-1")
	if ttl <= 30*time.Second || ttl > time.Minute {
		t.Errorf("bucket TTL = %v, want refill time plus margin", ttl)
	}
}

func TestAllowGeneration_Disabled(t *testing.T) {
	c, mr := newTestCache(t)

	res, err := c.AllowGeneration(context.Background(), "user-1", PerMinute(0, 5))
	if err != nil {
		t.Fatalf("AllowGeneration() error = %v", err)
	}
	if !res.Allowed {
		t.Error("disabled limit should allow")
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("keys = %v, want none", mr.Keys())
	}
}

func TestAllowAuthAttempt_FailsOpen(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	res, err := c.AllowAuthAttempt(context.Background(), "10.0.0.1", PerSecond(1, 1))
	if err != nil {
		t.Fatalf("AllowAuthAttempt() error = %v", err)
	}
	if !res.Allowed {
		t.Error("rate limiter should fail open when Redis is down")
	}
}
