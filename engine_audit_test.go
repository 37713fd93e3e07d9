package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAuditEventsReachCustomSink(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sink := NewChannelSink(16)
	cfg := defaultConfig()
	cfg.JWT.Secret = []byte(testSigningSecret)

	accounts := &fakeAccounts{}
	accounts.set(AccountRecord{UserID: "u-1", Username: "alice", Role: RoleUser, Active: true, EmailVerified: true})

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountProvider(accounts).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(WithUserAgent(context.Background(), "cli/1.0"), "203.0.113.5")
	if _, err := engine.GenerateTokenPair(ctx, "u-1", RoleUser); err != nil {
		t.Fatalf("generate: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.Action != "token_issued" {
			t.Fatalf("action = %q", event.Action)
		}
		if event.Severity != SeverityMedium {
			t.Fatalf("severity = %q", event.Severity)
		}
		if event.IP != "203.0.113.5" || event.UserAgent != "cli/1.0" {
			t.Fatalf("context fields missing: %+v", event)
		}
		if !event.Success {
			t.Fatal("expected success event")
		}
		if event.Metadata["token_id"] == "" {
			t.Fatal("expected token_id metadata")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no audit event delivered")
	}
}

func TestAuditTotalsAggregate(t *testing.T) {
	engine, _, _ := newEngineTest(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := engine.GenerateTokenPair(ctx, "u-1", RoleUser); err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	waitForAudit(t, engine, AuditFilter{Action: "token_issued"})

	deadline := time.After(2 * time.Second)
	for {
		counts, err := engine.AuditTotals(ctx)
		if err != nil {
			t.Fatalf("totals: %v", err)
		}
		if counts.ByAction["token_issued"] == 3 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("totals never reached 3: %+v", counts)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestQueryAuditFiltersByUser(t *testing.T) {
	engine, accounts, _ := newEngineTest(t, nil)
	accounts.set(AccountRecord{UserID: "u-2", Username: "bob", Role: RoleUser, Active: true, EmailVerified: true})
	ctx := context.Background()

	if _, err := engine.GenerateTokenPair(ctx, "u-1", RoleUser); err != nil {
		t.Fatalf("generate u-1: %v", err)
	}
	if _, err := engine.GenerateTokenPair(ctx, "u-2", RoleUser); err != nil {
		t.Fatalf("generate u-2: %v", err)
	}

	events := waitForAudit(t, engine, AuditFilter{UserID: "u-2"})
	for _, event := range events {
		if event.UserID != "u-2" {
			t.Fatalf("filter leaked event for %q", event.UserID)
		}
	}
}

func TestQueryAuditRequiresPersistence(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.Audit.Persist = false
	})

	if _, _, err := engine.QueryAudit(context.Background(), AuditFilter{}); err != ErrEngineNotReady {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	engine, _, _ := newEngineTest(t, nil)

	report := engine.SecurityReport()
	if report.AccessTTL != 15*time.Minute {
		t.Fatalf("access ttl = %s", report.AccessTTL)
	}
	if report.RefreshTTL != 30*24*time.Hour {
		t.Fatalf("refresh ttl = %s", report.RefreshTTL)
	}
	if !report.RotationEnabled || !report.ReuseDetectionEnabled {
		t.Fatal("rotation and reuse detection are always on")
	}
	if !report.RateLimitingActive || !report.AutoBlacklistActive {
		t.Fatal("expected limiter active under default config")
	}
	if !report.AuditEnabled || !report.AuditPersisted {
		t.Fatal("expected audit pipeline active under default config")
	}
	if report.SecretScore <= 0 {
		t.Fatalf("secret score = %d", report.SecretScore)
	}
}

func TestSecurityReportWithoutRateLimiter(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Enabled = false
	})

	report := engine.SecurityReport()
	if report.RateLimitingActive || report.AutoBlacklistActive {
		t.Fatal("limiter should be reported inactive")
	}
}
