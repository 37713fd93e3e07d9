package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCheckRateLimitExhaustsAuthBudget(t *testing.T) {
	engine, _, _ := newEngineTest(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := engine.CheckRateLimit(ctx, "ip:203.0.113.7", RateAuth)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if result.Remaining != 4-i {
			t.Fatalf("attempt %d: remaining = %d, want %d", i, result.Remaining, 4-i)
		}
	}

	result, err := engine.CheckRateLimit(ctx, "ip:203.0.113.7", RateAuth)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if result.RetryAfter <= 0 {
		t.Fatalf("expected positive RetryAfter, got %s", result.RetryAfter)
	}
	if result.Violations < 1 {
		t.Fatalf("expected violation recorded, got %d", result.Violations)
	}
}

func TestCheckRateLimitIsolatesIdentifiers(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAuth: {Max: 1, Window: time.Minute},
		}
	})
	ctx := context.Background()

	if _, err := engine.CheckRateLimit(ctx, "ip:203.0.113.1", RateAuth); err != nil {
		t.Fatalf("first identifier: %v", err)
	}
	if _, err := engine.CheckRateLimit(ctx, "ip:203.0.113.1", RateAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// A different identifier still has a full budget.
	if _, err := engine.CheckRateLimit(ctx, "ip:203.0.113.2", RateAuth); err != nil {
		t.Fatalf("second identifier: %v", err)
	}
}

func TestCheckRateLimitWhitelistBypasses(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAuth: {Max: 1, Window: time.Minute},
		}
		cfg.RateLimit.Whitelist = []string{"ip:10.0.0.1"}
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		result, err := engine.CheckRateLimit(ctx, "ip:10.0.0.1", RateAuth)
		if err != nil {
			t.Fatalf("whitelisted attempt %d: %v", i, err)
		}
		if !result.Unlimited {
			t.Fatalf("expected unlimited result for whitelisted identifier")
		}
	}
}

func TestRateLimitDenialEmitsAudit(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAuth: {Max: 1, Window: time.Minute},
		}
	})
	ctx := context.Background()

	engine.CheckRateLimit(ctx, "ip:203.0.113.9", RateAuth)
	if _, err := engine.CheckRateLimit(ctx, "ip:203.0.113.9", RateAuth); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	events := waitForAudit(t, engine, AuditFilter{Action: "rate_limit_triggered"})
	if events[0].Metadata["identifier"] != "ip:203.0.113.9" {
		t.Fatalf("unexpected metadata: %+v", events[0].Metadata)
	}
}

func TestRefreshRateLimitedByClientIP(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAuth: {Max: 1, Window: time.Minute},
		}
	})
	ctx := WithClientIP(context.Background(), "203.0.113.50")

	pair, err := engine.GenerateTokenPair(ctx, "u-1", RoleUser)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	next, err := engine.RefreshTokens(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if _, err := engine.RefreshTokens(ctx, next.RefreshToken); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestAutoBlacklistAfterRepeatedViolations(t *testing.T) {
	engine, _, mr := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAuth: {Max: 1, Window: time.Minute},
		}
		cfg.RateLimit.BaseBlockDuration = time.Minute
		cfg.RateLimit.AutoBlacklistThreshold = 2
		cfg.RateLimit.BlacklistTTL = 24 * time.Hour
	})
	ctx := context.Background()
	id := "ip:198.51.100.4"

	// Two full deny cycles, letting the block expire between them.
	for cycle := 0; cycle < 2; cycle++ {
		engine.CheckRateLimit(ctx, id, RateAuth)
		if _, err := engine.CheckRateLimit(ctx, id, RateAuth); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("cycle %d: expected ErrRateLimited, got %v", cycle, err)
		}
		mr.FastForward(5 * time.Minute)
	}

	blacklisted, err := engine.IsBlacklisted(ctx, id)
	if err != nil {
		t.Fatalf("is blacklisted: %v", err)
	}
	if !blacklisted {
		t.Fatal("expected identifier to be auto-blacklisted")
	}

	if err := engine.Unblacklist(ctx, id); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}
	if _, err := engine.CheckRateLimit(ctx, id, RateAuth); err != nil {
		t.Fatalf("expected clean slate after unblacklist: %v", err)
	}
}

func TestManualBlacklistDeniesImmediately(t *testing.T) {
	engine, _, _ := newEngineTest(t, nil)
	ctx := context.Background()
	id := "ip:198.51.100.77"

	if err := engine.Blacklist(ctx, id); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := engine.CheckRateLimit(ctx, id, RateAPI); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for blacklisted identifier, got %v", err)
	}
}

func TestResetRateLimitRestoresBudget(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.RateLimit.Rules = map[RateCategory]RateLimitRule{
			RateAPI: {Max: 1, Window: time.Hour},
		}
	})
	ctx := context.Background()
	id := "user:42"

	if _, err := engine.CheckRateLimit(ctx, id, RateAPI); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if err := engine.ResetRateLimit(ctx, id, RateAPI); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := engine.CheckRateLimit(ctx, id, RateAPI); err != nil {
		t.Fatalf("expected fresh budget after reset: %v", err)
	}
}
