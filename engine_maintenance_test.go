package authcore

import (
	"testing"
	"time"
)

func TestMaintenanceSweepsTTLLessRateLimitKeys(t *testing.T) {
	engine, _, mr := newEngineTest(t, func(cfg *Config) {
		cfg.Maintenance.Enabled = true
		cfg.Maintenance.Interval = 10 * time.Millisecond
	})
	_ = engine

	// A counter key without a TTL, as left behind by a mid-write RDB restore.
	mr.Set("rl:c:auth:ip:203.0.113.3", "4")
	// Permanent blacklist markers are legitimate TTL-less keys.
	mr.Set("rl:bl:ip:203.0.113.66", "1")

	deadline := time.After(2 * time.Second)
	for mr.Exists("rl:c:auth:ip:203.0.113.3") {
		select {
		case <-deadline:
			t.Fatal("sweep never removed the TTL-less counter key")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	if !mr.Exists("rl:bl:ip:203.0.113.66") {
		t.Fatal("sweep must preserve permanent blacklist markers")
	}
}

func TestCloseStopsMaintenance(t *testing.T) {
	engine, _, _ := newEngineTest(t, func(cfg *Config) {
		cfg.Maintenance.Enabled = true
		cfg.Maintenance.Interval = 10 * time.Millisecond
	})

	done := make(chan struct{})
	go func() {
		engine.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not stop the maintenance loop")
	}
}
