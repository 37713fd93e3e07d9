package authcore

import (
	"context"
	"log"
	"time"
)

// startMaintenance launches the background sweep loop. Called from Build
// when Maintenance.Enabled is set; stopped by Close.
func (e *Engine) startMaintenance(interval time.Duration) {
	e.maintStop = make(chan struct{})
	e.maintDone = make(chan struct{})
	go e.maintenanceLoop(interval)
}

func (e *Engine) maintenanceLoop(interval time.Duration) {
	defer close(e.maintDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.maintStop:
			return
		case <-ticker.C:
			e.runSweeps()
		}
	}
}

// runSweeps prunes expired audit index entries and TTL-less rate-limit keys.
// Failures are logged and retried on the next tick; they never affect
// request paths.
func (e *Engine) runSweeps() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if e.ledger != nil {
		if _, err := e.ledger.CleanupExpired(ctx); err != nil {
			log.Print("authcore: audit index sweep: ", err)
		}
	}
	if e.limiter != nil {
		if _, err := e.limiter.Sweep(ctx); err != nil {
			log.Print("authcore: rate limit sweep: ", err)
		}
	}
}

func (e *Engine) stopMaintenance() {
	if e.maintStop == nil {
		return
	}
	close(e.maintStop)
	<-e.maintDone
	e.maintStop = nil
}
