package session

import (
	"context"
	"log"
	"time"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
)

// AutoCloser force-closes sessions whose paid time has elapsed. One instance
// per deployment; the still-active guard inside ForceClose makes a duplicate
// pass harmless, but nothing here prevents two loops from racing.
type AutoCloser struct {
	mgr      *Manager
	interval time.Duration
}

// NewAutoCloser creates the background closer with the given tick interval.
func NewAutoCloser(mgr *Manager, interval time.Duration) *AutoCloser {
	return &AutoCloser{mgr: mgr, interval: interval}
}

// Run executes close passes until ctx is cancelled. Each tick is isolated:
// a failing pass is logged and the loop carries on.
func (a *AutoCloser) Run(ctx context.Context) {
	log.Println("Starting session auto-close loop...")

	a.tick(ctx)

	timer := time.NewTimer(a.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Session auto-close loop shutting down.")
			return
		case <-timer.C:
			a.tick(ctx)
			timer.Reset(a.interval)
		}
	}
}

func (a *AutoCloser) tick(ctx context.Context) {
	closed, err := a.CloseDue(ctx)
	if err != nil {
		log.Printf("Auto-close pass failed: %v", err)
	}
	if closed > 0 {
		log.Printf("Auto-closed %d overdue session(s)", closed)
	}
}

// CloseDue runs a single pass: find every active session past its deadline
// and force-close each one independently. A failure on one row (including a
// missing machine record) is logged and does not stop the scan.
func (a *AutoCloser) CloseDue(ctx context.Context) (int, error) {
	now := a.mgr.now()

	var due []model.Session
	err := a.mgr.db.WithContext(ctx).
		Where("ended_at IS NULL AND auto_end_at IS NOT NULL AND auto_end_at <= ?", now).
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, sess := range due {
		if _, err := a.mgr.ForceClose(ctx, sess.ID); err != nil {
			// A session closed by a concurrent Stop, or one pointing at a
			// vanished machine, is skipped rather than aborting the pass.
			if apperr.KindOf(err) == apperr.KindUnknown {
				log.Printf("Auto-close of session %d failed: %v", sess.ID, err)
			}
			continue
		}
		closed++
	}
	return closed, nil
}
