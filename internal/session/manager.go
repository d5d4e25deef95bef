// Package session owns the session state machine: starting, extending,
// stopping and force-closing billed machine time. It is the only writer of
// machine availability during session transitions.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
	"clubpoint-backend/internal/pricing"
)

// Manager executes session transitions as single transactions over the
// shared store. Correctness does not rely on in-process locks: every state
// flip is a guarded UPDATE whose WHERE clause re-checks the precondition,
// and the schema carries partial unique indexes allowing at most one active
// session per user and per machine. Under READ COMMITTED, a transaction
// that loses a race either affects zero rows or hits a duplicate key, and
// both surface as a Conflict/InvalidState instead of a double booking.
type Manager struct {
	db  *gorm.DB
	now func() time.Time

	// notifyFree, when set, is called after a machine returns to the
	// available state. Best-effort; runs outside the closing transaction.
	notifyFree func(machineID int64)
}

// NewManager creates a session manager on top of the given database.
func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the manager's time source. Test hook.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// SetAvailabilityNotifier registers a callback fired whenever a session
// close frees a machine.
func (m *Manager) SetAvailabilityNotifier(fn func(machineID int64)) { m.notifyFree = fn }

// Start opens a session for the user on the machine with a purchased package
// of paidHours. The availability check, the busy flip and the session insert
// run in one transaction so concurrent starts cannot double-book.
func (m *Manager) Start(ctx context.Context, userID, machineID int64, paidHours int) (*model.Session, error) {
	if paidHours < 1 {
		return nil, apperr.New(apperr.KindInvalidState, "paid hours must be at least 1")
	}

	var sess model.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var machine model.Machine
		if err := tx.First(&machine, machineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "machine %d not found", machineID)
			}
			return err
		}
		if machine.Status != model.MachineAvailable {
			return apperr.Newf(apperr.KindConflict, "machine %d is not available", machineID)
		}

		var active int64
		if err := tx.Model(&model.Session{}).
			Where("user_id = ? AND ended_at IS NULL", userID).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperr.New(apperr.KindConflict, "user already has an active session")
		}

		if err := tx.Model(&model.Session{}).
			Where("machine_id = ? AND ended_at IS NULL", machineID).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return apperr.Newf(apperr.KindConflict, "machine %d already has an active session", machineID)
		}

		// Guarded flip: a concurrent Start that committed first already
		// moved the machine off available, so this affects zero rows.
		res := tx.Model(&model.Machine{}).
			Where("id = ? AND status = ?", machineID, model.MachineAvailable).
			Update("status", model.MachineBusy)
		if res.Error != nil {
			return fmt.Errorf("failed to mark machine %d busy: %w", machineID, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Newf(apperr.KindConflict, "machine %d is not available", machineID)
		}

		now := m.now()
		paidMinutes := paidHours * 60
		autoEnd := now.Add(time.Duration(paidMinutes) * time.Minute)
		sess = model.Session{
			UserID:      userID,
			MachineID:   machineID,
			StartedAt:   now,
			PaidMinutes: paidMinutes,
			AutoEndAt:   &autoEnd,
		}
		if err := tx.Create(&sess).Error; err != nil {
			// Backstop for the racing insert the count checks above could
			// not see: the partial unique indexes reject the second active
			// row for this user or machine.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.KindConflict, "user or machine already has an active session")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Extend adds addHours of paid time to an active session. Machine state and
// pricing are untouched; only the package and the auto-end deadline grow.
func (m *Manager) Extend(ctx context.Context, sessionID int64, addHours int) (*model.Session, error) {
	if addHours < 1 {
		return nil, apperr.New(apperr.KindInvalidState, "extension hours must be at least 1")
	}

	var sess model.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sess, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "session %d not found", sessionID)
			}
			return err
		}
		return extendTx(tx, &sess, addHours)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ExtendActiveForUser extends the user's active session, if any. A user with
// no running session is a silent no-op (a pre-purchase top-up simply has no
// session to extend) and returns (nil, nil).
func (m *Manager) ExtendActiveForUser(ctx context.Context, userID int64, addHours int) (*model.Session, error) {
	var sess *model.Session
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sess, err = m.ExtendActiveInTx(tx, userID, addHours)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ExtendActiveInTx is ExtendActiveForUser running inside a caller-owned
// transaction. Payment reconciliation uses it so a settlement and the
// extension it funds commit together.
func (m *Manager) ExtendActiveInTx(tx *gorm.DB, userID int64, addHours int) (*model.Session, error) {
	var sess model.Session
	err := tx.Where("user_id = ? AND ended_at IS NULL", userID).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := extendTx(tx, &sess, addHours); err != nil {
		return nil, err
	}
	return &sess, nil
}

func extendTx(tx *gorm.DB, sess *model.Session, addHours int) error {
	if !sess.Active() {
		return apperr.Newf(apperr.KindInvalidState, "session %d is already closed", sess.ID)
	}
	if sess.AutoEndAt == nil {
		// Unreachable when the session came through Start, which always
		// sets the deadline.
		return apperr.Newf(apperr.KindInvalidState, "session %d has no auto-end deadline", sess.ID)
	}

	addMinutes := addHours * 60
	newDeadline := sess.AutoEndAt.Add(time.Duration(addMinutes) * time.Minute)
	sess.PaidMinutes += addMinutes
	sess.AutoEndAt = &newDeadline

	return tx.Model(&model.Session{}).Where("id = ?", sess.ID).Updates(map[string]any{
		"paid_minutes": sess.PaidMinutes,
		"auto_end_at":  sess.AutoEndAt,
	}).Error
}

// Stop closes the session at the current time. The purchaser is billed the
// full package regardless of an early stop, and the pricing window is capped
// at the paid deadline so overstays are not charged past it.
func (m *Manager) Stop(ctx context.Context, sessionID int64) (*model.Session, error) {
	now := m.now()
	return m.close(ctx, sessionID, func(sess *model.Session) (endAt, priceEnd time.Time) {
		priceEnd = now
		if sess.AutoEndAt != nil && sess.AutoEndAt.Before(now) {
			priceEnd = *sess.AutoEndAt
		}
		return now, priceEnd
	}, false)
}

// ForceClose closes an overdue session at its paid deadline. Invoked by the
// auto-close loop, which only selects sessions whose deadline has passed.
// If the session has no payment row yet, a succeeded cash settlement is
// created in the same transaction so every closed session is accounted for.
func (m *Manager) ForceClose(ctx context.Context, sessionID int64) (*model.Session, error) {
	return m.close(ctx, sessionID, func(sess *model.Session) (endAt, priceEnd time.Time) {
		return *sess.AutoEndAt, *sess.AutoEndAt
	}, true)
}

// close performs the shared closing transaction: re-check the session is
// still active (a concurrent Stop/ForceClose may have won), fix billed
// minutes and amount, free the machine.
func (m *Manager) close(ctx context.Context, sessionID int64, window func(*model.Session) (time.Time, time.Time), settle bool) (*model.Session, error) {
	var sess model.Session
	var freedMachine int64

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&sess, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "session %d not found", sessionID)
			}
			return err
		}
		if !sess.Active() {
			return apperr.Newf(apperr.KindInvalidState, "session %d is already closed", sess.ID)
		}
		if sess.AutoEndAt == nil {
			return apperr.Newf(apperr.KindInvalidState, "session %d has no auto-end deadline", sess.ID)
		}

		var machine model.Machine
		if err := tx.First(&machine, sess.MachineID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "machine %d not found for session %d", sess.MachineID, sess.ID)
			}
			return err
		}

		endAt, priceEnd := window(&sess)

		billed := sess.PaidMinutes
		amount, err := pricing.Total(machine.Zone, billed, sess.StartedAt, priceEnd)
		if err != nil {
			return err
		}

		sess.EndedAt = &endAt
		sess.BilledMinutes = &billed
		sess.Amount = amount
		// Guarded write: if a concurrent Stop/ForceClose committed after the
		// read above, the ended_at predicate misses and this close loses,
		// keeping billing and settlement single-shot.
		res := tx.Model(&model.Session{}).
			Where("id = ? AND ended_at IS NULL", sess.ID).
			Updates(map[string]any{
				"ended_at":       sess.EndedAt,
				"billed_minutes": sess.BilledMinutes,
				"amount":         sess.Amount,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Newf(apperr.KindInvalidState, "session %d is already closed", sess.ID)
		}

		// Never auto-transition an offline machine: the guard only frees a
		// machine still marked busy.
		res = tx.Model(&model.Machine{}).
			Where("id = ? AND status = ?", machine.ID, model.MachineBusy).
			Update("status", model.MachineAvailable)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			freedMachine = machine.ID
		}

		if settle {
			return settleTx(tx, &sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if freedMachine != 0 && m.notifyFree != nil {
		m.notifyFree(freedMachine)
	}
	return &sess, nil
}

// settleTx records a succeeded cash payment for a force-closed session that
// has none, reconciling packages pre-paid through a bundled purchase.
func settleTx(tx *gorm.DB, sess *model.Session) error {
	var existing int64
	if err := tx.Model(&model.Payment{}).
		Where("session_id = ?", sess.ID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	settlement := model.Payment{
		UserID:    sess.UserID,
		SessionID: &sess.ID,
		Method:    model.MethodCash,
		Status:    model.PaymentSucceeded,
		Hours:     (sess.PaidMinutes + 59) / 60,
		Amount:    sess.Amount,
		Note:      "auto-close settlement",
	}
	return tx.Create(&settlement).Error
}

// Get returns a session by id.
func (m *Manager) Get(ctx context.Context, sessionID int64) (*model.Session, error) {
	var sess model.Session
	if err := m.db.WithContext(ctx).First(&sess, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "session %d not found", sessionID)
		}
		return nil, err
	}
	return &sess, nil
}

// ListForUser returns the user's sessions, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID int64) ([]model.Session, error) {
	var sessions []model.Session
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("started_at DESC").
		Find(&sessions).Error
	return sessions, err
}
