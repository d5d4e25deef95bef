package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/db"
	"clubpoint-backend/internal/model"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	testDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(testDB))
	return testDB
}

// 10:00 on an arbitrary day, inside the daytime discount band.
var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	gdb := newTestDB(t)
	mgr := NewManager(gdb)
	mgr.SetClock(func() time.Time { return testNow })
	return mgr, gdb
}

func seedMachine(t *testing.T, gdb *gorm.DB, id int64, zone model.Zone, status model.MachineStatus) {
	t.Helper()
	m := model.Machine{ID: id, Name: fmt.Sprintf("PC-%d", id), Zone: zone, Status: status, Watt: 450}
	require.NoError(t, gdb.Create(&m).Error)
}

func machineStatus(t *testing.T, gdb *gorm.DB, id int64) model.MachineStatus {
	t.Helper()
	var m model.Machine
	require.NoError(t, gdb.First(&m, id).Error)
	return m.Status
}

func TestStart(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 2)
	require.NoError(t, err)

	assert.Equal(t, int64(1), sess.UserID)
	assert.Equal(t, int64(5), sess.MachineID)
	assert.Equal(t, 120, sess.PaidMinutes)
	assert.True(t, sess.Active())
	require.NotNil(t, sess.AutoEndAt)
	assert.Equal(t, testNow.Add(2*time.Hour), sess.AutoEndAt.UTC())
	assert.Equal(t, model.MachineBusy, machineStatus(t, gdb, 5))
}

func TestStart_Conflicts(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)
	seedMachine(t, gdb, 6, model.ZoneStandard, model.MachineAvailable)
	seedMachine(t, gdb, 7, model.ZoneVIP, model.MachineOffline)

	_, err := mgr.Start(context.Background(), 1, 5, 2)
	require.NoError(t, err)

	t.Run("same user on another machine", func(t *testing.T) {
		_, err := mgr.Start(context.Background(), 1, 6, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		// The failed attempt must leave the machine untouched.
		assert.Equal(t, model.MachineAvailable, machineStatus(t, gdb, 6))
	})

	t.Run("same machine by another user", func(t *testing.T) {
		_, err := mgr.Start(context.Background(), 2, 5, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	})

	t.Run("offline machine", func(t *testing.T) {
		_, err := mgr.Start(context.Background(), 3, 7, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, model.MachineOffline, machineStatus(t, gdb, 7))
	})

	t.Run("missing machine", func(t *testing.T) {
		_, err := mgr.Start(context.Background(), 3, 99, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
}

func TestExtend(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 2)
	require.NoError(t, err)
	originalDeadline := *sess.AutoEndAt

	extended, err := mgr.Extend(context.Background(), sess.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 300, extended.PaidMinutes)
	assert.Equal(t, originalDeadline.Add(3*time.Hour), extended.AutoEndAt.UTC())
	// Extension never touches the machine.
	assert.Equal(t, model.MachineBusy, machineStatus(t, gdb, 5))

	t.Run("missing session", func(t *testing.T) {
		_, err := mgr.Extend(context.Background(), 404, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("closed session", func(t *testing.T) {
		_, err := mgr.Stop(context.Background(), sess.ID)
		require.NoError(t, err)
		_, err = mgr.Extend(context.Background(), sess.ID, 1)
		require.Error(t, err)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})
}

func TestExtendActiveForUser_NoActiveSession(t *testing.T) {
	mgr, _ := newTestManager(t)

	sess, err := mgr.ExtendActiveForUser(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStop_EarlyStopBillsFullPackage(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 4)
	require.NoError(t, err)

	// Stop after one hour of a four-hour package.
	stopAt := testNow.Add(1 * time.Hour)
	mgr.SetClock(func() time.Time { return stopAt })

	closed, err := mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)

	require.NotNil(t, closed.EndedAt)
	assert.Equal(t, stopAt, closed.EndedAt.UTC())
	require.NotNil(t, closed.BilledMinutes)
	assert.Equal(t, 240, *closed.BilledMinutes)
	// 240 min STANDARD inside 10:00-11:00: 360.00 base, 10% package discount.
	assert.True(t, closed.Amount.Equal(decimal.RequireFromString("324")),
		"amount %s", closed.Amount)
	assert.Equal(t, model.MachineAvailable, machineStatus(t, gdb, 5))
}

func TestStop_OverstayPricedUpToDeadline(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 2)
	require.NoError(t, err)

	// Stop 50 minutes past the paid deadline.
	stopAt := testNow.Add(2*time.Hour + 50*time.Minute)
	mgr.SetClock(func() time.Time { return stopAt })

	closed, err := mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)

	// Ended when the stop happened, but billed and priced only up to the
	// paid limit: 120 min STANDARD, window 10:00-12:00, no discount under 3h.
	assert.Equal(t, stopAt, closed.EndedAt.UTC())
	assert.Equal(t, 120, *closed.BilledMinutes)
	assert.True(t, closed.Amount.Equal(decimal.RequireFromString("180")),
		"amount %s", closed.Amount)
}

func TestStop_AlreadyClosed(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)

	_, err = mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)

	_, err = mgr.Stop(context.Background(), sess.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestForceClose(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZonePremium, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 2)
	require.NoError(t, err)
	deadline := *sess.AutoEndAt

	mgr.SetClock(func() time.Time { return deadline.Add(30 * time.Second) })

	closed, err := mgr.ForceClose(context.Background(), sess.ID)
	require.NoError(t, err)

	// Closed at the paid deadline, not at the tick time.
	assert.True(t, deadline.Equal(*closed.EndedAt), "ended at %s, want %s", closed.EndedAt, deadline)
	assert.Equal(t, 120, *closed.BilledMinutes)
	// 120 min PREMIUM (1.92/min), 10:00-12:00, under 3h: 230.40.
	assert.True(t, closed.Amount.Equal(decimal.RequireFromString("230.40")),
		"amount %s", closed.Amount)
	assert.Equal(t, model.MachineAvailable, machineStatus(t, gdb, 5))

	// A cash settlement payment is created for the session.
	var payments []model.Payment
	require.NoError(t, gdb.Where("session_id = ?", sess.ID).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, model.MethodCash, payments[0].Method)
	assert.Equal(t, model.PaymentSucceeded, payments[0].Status)
	assert.Equal(t, 2, payments[0].Hours)
	assert.True(t, payments[0].Amount.Equal(closed.Amount))
}

func TestForceClose_IdempotentWithStop(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)
	mgr.SetClock(func() time.Time { return testNow.Add(61 * time.Minute) })

	_, err = mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)

	// The loser of the race must detect the closed session and no-op.
	_, err = mgr.ForceClose(context.Background(), sess.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	// Exactly one final amount recorded.
	var stored model.Session
	require.NoError(t, gdb.First(&stored, sess.ID).Error)
	assert.True(t, stored.Amount.Equal(decimal.RequireFromString("90")),
		"amount %s", stored.Amount)
}

func TestForceClose_DoesNotDuplicateSettlement(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)

	// A payment already references the session.
	prepaid := model.Payment{
		UserID:    1,
		SessionID: &sess.ID,
		Method:    model.MethodOnline,
		Status:    model.PaymentSucceeded,
		Hours:     1,
		Amount:    decimal.RequireFromString("90"),
	}
	require.NoError(t, gdb.Create(&prepaid).Error)

	mgr.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })
	_, err = mgr.ForceClose(context.Background(), sess.ID)
	require.NoError(t, err)

	var count int64
	require.NoError(t, gdb.Model(&model.Payment{}).Where("session_id = ?", sess.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestClose_OfflineMachineStaysOffline(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)

	// An operator takes the machine offline mid-session.
	require.NoError(t, gdb.Model(&model.Machine{}).Where("id = ?", int64(5)).
		Update("status", model.MachineOffline).Error)

	_, err = mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MachineOffline, machineStatus(t, gdb, 5))
}

func TestCloseDue(t *testing.T) {
	mgr, gdb := newTestManager(t)
	closer := NewAutoCloser(mgr, time.Second)

	seedMachine(t, gdb, 1, model.ZoneStandard, model.MachineAvailable)
	seedMachine(t, gdb, 2, model.ZoneStandard, model.MachineAvailable)
	seedMachine(t, gdb, 3, model.ZoneStandard, model.MachineAvailable)

	due1, err := mgr.Start(context.Background(), 10, 1, 1)
	require.NoError(t, err)
	due2, err := mgr.Start(context.Background(), 11, 2, 1)
	require.NoError(t, err)
	notDue, err := mgr.Start(context.Background(), 12, 3, 5)
	require.NoError(t, err)

	mgr.SetClock(func() time.Time { return testNow.Add(90 * time.Minute) })

	closed, err := closer.CloseDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	for _, id := range []int64{due1.ID, due2.ID} {
		var s model.Session
		require.NoError(t, gdb.First(&s, id).Error)
		assert.False(t, s.Active(), "session %d should be closed", id)
	}
	var still model.Session
	require.NoError(t, gdb.First(&still, notDue.ID).Error)
	assert.True(t, still.Active())

	// A second pass finds nothing left to do.
	closed, err = closer.CloseDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestCloseDue_SkipsRowWithMissingMachine(t *testing.T) {
	mgr, gdb := newTestManager(t)
	closer := NewAutoCloser(mgr, time.Second)

	seedMachine(t, gdb, 1, model.ZoneStandard, model.MachineAvailable)
	ok, err := mgr.Start(context.Background(), 10, 1, 1)
	require.NoError(t, err)

	// An orphaned session referencing a machine that no longer exists.
	deadline := testNow.Add(30 * time.Minute)
	orphan := model.Session{
		UserID:      11,
		MachineID:   999,
		StartedAt:   testNow,
		PaidMinutes: 30,
		AutoEndAt:   &deadline,
	}
	require.NoError(t, gdb.Create(&orphan).Error)

	mgr.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })

	closed, err := closer.CloseDue(context.Background())
	require.NoError(t, err)
	// The orphan is skipped, the healthy session still gets closed.
	assert.Equal(t, 1, closed)

	var healthy model.Session
	require.NoError(t, gdb.First(&healthy, ok.ID).Error)
	assert.False(t, healthy.Active())

	var skipped model.Session
	require.NoError(t, gdb.First(&skipped, orphan.ID).Error)
	assert.True(t, skipped.Active())
}

func TestActiveSessionUniquenessEnforcedBySchema(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)
	seedMachine(t, gdb, 6, model.ZoneStandard, model.MachineAvailable)

	_, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)

	// A second active row for the same machine is rejected below the
	// manager, so a racing transaction cannot double-book it.
	deadline := testNow.Add(time.Hour)
	dup := model.Session{UserID: 2, MachineID: 5, StartedAt: testNow, PaidMinutes: 60, AutoEndAt: &deadline}
	assert.ErrorIs(t, gdb.Create(&dup).Error, gorm.ErrDuplicatedKey)

	// Likewise for a second active row for the same user.
	dup = model.Session{UserID: 1, MachineID: 6, StartedAt: testNow, PaidMinutes: 60, AutoEndAt: &deadline}
	assert.ErrorIs(t, gdb.Create(&dup).Error, gorm.ErrDuplicatedKey)

	// Closed rows do not collide with active ones.
	ended := testNow.Add(30 * time.Minute)
	closed := model.Session{UserID: 2, MachineID: 5, StartedAt: testNow, PaidMinutes: 60, EndedAt: &ended}
	require.NoError(t, gdb.Create(&closed).Error)

	var active int64
	require.NoError(t, gdb.Model(&model.Session{}).
		Where("machine_id = ? AND ended_at IS NULL", 5).
		Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestStart_GuardedFlipRefusesNonAvailableMachine(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	// Flip the machine out from under the manager the way a concurrent
	// committed Start would.
	require.NoError(t, gdb.Model(&model.Machine{}).
		Where("id = ?", 5).Update("status", model.MachineBusy).Error)

	_, err := mgr.Start(context.Background(), 1, 5, 1)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Equal(t, model.MachineBusy, machineStatus(t, gdb, 5))
}

func TestRun_ClosesOverdueSessionsAndStopsOnCancel(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)
	mgr.SetClock(func() time.Time { return testNow.Add(2 * time.Hour) })

	closer := NewAutoCloser(mgr, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		closer.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		var got model.Session
		if err := gdb.First(&got, sess.ID).Error; err != nil {
			return false
		}
		return !got.Active()
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("auto-close loop did not stop after cancellation")
	}
}

func TestClose_NotifiesMachineFree(t *testing.T) {
	mgr, gdb := newTestManager(t)
	seedMachine(t, gdb, 5, model.ZoneStandard, model.MachineAvailable)

	var notified []int64
	mgr.SetAvailabilityNotifier(func(machineID int64) { notified = append(notified, machineID) })

	sess, err := mgr.Start(context.Background(), 1, 5, 1)
	require.NoError(t, err)
	_, err = mgr.Stop(context.Background(), sess.ID)
	require.NoError(t, err)

	assert.Equal(t, []int64{5}, notified)
}
