package payment

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
	"clubpoint-backend/internal/session"
)

// 10:00 UTC, inside the daytime discount band.
var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *session.Manager, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))

	mgr := session.NewManager(gdb)
	mgr.SetClock(func() time.Time { return testNow })

	svc := NewService(gdb, &StubProvider{BaseURL: "https://pay.example.com"}, mgr)
	svc.SetClock(func() time.Time { return testNow })
	return svc, mgr, gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, id int64) {
	t.Helper()
	u := model.User{ID: id, Email: fmt.Sprintf("u%d@club.test", id), PasswordHash: "x", Role: model.RoleUser}
	require.NoError(t, gdb.Create(&u).Error)
}

func TestCreateCash(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 7)

	p, err := svc.CreateCash(context.Background(), 7, 2, "front desk")
	require.NoError(t, err)

	assert.Equal(t, model.MethodCash, p.Method)
	assert.Equal(t, model.PaymentSucceeded, p.Status)
	assert.Equal(t, 2, p.Hours)
	// 2h STANDARD package at a daytime instant, under the discount floor.
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("180")), "amount %s", p.Amount)
}

func TestCreateCash_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCash(context.Background(), 404, 1, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCreateOnline(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 7)

	p, url, err := svc.CreateOnline(context.Background(), 7, 5)
	require.NoError(t, err)

	assert.Equal(t, model.PaymentPending, p.Status)
	assert.NotEmpty(t, p.ProviderPaymentID)
	assert.Contains(t, url, p.ProviderPaymentID)
	// 5h STANDARD package sold at a daytime instant: 450.00 minus 15%.
	assert.True(t, p.Amount.Equal(decimal.RequireFromString("382.5")), "amount %s", p.Amount)

	var stored model.Payment
	require.NoError(t, gdb.First(&stored, p.ID).Error)
	assert.Equal(t, model.PaymentPending, stored.Status)
	assert.Equal(t, p.ProviderPaymentID, stored.ProviderPaymentID)
}

func TestApplyWebhook_SuccessExtendsActiveSession(t *testing.T) {
	svc, mgr, gdb := newTestService(t)
	seedUser(t, gdb, 7)
	require.NoError(t, gdb.Create(&model.Machine{ID: 1, Name: "PC-1", Zone: model.ZoneStandard, Status: model.MachineAvailable, Watt: 450}).Error)

	sess, err := mgr.Start(context.Background(), 7, 1, 1)
	require.NoError(t, err)

	p, _, err := svc.CreateOnline(context.Background(), 7, 2)
	require.NoError(t, err)

	applied, err := svc.ApplyWebhook(context.Background(), p.ID, model.PaymentSucceeded, "prov-123")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSucceeded, applied.Status)
	assert.Equal(t, "prov-123", applied.ProviderPaymentID)

	var stored model.Session
	require.NoError(t, gdb.First(&stored, sess.ID).Error)
	assert.Equal(t, 180, stored.PaidMinutes)
	assert.True(t, stored.AutoEndAt.UTC().Equal(testNow.Add(3*time.Hour)),
		"deadline %s", stored.AutoEndAt)
}

func TestApplyWebhook_RedeliveryIsNoOp(t *testing.T) {
	svc, mgr, gdb := newTestService(t)
	seedUser(t, gdb, 7)
	require.NoError(t, gdb.Create(&model.Machine{ID: 1, Name: "PC-1", Zone: model.ZoneStandard, Status: model.MachineAvailable, Watt: 450}).Error)

	sess, err := mgr.Start(context.Background(), 7, 1, 1)
	require.NoError(t, err)

	p, _, err := svc.CreateOnline(context.Background(), 7, 2)
	require.NoError(t, err)

	_, err = svc.ApplyWebhook(context.Background(), p.ID, model.PaymentSucceeded, "prov-123")
	require.NoError(t, err)

	// The provider redelivers the same callback.
	again, err := svc.ApplyWebhook(context.Background(), p.ID, model.PaymentSucceeded, "prov-456")
	require.NoError(t, err)
	// No mutation: the original provider reference is kept.
	assert.Equal(t, "prov-123", again.ProviderPaymentID)

	// The paid time grew exactly once.
	var stored model.Session
	require.NoError(t, gdb.First(&stored, sess.ID).Error)
	assert.Equal(t, 180, stored.PaidMinutes)
}

func TestApplyWebhook_SuccessWithoutActiveSession(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 7)

	p, _, err := svc.CreateOnline(context.Background(), 7, 3)
	require.NoError(t, err)

	// A pre-purchase top-up with no running session settles fine.
	applied, err := svc.ApplyWebhook(context.Background(), p.ID, model.PaymentSucceeded, "prov-789")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentSucceeded, applied.Status)
}

func TestApplyWebhook_FailedIsTerminal(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 7)

	p, _, err := svc.CreateOnline(context.Background(), 7, 1)
	require.NoError(t, err)

	_, err = svc.ApplyWebhook(context.Background(), p.ID, model.PaymentFailed, "prov-000")
	require.NoError(t, err)

	// A later success callback cannot resurrect a failed payment.
	again, err := svc.ApplyWebhook(context.Background(), p.ID, model.PaymentSucceeded, "prov-001")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentFailed, again.Status)
}

func TestApplyWebhook_Errors(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 7)

	t.Run("unknown payment", func(t *testing.T) {
		_, err := svc.ApplyWebhook(context.Background(), 404, model.PaymentSucceeded, "x")
		require.Error(t, err)
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("unknown status", func(t *testing.T) {
		p, _, err := svc.CreateOnline(context.Background(), 7, 1)
		require.NoError(t, err)
		_, err = svc.ApplyWebhook(context.Background(), p.ID, model.PaymentStatus("refunded"), "x")
		require.Error(t, err)
		assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
	})
}

func TestList_ScopedByUser(t *testing.T) {
	svc, _, gdb := newTestService(t)
	seedUser(t, gdb, 1)
	seedUser(t, gdb, 2)

	_, err := svc.CreateCash(context.Background(), 1, 1, "")
	require.NoError(t, err)
	_, err = svc.CreateCash(context.Background(), 2, 2, "")
	require.NoError(t, err)

	own, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, int64(1), own[0].UserID)

	all, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
