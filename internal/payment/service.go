// Package payment creates payments and reconciles provider callbacks
// against them. Settling an online payment is the one place outside the
// session package that triggers a session mutation, and it does so through
// the session manager's public extend path.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"clubpoint-backend/internal/apperr"
	"clubpoint-backend/internal/model"
	"clubpoint-backend/internal/pricing"
	"clubpoint-backend/internal/session"
)

// Service owns payment records and the webhook reconciliation protocol.
type Service struct {
	db       *gorm.DB
	provider Provider
	sessions *session.Manager
	now      func() time.Time
}

// NewService wires the payment service to its store, provider and the
// session manager used for post-settlement extension.
func NewService(db *gorm.DB, provider Provider, sessions *session.Manager) *Service {
	return &Service{
		db:       db,
		provider: provider,
		sessions: sessions,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the service's time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// packageAmount prices an hours package at the moment of sale. Packages are
// sold at the STANDARD tariff; the point-of-sale instant is both window
// endpoints, so a daytime sale of a 3h+ package carries the package discount.
func (s *Service) packageAmount(hours int) (decimal.Decimal, error) {
	at := s.now()
	return pricing.Total(model.ZoneStandard, hours*60, at, at)
}

// CreateCash records a front-desk cash sale for the target user. Cash is
// settled on the spot, so the payment is born succeeded.
func (s *Service) CreateCash(ctx context.Context, targetUserID int64, hours int, note string) (*model.Payment, error) {
	if hours < 1 {
		return nil, apperr.New(apperr.KindInvalidState, "hours must be at least 1")
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, targetUserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Newf(apperr.KindNotFound, "user %d not found", targetUserID)
		}
		return nil, err
	}

	amount, err := s.packageAmount(hours)
	if err != nil {
		return nil, err
	}

	p := model.Payment{
		UserID: targetUserID,
		Method: model.MethodCash,
		Status: model.PaymentSucceeded,
		Hours:  hours,
		Amount: amount,
		Note:   note,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to create cash payment: %w", err)
	}
	return &p, nil
}

// CreateOnline opens an online payment for the user and initiates it with
// the provider. The record is created first so a provider reference is never
// held without a row to attach it to, then moves created -> pending.
func (s *Service) CreateOnline(ctx context.Context, userID int64, hours int) (*model.Payment, string, error) {
	if hours < 1 {
		return nil, "", apperr.New(apperr.KindInvalidState, "hours must be at least 1")
	}

	amount, err := s.packageAmount(hours)
	if err != nil {
		return nil, "", err
	}

	p := model.Payment{
		UserID: userID,
		Method: model.MethodOnline,
		Status: model.PaymentCreated,
		Hours:  hours,
		Amount: amount,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create online payment: %w", err)
	}

	checkout, err := s.provider.CreatePayment(ctx, p.Amount)
	if err != nil {
		return nil, "", fmt.Errorf("provider initiation failed: %w", err)
	}

	p.ProviderPaymentID = checkout.ProviderPaymentID
	p.Status = model.PaymentPending
	if err := s.db.WithContext(ctx).Model(&model.Payment{}).Where("id = ?", p.ID).Updates(map[string]any{
		"provider_payment_id": p.ProviderPaymentID,
		"status":              p.Status,
	}).Error; err != nil {
		return nil, "", err
	}

	return &p, checkout.PaymentURL, nil
}

// ApplyWebhook applies a provider status callback to the payment. Delivery
// is at-least-once: a payment already in a terminal state is returned
// unchanged. When the update lands an online payment on succeeded, the
// payer's active session is extended by the purchased hours inside the same
// transaction; a payer with no active session is a no-op.
func (s *Service) ApplyWebhook(ctx context.Context, paymentID int64, status model.PaymentStatus, providerRef string) (*model.Payment, error) {
	if !status.Valid() {
		return nil, apperr.Newf(apperr.KindInvalidState, "unknown payment status %q", status)
	}

	var p model.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.KindNotFound, "payment %d not found", paymentID)
			}
			return err
		}

		// Terminal states never regress; a redelivered callback no-ops.
		if p.Status.Terminal() {
			return nil
		}

		p.Status = status
		p.ProviderPaymentID = providerRef
		if err := tx.Model(&model.Payment{}).Where("id = ?", p.ID).Updates(map[string]any{
			"status":              p.Status,
			"provider_payment_id": p.ProviderPaymentID,
		}).Error; err != nil {
			return err
		}

		if p.Status == model.PaymentSucceeded && p.Method == model.MethodOnline {
			if _, err := s.sessions.ExtendActiveInTx(tx, p.UserID, p.Hours); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns payments, newest first, scoped to one user when userID is
// non-zero.
func (s *Service) List(ctx context.Context, userID int64) ([]model.Payment, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var payments []model.Payment
	err := q.Find(&payments).Error
	return payments, err
}
