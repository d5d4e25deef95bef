package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Checkout is what the provider hands back when a payment is initiated.
type Checkout struct {
	ProviderPaymentID string
	PaymentURL        string
}

// Provider initiates payments with the external processor. The webhook it
// later delivers is consumed by Service.ApplyWebhook.
type Provider interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal) (Checkout, error)
}

// StubProvider fakes the processor: it mints a reference locally and points
// the customer at a hosted checkout URL. Stands in until a real acquirer
// integration exists.
type StubProvider struct {
	BaseURL string
}

func (p *StubProvider) CreatePayment(_ context.Context, _ decimal.Decimal) (Checkout, error) {
	ref := uuid.NewString()
	return Checkout{
		ProviderPaymentID: ref,
		PaymentURL:        fmt.Sprintf("%s/pay/%s", p.BaseURL, ref),
	}, nil
}
