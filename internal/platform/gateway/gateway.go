package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChargeResult is the provider's answer to a charge attempt. A declined
// charge is a valid result (Success=false), not an error; errors are
// reserved for transport-level failures.
type ChargeResult struct {
	Success       bool
	ExternalTxnID string
	FailureReason string
	CardLast4     string
	CardBrand     string
}

// RefundResult is the provider's answer to a refund request.
type RefundResult struct {
	Success       bool
	RefundID      string
	FailureReason string
}

// PaymentGateway is the external charge/refund provider. Calls are
// synchronous with a bounded timeout; the provider deduplicates charges
// by idempotency key on its side as well.
type PaymentGateway interface {
	Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*ChargeResult, error)
	Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*RefundResult, error)
}
