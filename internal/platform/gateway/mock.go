package gateway

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/pkg/tool"
)

// mockGateway simulates the provider for development. Charges succeed
// unless the card token carries a "declined" marker, which keeps local
// failure paths reachable without a real provider.
type mockGateway struct {
	log *zap.SugaredLogger
}

func newMockGateway(log *zap.SugaredLogger) *mockGateway {
	return &mockGateway{log: log}
}

func (g *mockGateway) Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*ChargeResult, error) {
	if strings.Contains(cardToken, "declined") {
		g.log.Infow("mock charge declined", "amount", amount.String(), "currency", currency, "idempotency_key", idempotencyKey)
		return &ChargeResult{Success: false, FailureReason: "card declined"}, nil
	}

	txnID := "mock_txn_" + tool.GenerateUUIDV7()[:8]
	g.log.Infow("mock charge succeeded",
		"amount", amount.String(),
		"currency", currency,
		"card", maskCardToken(cardToken),
		"idempotency_key", idempotencyKey,
		"txn_id", txnID,
	)
	return &ChargeResult{
		Success:       true,
		ExternalTxnID: txnID,
		CardLast4:     "4242",
		CardBrand:     "Visa",
	}, nil
}

func (g *mockGateway) Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*RefundResult, error) {
	refundID := "mock_refund_" + tool.GenerateUUIDV7()[:8]
	g.log.Infow("mock refund succeeded", "amount", amount.String(), "txn_id", externalTxnID, "refund_id", refundID)
	return &RefundResult{Success: true, RefundID: refundID}, nil
}

// maskCardToken hides all but the last four characters for logs.
func maskCardToken(cardToken string) string {
	if len(cardToken) <= 4 {
		return "****"
	}
	return "****" + cardToken[len(cardToken)-4:]
}
