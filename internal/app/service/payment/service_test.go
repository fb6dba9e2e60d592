package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/platform/gateway"
	"github.com/transitops/fareflow/internal/repository/repotest"
	cfgpkg "github.com/transitops/fareflow/pkg/config"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

type fakeGateway struct {
	chargeCalls int
	refundCalls int
	chargeRes   *gateway.ChargeResult
	chargeErr   error
	refundRes   *gateway.RefundResult
	refundErr   error
}

func (g *fakeGateway) Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*gateway.ChargeResult, error) {
	g.chargeCalls++
	return g.chargeRes, g.chargeErr
}

func (g *fakeGateway) Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	g.refundCalls++
	return g.refundRes, g.refundErr
}

type capturePublisher struct {
	keys []string
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func newTestOrchestrator(store *repotest.Store, gw gateway.PaymentGateway) (*Orchestrator, *capturePublisher) {
	pub := &capturePublisher{}
	cfg := &cfgpkg.Config{Gateway: cfgpkg.GatewayConfig{TimeoutSeconds: 2}}
	return NewOrchestrator(store, gw, pub, cfg, zap.NewNop().Sugar()), pub
}

func seedSubscription(store *repotest.Store) *models.Subscription {
	sub := &models.Subscription{
		ID:         tool.GenerateUUIDV7(),
		UserID:     tool.GenerateUUIDV7(),
		PlanID:     tool.GenerateUUIDV7(),
		Status:     types.SubscriptionStatusPending,
		AmountPaid: decimal.Zero,
	}
	store.SeedSubscription(sub)
	return sub
}

func TestProcess_Success_PersistsPaymentAndIncrementsAmountPaid(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	gw := &fakeGateway{chargeRes: &gateway.ChargeResult{
		Success: true, ExternalTxnID: "txn_1", CardLast4: "4242", CardBrand: "Visa",
	}}
	orc, pub := newTestOrchestrator(store, gw)

	res, err := orc.Process(context.Background(), &ProcessRequest{
		SubscriptionID: sub.ID,
		Amount:         decimal.RequireFromString("49.90"),
		Currency:       "EUR",
		CardToken:      "tok_visa",
		IdempotencyKey: "key-1",
		PaymentType:    types.PaymentTypeInitial,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, types.PaymentStatusSucceeded, res.Status)
	require.Equal(t, "txn_1", res.ExternalTxnID)
	require.False(t, res.Replayed)
	require.Equal(t, 1, gw.chargeCalls)

	stored, err := store.Subscriptions().GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.Equal(decimal.RequireFromString("49.90")))

	p, err := orc.GetByID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.Equal(t, "key-1", p.IdempotencyKey)
	require.Contains(t, pub.keys, "payment.processed")
}

func TestProcess_Declined_PersistsFailedRowWithoutTouchingAmountPaid(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	gw := &fakeGateway{chargeRes: &gateway.ChargeResult{Success: false, FailureReason: "card declined"}}
	orc, _ := newTestOrchestrator(store, gw)

	res, err := orc.Process(context.Background(), &ProcessRequest{
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(10),
		Currency:       "EUR",
		IdempotencyKey: "key-declined",
	})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, types.PaymentStatusFailed, res.Status)
	require.Equal(t, "card declined", res.FailureReason)

	stored, err := store.Subscriptions().GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.IsZero())

	p, err := orc.GetByID(context.Background(), res.PaymentID)
	require.NoError(t, err)
	require.NotNil(t, p.FailureReason)
	require.Nil(t, p.ExternalTxnID)
}

func TestProcess_GatewayError_NormalizedToFailedOutcome(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	gw := &fakeGateway{chargeErr: errors.New("connection refused")}
	orc, _ := newTestOrchestrator(store, gw)

	res, err := orc.Process(context.Background(), &ProcessRequest{
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(10),
		Currency:       "EUR",
		IdempotencyKey: "key-transport",
	})
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.FailureReason, "gateway error")
	require.Equal(t, 1, store.PaymentCount())
}

func TestProcess_ReplayedKey_ReturnsStoredOutcomeWithoutGatewayCall(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	gw := &fakeGateway{chargeRes: &gateway.ChargeResult{Success: true, ExternalTxnID: "txn_once"}}
	orc, _ := newTestOrchestrator(store, gw)

	req := &ProcessRequest{
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(25),
		Currency:       "EUR",
		IdempotencyKey: "key-replay",
	}
	first, err := orc.Process(context.Background(), req)
	require.NoError(t, err)

	second, err := orc.Process(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.PaymentID, second.PaymentID)
	require.Equal(t, first.ExternalTxnID, second.ExternalTxnID)
	require.Equal(t, 1, gw.chargeCalls)
	require.Equal(t, 1, store.PaymentCount())

	stored, err := store.Subscriptions().GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, stored.AmountPaid.Equal(decimal.NewFromInt(25)))
}

func TestProcess_ReplayedKey_FailedOutcomeIsAlsoReplayed(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	gw := &fakeGateway{chargeRes: &gateway.ChargeResult{Success: false, FailureReason: "card declined"}}
	orc, _ := newTestOrchestrator(store, gw)

	req := &ProcessRequest{
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(25),
		Currency:       "EUR",
		IdempotencyKey: "key-replay-failed",
	}
	_, err := orc.Process(context.Background(), req)
	require.NoError(t, err)

	gw.chargeRes = &gateway.ChargeResult{Success: true, ExternalTxnID: "txn_late"}
	second, err := orc.Process(context.Background(), req)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.False(t, second.Success)
	require.Equal(t, "card declined", second.FailureReason)
	require.Equal(t, 1, gw.chargeCalls)
}

func TestProcess_UnknownSubscription(t *testing.T) {
	store := repotest.New()
	orc, _ := newTestOrchestrator(store, &fakeGateway{})

	_, err := orc.Process(context.Background(), &ProcessRequest{
		SubscriptionID: tool.GenerateUUIDV7(),
		Amount:         decimal.NewFromInt(5),
		Currency:       "EUR",
		IdempotencyKey: "key-missing",
	})
	require.Error(t, err)
}

func TestProcess_Validation(t *testing.T) {
	store := repotest.New()
	orc, _ := newTestOrchestrator(store, &fakeGateway{})

	_, err := orc.Process(context.Background(), &ProcessRequest{
		SubscriptionID: "sub", IdempotencyKey: "k", Amount: decimal.Zero, Currency: "EUR",
	})
	require.Error(t, err)

	_, err = orc.Process(context.Background(), &ProcessRequest{
		Amount: decimal.NewFromInt(1), Currency: "EUR",
	})
	require.Error(t, err)
}

func TestRefund_Success_MarksRefundedAndDecrementsAmountPaid(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	sub.AmountPaid = decimal.NewFromInt(30)
	p := &models.Payment{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(30),
		Currency:       "EUR",
		Status:         types.PaymentStatusSucceeded,
		PaymentType:    types.PaymentTypeInitial,
		ExternalTxnID:  lo.ToPtr("txn_refundable"),
		IdempotencyKey: "key-refund",
	}
	store.SeedPayment(p)

	gw := &fakeGateway{refundRes: &gateway.RefundResult{Success: true, RefundID: "re_1"}}
	orc, pub := newTestOrchestrator(store, gw)

	res, err := orc.Refund(context.Background(), p.ID, decimal.NewFromInt(30))
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusRefunded, res.Status)
	require.Equal(t, 1, gw.refundCalls)

	stored, err := store.Payments().GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, types.PaymentStatusRefunded, stored.Status)

	after, err := store.Subscriptions().GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.True(t, after.AmountPaid.IsZero())
	require.Contains(t, pub.keys, "payment.processed")
}

func TestRefund_RejectsNonRefundablePayment(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	p := &models.Payment{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(30),
		Currency:       "EUR",
		Status:         types.PaymentStatusFailed,
		IdempotencyKey: "key-failed",
	}
	store.SeedPayment(p)

	orc, _ := newTestOrchestrator(store, &fakeGateway{})
	_, err := orc.Refund(context.Background(), p.ID, decimal.NewFromInt(30))
	require.ErrorIs(t, err, ErrPaymentFailed)
}

func TestRefund_UnknownPayment(t *testing.T) {
	store := repotest.New()
	orc, _ := newTestOrchestrator(store, &fakeGateway{})
	_, err := orc.Refund(context.Background(), tool.GenerateUUIDV7(), decimal.NewFromInt(1))
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestRefund_AmountExceedingCharge(t *testing.T) {
	store := repotest.New()
	sub := seedSubscription(store)
	p := &models.Payment{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		Amount:         decimal.NewFromInt(10),
		Currency:       "EUR",
		Status:         types.PaymentStatusSucceeded,
		ExternalTxnID:  lo.ToPtr("txn_x"),
		IdempotencyKey: "key-over",
	}
	store.SeedPayment(p)

	orc, _ := newTestOrchestrator(store, &fakeGateway{})
	_, err := orc.Refund(context.Background(), p.ID, decimal.NewFromInt(11))
	require.ErrorIs(t, err, ErrPaymentFailed)
}
