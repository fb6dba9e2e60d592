package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/app/service/history"
	"github.com/transitops/fareflow/internal/app/service/payment"
	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/platform/gateway"
	"github.com/transitops/fareflow/internal/repository/repotest"
	cfgpkg "github.com/transitops/fareflow/pkg/config"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

// scriptedGateway returns canned outcomes in order, repeating the last
// one once the script runs out.
type scriptedGateway struct {
	script      []*gateway.ChargeResult
	chargeCalls int
}

func (g *scriptedGateway) Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*gateway.ChargeResult, error) {
	i := g.chargeCalls
	g.chargeCalls++
	if i >= len(g.script) {
		i = len(g.script) - 1
	}
	return g.script[i], nil
}

func (g *scriptedGateway) Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{Success: true, RefundID: "re_test"}, nil
}

type capturePublisher struct {
	keys []string
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func approved() *gateway.ChargeResult {
	return &gateway.ChargeResult{Success: true, ExternalTxnID: "txn_ok", CardLast4: "4242", CardBrand: "Visa"}
}

func declined() *gateway.ChargeResult {
	return &gateway.ChargeResult{Success: false, FailureReason: "card declined"}
}

type fixture struct {
	store *repotest.Store
	gw    *scriptedGateway
	pub   *capturePublisher
	mgr   *Manager
	plan  *models.Plan
}

func newFixture(t *testing.T, script ...*gateway.ChargeResult) *fixture {
	t.Helper()
	store := repotest.New()
	gw := &scriptedGateway{script: script}
	pub := &capturePublisher{}
	log := zap.NewNop().Sugar()
	cfg := &cfgpkg.Config{Gateway: cfgpkg.GatewayConfig{TimeoutSeconds: 2}}
	orc := payment.NewOrchestrator(store, gw, pub, cfg, log)
	ledger := history.NewLedger(store, log)
	mgr := NewManager(store, orc, ledger, pub, log)

	plan := &models.Plan{
		ID:           tool.GenerateUUIDV7(),
		Code:         "monthly-zone-1",
		Name:         "Monthly Zone 1",
		Price:        decimal.RequireFromString("49.90"),
		Currency:     "EUR",
		DurationDays: 30,
		IsActive:     true,
	}
	store.SeedPlan(plan)
	return &fixture{store: store, gw: gw, pub: pub, mgr: mgr, plan: plan}
}

func (f *fixture) createReq() *CreateRequest {
	return &CreateRequest{
		UserID:    tool.GenerateUUIDV7(),
		PlanID:    f.plan.ID,
		CardToken: "tok_visa",
		AutoRenew: true,
	}
}

func TestCreate_SuccessfulPaymentActivates(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, sub.Status)
	require.True(t, sub.AmountPaid.Equal(f.plan.Price))
	require.Equal(t, "4242", sub.CardLast4)
	require.NotNil(t, sub.EndDate)

	wantEnd := tool.EndDate(sub.StartDate, f.plan.DurationDays)
	require.True(t, sub.EndDate.Equal(wantEnd))
	require.Contains(t, f.pub.keys, "subscription.created")

	entries := f.store.HistoryEntries()
	require.Len(t, entries, 1)
	require.Equal(t, types.EventSubscriptionCreated, entries[0].EventType)
	require.NotNil(t, entries[0].OldStatus)
	require.Equal(t, types.SubscriptionStatusPending, *entries[0].OldStatus)
	require.Equal(t, types.SubscriptionStatusActive, entries[0].NewStatus)
}

func TestCreate_DeclinedPaymentLeavesPendingWithoutError(t *testing.T) {
	f := newFixture(t, declined())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPending, sub.Status)
	require.True(t, sub.AmountPaid.IsZero())

	// The failed charge is recorded even though the subscription did
	// not activate.
	require.Equal(t, 1, f.store.PaymentCount())
	payments, err := f.store.Payments().ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Equal(t, types.PaymentStatusFailed, payments[0].Status)

	// No transition committed, so no audit entry and no event either.
	require.Empty(t, f.store.HistoryEntries())
	require.NotContains(t, f.pub.keys, "subscription.created")
}

func TestCreate_UnknownPlan(t *testing.T) {
	f := newFixture(t, approved())
	req := f.createReq()
	req.PlanID = tool.GenerateUUIDV7()

	_, err := f.mgr.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrPlanNotFound)
	require.Zero(t, f.gw.chargeCalls)
}

func TestCreate_InactivePlan(t *testing.T) {
	f := newFixture(t, approved())
	f.plan.IsActive = false

	_, err := f.mgr.Create(context.Background(), f.createReq())
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCreate_DuplicateActiveSubscription(t *testing.T) {
	f := newFixture(t, approved())
	req := f.createReq()

	_, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = f.mgr.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrDuplicateSubscription)
	require.Equal(t, 1, f.gw.chargeCalls)
}

func TestCreate_SecondSubscriptionAllowedAfterCancel(t *testing.T) {
	f := newFixture(t, approved())
	req := f.createReq()

	first, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)
	_, err = f.mgr.Cancel(context.Background(), first.ID, "rider_request", false)
	require.NoError(t, err)

	second, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, second.Status)
}

func TestRetryPayment_ActivatesAfterInitialDecline(t *testing.T) {
	f := newFixture(t, declined(), approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPending, sub.Status)

	retried, err := f.mgr.RetryPayment(context.Background(), sub.ID, "")
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, retried.Status)
	require.True(t, retried.AmountPaid.Equal(f.plan.Price))

	// One failed and one succeeded row, distinct idempotency keys.
	require.Equal(t, 2, f.store.PaymentCount())
	require.Equal(t, 2, f.gw.chargeCalls)

	entries := f.store.HistoryEntries()
	require.Equal(t, types.EventPaymentRetrySucceeded, entries[len(entries)-1].EventType)
}

func TestRetryPayment_FailureSurfacesErrorAndKeepsPending(t *testing.T) {
	f := newFixture(t, declined(), declined())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	_, err = f.mgr.RetryPayment(context.Background(), sub.ID, "")
	require.ErrorIs(t, err, payment.ErrPaymentFailed)

	after, err := f.mgr.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPending, after.Status)
	require.Equal(t, 2, f.store.PaymentCount())
}

func TestRetryPayment_RejectedForActiveSubscription(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	_, err = f.mgr.RetryPayment(context.Background(), sub.ID, "")
	require.ErrorIs(t, err, ErrInvalidSubscriptionState)
}

func TestRetryPayment_SameKeyReplaysWithoutSecondCharge(t *testing.T) {
	f := newFixture(t, declined(), declined())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	key := tool.GenerateUUIDV7()
	_, err = f.mgr.RetryPayment(context.Background(), sub.ID, key)
	require.ErrorIs(t, err, payment.ErrPaymentFailed)
	require.Equal(t, 2, f.gw.chargeCalls)

	// The resent retry resolves against the stored outcome.
	_, err = f.mgr.RetryPayment(context.Background(), sub.ID, key)
	require.ErrorIs(t, err, payment.ErrPaymentFailed)
	require.Equal(t, 2, f.gw.chargeCalls)
	require.Equal(t, 2, f.store.PaymentCount())
}

func TestRenew_ExtendsFromDayAfterCurrentEnd(t *testing.T) {
	f := newFixture(t, approved(), approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	oldEnd := *sub.EndDate

	renewed, err := f.mgr.Renew(context.Background(), sub.ID, "")
	require.NoError(t, err)

	wantEnd := oldEnd.AddDate(0, 0, 1+f.plan.DurationDays)
	require.True(t, renewed.EndDate.Equal(wantEnd))
	require.NotNil(t, renewed.NextBillingDate)
	require.True(t, renewed.NextBillingDate.Equal(wantEnd))
	require.True(t, renewed.AmountPaid.Equal(f.plan.Price.Mul(decimal.NewFromInt(2))))
	require.Contains(t, f.pub.keys, "subscription.renewed")

	payments, err := f.store.Payments().ListBySubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, types.PaymentTypeRenewal, payments[1].PaymentType)
}

func TestRenew_FailedPaymentLeavesDatesUntouched(t *testing.T) {
	f := newFixture(t, approved(), declined())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	oldEnd := *sub.EndDate

	_, err = f.mgr.Renew(context.Background(), sub.ID, "")
	require.ErrorIs(t, err, payment.ErrPaymentFailed)

	after, err := f.mgr.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, after.Status)
	require.True(t, after.EndDate.Equal(oldEnd))
	require.Equal(t, 2, f.store.PaymentCount())
}

func TestRenew_RejectedWhenNotActive(t *testing.T) {
	f := newFixture(t, declined())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	_, err = f.mgr.Renew(context.Background(), sub.ID, "")
	require.ErrorIs(t, err, ErrInvalidSubscriptionState)
}

func TestRenew_SetsNextBillingDateWithoutAutoRenew(t *testing.T) {
	f := newFixture(t, approved(), approved())
	req := f.createReq()
	req.AutoRenew = false

	sub, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, sub.NextBillingDate)

	renewed, err := f.mgr.Renew(context.Background(), sub.ID, "")
	require.NoError(t, err)
	require.NotNil(t, renewed.NextBillingDate)
	require.True(t, renewed.NextBillingDate.Equal(*renewed.EndDate))
}

func TestRenew_NewInstrumentReplacesStoredToken(t *testing.T) {
	f := newFixture(t, approved(), approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	renewed, err := f.mgr.Renew(context.Background(), sub.ID, "tok_mastercard")
	require.NoError(t, err)
	require.Equal(t, "tok_mastercard", renewed.CardToken)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	paused, err := f.mgr.Pause(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusPaused, paused.Status)

	// Pausing twice is rejected.
	_, err = f.mgr.Pause(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrInvalidSubscriptionState)

	resumed, err := f.mgr.Resume(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, types.SubscriptionStatusActive, resumed.Status)

	entries := f.store.HistoryEntries()
	var tags []string
	for _, e := range entries {
		tags = append(tags, e.EventType)
	}
	require.Contains(t, tags, types.EventSubscriptionPaused)
	require.Contains(t, tags, types.EventSubscriptionResumed)
}

func TestCancel_FromEachNonTerminalStatus(t *testing.T) {
	for _, setup := range []struct {
		name   string
		script []*gateway.ChargeResult
		prep   func(f *fixture, id string) error
	}{
		{"pending", []*gateway.ChargeResult{declined()}, nil},
		{"active", []*gateway.ChargeResult{approved()}, nil},
		{"paused", []*gateway.ChargeResult{approved()}, func(f *fixture, id string) error {
			_, err := f.mgr.Pause(context.Background(), id)
			return err
		}},
	} {
		t.Run(setup.name, func(t *testing.T) {
			f := newFixture(t, setup.script...)
			sub, err := f.mgr.Create(context.Background(), f.createReq())
			require.NoError(t, err)
			if setup.prep != nil {
				require.NoError(t, setup.prep(f, sub.ID))
			}

			cancelled, err := f.mgr.Cancel(context.Background(), sub.ID, "moving away", true)
			require.NoError(t, err)
			require.Equal(t, types.SubscriptionStatusCancelled, cancelled.Status)
			require.False(t, cancelled.AutoRenewEnabled)
			require.Nil(t, cancelled.NextBillingDate)
			require.Contains(t, f.pub.keys, "subscription.cancelled")

			entries := f.store.HistoryEntries()
			last := entries[len(entries)-1]
			require.Equal(t, types.EventSubscriptionCancelled, last.EventType)
			require.Equal(t, "moving away", last.Metadata["reason"])
			require.Equal(t, true, last.Metadata["refund_requested"])
		})
	}
}

func TestCancel_TerminalStatusRejected(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	_, err = f.mgr.Cancel(context.Background(), sub.ID, "rider_request", false)
	require.NoError(t, err)

	_, err = f.mgr.Cancel(context.Background(), sub.ID, "rider_request", false)
	require.ErrorIs(t, err, ErrInvalidSubscriptionState)

	// Exactly one cancellation entry despite the second attempt.
	var cancels int
	for _, e := range f.store.HistoryEntries() {
		if e.EventType == types.EventSubscriptionCancelled {
			cancels++
		}
	}
	require.Equal(t, 1, cancels)
}

func TestGetByID_UnknownAndDeleted(t *testing.T) {
	f := newFixture(t, approved())

	_, err := f.mgr.GetByID(context.Background(), tool.GenerateUUIDV7())
	require.ErrorIs(t, err, ErrSubscriptionNotFound)

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	_, err = f.mgr.Cancel(context.Background(), sub.ID, "rider_request", false)
	require.NoError(t, err)
	require.NoError(t, f.mgr.SoftDelete(context.Background(), sub.ID))

	_, err = f.mgr.GetByID(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSoftDelete_RequiresTerminalStatus(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	err = f.mgr.SoftDelete(context.Background(), sub.ID)
	require.ErrorIs(t, err, ErrInvalidSubscriptionState)
}

func TestListByUser_ExcludesDeleted(t *testing.T) {
	f := newFixture(t, approved())
	req := f.createReq()

	first, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)
	_, err = f.mgr.Cancel(context.Background(), first.ID, "rider_request", false)
	require.NoError(t, err)

	second, err := f.mgr.Create(context.Background(), req)
	require.NoError(t, err)

	subs, err := f.mgr.ListByUser(context.Background(), req.UserID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	require.NoError(t, f.mgr.SoftDelete(context.Background(), first.ID))
	subs, err = f.mgr.ListByUser(context.Background(), req.UserID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, second.ID, subs[0].ID)
}

func TestHistory_TracksFullLifecycle(t *testing.T) {
	f := newFixture(t, declined(), approved(), approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)
	_, err = f.mgr.RetryPayment(context.Background(), sub.ID, "")
	require.NoError(t, err)
	_, err = f.mgr.Renew(context.Background(), sub.ID, "")
	require.NoError(t, err)
	_, err = f.mgr.Cancel(context.Background(), sub.ID, "rider_request", false)
	require.NoError(t, err)

	entries, err := f.mgr.History(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, types.EventPaymentRetrySucceeded, entries[0].EventType)
	require.Equal(t, types.EventSubscriptionRenewed, entries[1].EventType)
	require.Equal(t, types.EventSubscriptionCancelled, entries[2].EventType)
}

func TestCreate_EndDateAtDayGranularity(t *testing.T) {
	f := newFixture(t, approved())

	sub, err := f.mgr.Create(context.Background(), f.createReq())
	require.NoError(t, err)

	require.Equal(t, time.UTC, sub.StartDate.Location())
	h, min, sec := sub.StartDate.Clock()
	require.Zero(t, h)
	require.Zero(t, min)
	require.Zero(t, sec)
	require.Equal(t, f.plan.DurationDays, tool.DaysBetween(sub.StartDate, *sub.EndDate))
}
