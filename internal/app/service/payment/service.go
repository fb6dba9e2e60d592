package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/platform/events"
	"github.com/transitops/fareflow/internal/platform/gateway"
	"github.com/transitops/fareflow/internal/repository"
	cfgpkg "github.com/transitops/fareflow/pkg/config"
	"github.com/transitops/fareflow/pkg/logctx"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

// ErrPaymentFailed marks a charge or refund the provider declined or a
// gateway call that could not complete. Wrap-friendly for errors.Is.
var ErrPaymentFailed = errors.New("payment failed")

// ErrPaymentNotFound is returned when a payment id does not exist.
var ErrPaymentNotFound = errors.New("payment not found")

var chargeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "payment",
	Name:      "charge_outcomes_total",
	Help:      "Charge attempts partitioned by payment type and outcome.",
}, []string{"type", "outcome"})

// ProcessRequest describes one logical charge attempt. The idempotency
// key makes the attempt safe to retry: replays resolve to the stored
// outcome without a second gateway call.
type ProcessRequest struct {
	SubscriptionID string            `json:"subscription_id"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	CardToken      string            `json:"card_token"`
	IdempotencyKey string            `json:"idempotency_key"`
	PaymentType    types.PaymentType `json:"payment_type"`
}

// Result is the stored outcome of a charge attempt.
type Result struct {
	PaymentID     string              `json:"payment_id"`
	Success       bool                `json:"success"`
	Status        types.PaymentStatus `json:"status"`
	ExternalTxnID string              `json:"external_txn_id,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
	CardLast4     string              `json:"card_last4,omitempty"`
	CardBrand     string              `json:"card_brand,omitempty"`
	// Replayed is true when the outcome was served from a previously
	// persisted payment with the same idempotency key.
	Replayed bool `json:"replayed"`
}

// Orchestrator wraps gateway calls with idempotency de-duplication,
// persists payment outcomes and maintains the owning subscription's
// running paid amount. It is the only component that writes payment
// rows or adjusts amount_paid.
type Orchestrator struct {
	store repository.Store
	gw    gateway.PaymentGateway
	pub   events.Publisher
	cfg   *cfgpkg.Config
	log   *zap.SugaredLogger
}

func NewOrchestrator(store repository.Store, gw gateway.PaymentGateway, pub events.Publisher, cfg *cfgpkg.Config, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{store: store, gw: gw, pub: pub, cfg: cfg, log: log}
}

func resultFromPayment(p *models.Payment, replayed bool) *Result {
	res := &Result{
		PaymentID: p.ID,
		Success:   p.Status == types.PaymentStatusSucceeded,
		Status:    p.Status,
		CardLast4: p.CardLast4,
		CardBrand: p.CardBrand,
		Replayed:  replayed,
	}
	if p.ExternalTxnID != nil {
		res.ExternalTxnID = *p.ExternalTxnID
	}
	if p.FailureReason != nil {
		res.FailureReason = *p.FailureReason
	}
	return res
}

func (o *Orchestrator) validate(req *ProcessRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	if req.SubscriptionID == "" || req.IdempotencyKey == "" {
		return fmt.Errorf("subscription id and idempotency key are required")
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// Process runs one charge attempt in its own transaction and publishes
// the outcome.
func (o *Orchestrator) Process(ctx context.Context, req *ProcessRequest) (*Result, error) {
	var res *Result
	err := o.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		res, err = o.ProcessInTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	o.publishOutcome(ctx, res, req.SubscriptionID)
	return res, nil
}

// ProcessInTx runs one charge attempt against a transaction-bound
// store. The subscription manager calls this inside its own boundary so
// the payment write, the amount_paid adjustment and the lifecycle
// mutation commit together.
func (o *Orchestrator) ProcessInTx(ctx context.Context, tx repository.Store, req *ProcessRequest) (*Result, error) {
	log := logctx.FromCtx(ctx, o.log)
	if err := o.validate(req); err != nil {
		return nil, err
	}

	// Idempotency ledger first: a replayed key never reaches the gateway.
	existing, err := tx.Payments().FindByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}
	if existing != nil {
		log.Warnw("replaying stored payment outcome", "idempotency_key", req.IdempotencyKey, "payment_id", existing.ID)
		chargeOutcomes.WithLabelValues(string(existing.PaymentType), "replayed").Inc()
		return resultFromPayment(existing, true), nil
	}

	sub, err := tx.Subscriptions().GetByID(ctx, req.SubscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("subscription %s: %w", req.SubscriptionID, repository.ErrNotFound)
		}
		return nil, err
	}

	paymentType := req.PaymentType
	if paymentType == "" {
		paymentType = types.PaymentTypeInitial
	}

	res := o.charge(ctx, req)

	p := &models.Payment{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: sub.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		PaymentType:    paymentType,
		IdempotencyKey: req.IdempotencyKey,
		CardLast4:      res.CardLast4,
		CardBrand:      res.CardBrand,
	}
	if res.Success {
		p.Status = types.PaymentStatusSucceeded
		p.ExternalTxnID = lo.ToPtr(res.ExternalTxnID)
	} else {
		p.Status = types.PaymentStatusFailed
		p.FailureReason = lo.ToPtr(res.FailureReason)
	}

	if err := tx.Payments().Create(ctx, p); err != nil {
		return nil, err
	}

	if res.Success {
		sub.AmountPaid = sub.AmountPaid.Add(req.Amount).Round(2)
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return nil, err
		}
		log.Infow("payment succeeded", "payment_id", p.ID, "subscription_id", sub.ID, "amount", req.Amount.String())
	} else {
		log.Warnw("payment failed", "payment_id", p.ID, "subscription_id", sub.ID, "reason", res.FailureReason)
	}
	chargeOutcomes.WithLabelValues(string(paymentType), string(p.Status)).Inc()

	out := resultFromPayment(p, false)
	return out, nil
}

// charge invokes the gateway with a bounded timeout and normalizes
// transport errors and timeouts into a failed outcome. Callers cannot
// distinguish a decline from a network error; retry stays their
// explicit responsibility.
func (o *Orchestrator) charge(ctx context.Context, req *ProcessRequest) *gateway.ChargeResult {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Gateway.Timeout())
	defer cancel()

	res, err := o.gw.Charge(callCtx, req.CardToken, req.Amount, req.Currency, req.IdempotencyKey)
	if err != nil {
		logctx.FromCtx(ctx, o.log).Errorw("gateway charge error", "idempotency_key", req.IdempotencyKey, "err", err)
		return &gateway.ChargeResult{Success: false, FailureReason: fmt.Sprintf("gateway error: %v", err)}
	}
	return res
}

// Refund reverses a settled charge and decreases the owning
// subscription's paid amount.
func (o *Orchestrator) Refund(ctx context.Context, paymentID string, amount decimal.Decimal) (*Result, error) {
	log := logctx.FromCtx(ctx, o.log)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrPaymentFailed)
	}

	var (
		res   *Result
		subID string
	)
	err := o.store.InTx(ctx, func(tx repository.Store) error {
		p, err := tx.Payments().GetByID(ctx, paymentID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
			}
			return err
		}
		if !p.Refundable() {
			return fmt.Errorf("%w: cannot refund payment with status %s", ErrPaymentFailed, p.Status)
		}
		if amount.GreaterThan(p.Amount) {
			return fmt.Errorf("%w: refund amount exceeds charged amount", ErrPaymentFailed)
		}

		callCtx, cancel := context.WithTimeout(ctx, o.cfg.Gateway.Timeout())
		defer cancel()
		refund, err := o.gw.Refund(callCtx, *p.ExternalTxnID, amount)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		if !refund.Success {
			return fmt.Errorf("%w: %s", ErrPaymentFailed, refund.FailureReason)
		}

		p.Status = types.PaymentStatusRefunded
		if err := tx.Payments().Update(ctx, p); err != nil {
			return err
		}

		sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, p.SubscriptionID)
		if err != nil {
			return err
		}
		sub.AmountPaid = sub.AmountPaid.Sub(amount).Round(2)
		if sub.AmountPaid.IsNegative() {
			sub.AmountPaid = decimal.Zero
		}
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}

		log.Infow("refund succeeded", "payment_id", p.ID, "refund_id", refund.RefundID, "amount", amount.String())
		res = resultFromPayment(p, false)
		subID = p.SubscriptionID
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.publishOutcome(ctx, res, subID)
	return res, nil
}

func (o *Orchestrator) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	p, err := o.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		return nil, err
	}
	return p, nil
}

func (o *Orchestrator) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Payment, error) {
	return o.store.Payments().ListBySubscription(ctx, subscriptionID)
}

// publishOutcome emits payment.processed; failures are logged only.
func (o *Orchestrator) publishOutcome(ctx context.Context, res *Result, subscriptionID string) {
	if res == nil {
		return
	}
	payload, err := json.Marshal(events.PaymentEvent{
		PaymentID:      res.PaymentID,
		SubscriptionID: subscriptionID,
		Status:         string(res.Status),
		Timestamp:      time.Now(),
	})
	if err != nil {
		return
	}
	if err := o.pub.Publish(ctx, events.RoutingKeyPaymentProcessed, payload); err != nil {
		logctx.FromCtx(ctx, o.log).Errorw("failed to publish payment event", "payment_id", res.PaymentID, "err", err)
	}
}
