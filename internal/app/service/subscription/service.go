package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/app/service/history"
	"github.com/transitops/fareflow/internal/app/service/payment"
	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/platform/events"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/logctx"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

// CreateRequest opens a subscription for one rider on one plan.
type CreateRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	PlanID    string `json:"plan_id" binding:"required"`
	CardToken string `json:"card_token" binding:"required"`
	// AutoRenew defaults to true at the API layer.
	AutoRenew bool `json:"auto_renew"`
}

// Manager drives the subscription state machine. It owns every write
// to the status column; payment rows and amount_paid belong to the
// orchestrator, which it calls inside its own transaction boundary.
type Manager struct {
	store  repository.Store
	orc    *payment.Orchestrator
	ledger *history.Ledger
	pub    events.Publisher
	log    *zap.SugaredLogger
}

func NewManager(store repository.Store, orc *payment.Orchestrator, ledger *history.Ledger, pub events.Publisher, log *zap.SugaredLogger) *Manager {
	return &Manager{store: store, orc: orc, ledger: ledger, pub: pub, log: log}
}

// Create persists a pending subscription, then attempts the activating
// charge. A declined or failed charge is not an error here: the
// subscription stays pending with the failed payment recorded, and the
// rider retries via RetryPayment. The pending row is committed before
// the gateway is ever called, so a crash mid-payment never loses the
// subscription.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*models.Subscription, error) {
	log := logctx.FromCtx(ctx, m.log)
	if req == nil || req.UserID == "" || req.PlanID == "" || req.CardToken == "" {
		return nil, fmt.Errorf("user id, plan id and card token are required")
	}

	plan, err := m.store.Plans().GetByID(ctx, req.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, req.PlanID)
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, fmt.Errorf("%w: plan %s is not open for new subscriptions", ErrPlanNotFound, plan.Code)
	}

	exists, err := m.store.Subscriptions().ExistsActiveByUserAndPlan(ctx, req.UserID, req.PlanID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: user %s, plan %s", ErrDuplicateSubscription, req.UserID, plan.Code)
	}

	start := tool.DateOnly(time.Now())
	end := tool.EndDate(start, plan.DurationDays)
	sub := &models.Subscription{
		ID:               tool.GenerateUUIDV7(),
		UserID:           req.UserID,
		PlanID:           req.PlanID,
		Status:           types.SubscriptionStatusPending,
		StartDate:        start,
		EndDate:          &end,
		AutoRenewEnabled: req.AutoRenew,
		CardToken:        req.CardToken,
	}
	if req.AutoRenew {
		sub.NextBillingDate = &end
	}

	if err := m.store.Subscriptions().Create(ctx, sub); err != nil {
		return nil, err
	}
	log.Infow("subscription created", "subscription_id", sub.ID, "user_id", req.UserID, "plan", plan.Code)

	res, err := m.attemptActivation(ctx, sub.ID, plan, tool.GenerateUUIDV7(), types.PaymentTypeInitial, types.EventSubscriptionCreated)
	if err != nil {
		return nil, err
	}

	current, err := m.GetByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if res != nil && !res.Success {
		log.Warnw("activation payment failed, subscription stays pending",
			"subscription_id", sub.ID, "reason", res.FailureReason)
		return current, nil
	}
	m.publishEvent(ctx, events.RoutingKeySubscriptionCreated, current, string(current.Status))
	return current, nil
}

// RetryPayment re-attempts the activating charge of a pending
// subscription. The caller supplies the idempotency key, so a client
// that resends the same retry resolves to the stored outcome instead of
// charging twice; an empty key gets a fresh one. Unlike Create, a
// failed charge surfaces as an error; the failed payment row still
// commits.
func (m *Manager) RetryPayment(ctx context.Context, subscriptionID, idempotencyKey string) (*models.Subscription, error) {
	sub, err := m.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != types.SubscriptionStatusPending {
		return nil, fmt.Errorf("%w: payment retry requires pending, got %s", ErrInvalidSubscriptionState, sub.Status)
	}

	plan, err := m.store.Plans().GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey == "" {
		idempotencyKey = tool.GenerateUUIDV7()
	}
	res, err := m.attemptActivation(ctx, sub.ID, plan, idempotencyKey, types.PaymentTypeInitial, types.EventPaymentRetrySucceeded)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", payment.ErrPaymentFailed, res.FailureReason)
	}

	current, err := m.GetByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	m.publishEvent(ctx, events.RoutingKeySubscriptionCreated, current, "payment_retry")
	return current, nil
}

// attemptActivation runs one pending->active attempt in a single
// transaction: row lock, charge, then on success the status flip and
// the audit entry. A failed charge commits its payment row and leaves
// the subscription pending.
func (m *Manager) attemptActivation(ctx context.Context, subscriptionID string, plan *models.Plan, idempotencyKey string, paymentType types.PaymentType, eventType string) (*payment.Result, error) {
	var res *payment.Result
	err := m.store.InTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, subscriptionID)
		if err != nil {
			return err
		}
		if sub.Status != types.SubscriptionStatusPending {
			return fmt.Errorf("%w: expected pending, got %s", ErrInvalidSubscriptionState, sub.Status)
		}

		res, err = m.orc.ProcessInTx(ctx, tx, &payment.ProcessRequest{
			SubscriptionID: sub.ID,
			Amount:         plan.Price,
			Currency:       plan.Currency,
			CardToken:      sub.CardToken,
			IdempotencyKey: idempotencyKey,
			PaymentType:    paymentType,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			// Commit the failed payment row, keep the subscription pending.
			return nil
		}

		// Re-read: the orchestrator adjusted amount_paid on its own copy.
		sub, err = tx.Subscriptions().GetByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub.Status = types.SubscriptionStatusActive
		sub.CardLast4 = res.CardLast4
		sub.CardBrand = res.CardBrand
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}
		return m.ledger.RecordInTx(ctx, tx, sub.ID, lo.ToPtr(types.SubscriptionStatusPending),
			types.SubscriptionStatusActive, eventType, map[string]any{"payment_id": res.PaymentID})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Renew extends an active subscription by one plan period. The new end
// date is the day after the current end date plus the plan duration, so
// back-to-back periods never overlap. A non-empty newCardToken replaces
// the stored instrument before the charge.
func (m *Manager) Renew(ctx context.Context, subscriptionID, newCardToken string) (*models.Subscription, error) {
	log := logctx.FromCtx(ctx, m.log)

	var (
		renewed *models.Subscription
		res     *payment.Result
	)
	err := m.store.InTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, subscriptionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
			}
			return err
		}
		if sub.Status != types.SubscriptionStatusActive {
			return fmt.Errorf("%w: renewal requires active, got %s", ErrInvalidSubscriptionState, sub.Status)
		}
		if sub.EndDate == nil {
			return fmt.Errorf("subscription %s has no end date", sub.ID)
		}

		plan, err := tx.Plans().GetByID(ctx, sub.PlanID)
		if err != nil {
			return err
		}

		// A replacement instrument is only stored once it has charged
		// successfully; a declined renewal leaves the subscription as it
		// was.
		chargeToken := sub.CardToken
		if newCardToken != "" {
			chargeToken = newCardToken
		}

		res, err = m.orc.ProcessInTx(ctx, tx, &payment.ProcessRequest{
			SubscriptionID: sub.ID,
			Amount:         plan.Price,
			Currency:       plan.Currency,
			CardToken:      chargeToken,
			IdempotencyKey: tool.GenerateUUIDV7(),
			PaymentType:    types.PaymentTypeRenewal,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			return nil
		}

		sub, err = tx.Subscriptions().GetByID(ctx, sub.ID)
		if err != nil {
			return err
		}
		newEnd := tool.EndDate(sub.EndDate.AddDate(0, 0, 1), plan.DurationDays)
		sub.EndDate = &newEnd
		sub.NextBillingDate = &newEnd
		if chargeToken != sub.CardToken {
			sub.CardToken = chargeToken
			sub.CardLast4 = res.CardLast4
			sub.CardBrand = res.CardBrand
		}
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}
		renewed = sub
		return m.ledger.RecordInTx(ctx, tx, sub.ID, lo.ToPtr(types.SubscriptionStatusActive),
			types.SubscriptionStatusActive, types.EventSubscriptionRenewed,
			map[string]any{"payment_id": res.PaymentID, "new_end_date": newEnd.Format(time.DateOnly)})
	})
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, fmt.Errorf("%w: %s", payment.ErrPaymentFailed, res.FailureReason)
	}

	log.Infow("subscription renewed", "subscription_id", renewed.ID, "end_date", renewed.EndDate.Format(time.DateOnly))
	m.publishEvent(ctx, events.RoutingKeySubscriptionRenewed, renewed, "")
	return renewed, nil
}

// Cancel moves a non-terminal subscription to cancelled. Asking for a
// refund here only records the request; the refund itself goes through
// the payment API explicitly.
func (m *Manager) Cancel(ctx context.Context, subscriptionID, reason string, refundRequested bool) (*models.Subscription, error) {
	sub, err := m.doTransition(ctx, subscriptionID, nil, types.SubscriptionStatusCancelled, types.EventSubscriptionCancelled,
		func(sub *models.Subscription) {
			sub.AutoRenewEnabled = false
			sub.NextBillingDate = nil
		},
		map[string]any{"reason": reason, "refund_requested": refundRequested})
	if err != nil {
		return nil, err
	}
	m.publishEvent(ctx, events.RoutingKeySubscriptionCancelled, sub, "user_cancelled")
	return sub, nil
}

// Pause suspends an active subscription. Coverage dates are untouched;
// a paused subscription still expires on its end date.
func (m *Manager) Pause(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return m.mutateStatusFrom(ctx, subscriptionID, types.SubscriptionStatusActive,
		types.SubscriptionStatusPaused, types.EventSubscriptionPaused, nil)
}

// Resume reactivates a paused subscription.
func (m *Manager) Resume(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	return m.mutateStatusFrom(ctx, subscriptionID, types.SubscriptionStatusPaused,
		types.SubscriptionStatusActive, types.EventSubscriptionResumed, nil)
}

// mutateStatusFrom applies a transition that requires a specific
// current status.
func (m *Manager) mutateStatusFrom(ctx context.Context, subscriptionID string, from, next types.SubscriptionStatus, eventType string, mutate func(*models.Subscription)) (*models.Subscription, error) {
	return m.doTransition(ctx, subscriptionID, &from, next, eventType, mutate, nil)
}

func (m *Manager) doTransition(ctx context.Context, subscriptionID string, from *types.SubscriptionStatus, next types.SubscriptionStatus, eventType string, mutate func(*models.Subscription), metadata map[string]any) (*models.Subscription, error) {
	var out *models.Subscription
	err := m.store.InTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, subscriptionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
			}
			return err
		}
		if from != nil && sub.Status != *from {
			return fmt.Errorf("%w: expected %s, got %s", ErrInvalidSubscriptionState, *from, sub.Status)
		}
		if !sub.Status.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidSubscriptionState, sub.Status, next)
		}

		old := sub.Status
		sub.Status = next
		if mutate != nil {
			mutate(sub)
		}
		if err := tx.Subscriptions().Update(ctx, sub); err != nil {
			return err
		}
		out = sub
		return m.ledger.RecordInTx(ctx, tx, sub.ID, lo.ToPtr(old), next, eventType, metadata)
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, m.log).Infow("subscription transition",
		"subscription_id", out.ID, "status", out.Status, "event", eventType)
	return out, nil
}

func (m *Manager) GetByID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	sub, err := m.store.Subscriptions().GetByID(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
		}
		return nil, err
	}
	return sub, nil
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return m.store.Subscriptions().ListByUser(ctx, userID)
}

// History returns the audit trail for one subscription.
func (m *Manager) History(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	if _, err := m.GetByID(ctx, subscriptionID); err != nil {
		return nil, err
	}
	return m.ledger.List(ctx, subscriptionID)
}

// SoftDelete hides a terminal subscription from listings. The row and
// its audit trail remain.
func (m *Manager) SoftDelete(ctx context.Context, subscriptionID string) error {
	return m.store.InTx(ctx, func(tx repository.Store) error {
		sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, subscriptionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrSubscriptionNotFound, subscriptionID)
			}
			return err
		}
		if !sub.Status.Terminal() {
			return fmt.Errorf("%w: delete requires a terminal status, got %s", ErrInvalidSubscriptionState, sub.Status)
		}
		sub.DeletedAt = lo.ToPtr(time.Now())
		return tx.Subscriptions().Update(ctx, sub)
	})
}

// publishEvent is fire-and-forget: a broker failure is logged and never
// affects the committed transition.
func (m *Manager) publishEvent(ctx context.Context, routingKey string, sub *models.Subscription, reason string) {
	payload, err := json.Marshal(events.SubscriptionEvent{
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		PlanID:         sub.PlanID,
		Reason:         reason,
		Timestamp:      time.Now(),
	})
	if err != nil {
		return
	}
	if err := m.pub.Publish(ctx, routingKey, payload); err != nil {
		logctx.FromCtx(ctx, m.log).Errorw("failed to publish subscription event",
			"subscription_id", sub.ID, "routing_key", routingKey, "err", err)
	}
}
