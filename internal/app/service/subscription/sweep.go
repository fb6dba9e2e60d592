package subscription

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/transitops/fareflow/internal/platform/events"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/logctx"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

// sweepBatchSize bounds how many rows one sweep pass touches.
const sweepBatchSize = 500

// ExpireDueSubscriptions moves active and paused subscriptions whose
// coverage ended before now to expired. Each subscription is handled in
// its own transaction with the row locked and the condition re-checked,
// so a sweep racing a user operation loses cleanly.
func (m *Manager) ExpireDueSubscriptions(ctx context.Context, now time.Time) (int, error) {
	log := logctx.FromCtx(ctx, m.log)
	today := tool.DateOnly(now)

	due, err := m.store.Subscriptions().ListDueToExpire(ctx, today, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, candidate := range due {
		err := m.store.InTx(ctx, func(tx repository.Store) error {
			sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusPaused {
				return nil
			}
			if !sub.CoverageEnded(today) {
				return nil
			}

			old := sub.Status
			sub.Status = types.SubscriptionStatusExpired
			sub.NextBillingDate = nil
			if err := tx.Subscriptions().Update(ctx, sub); err != nil {
				return err
			}
			expired++
			return m.ledger.RecordInTx(ctx, tx, sub.ID, lo.ToPtr(old),
				types.SubscriptionStatusExpired, types.EventSubscriptionAutoExpired,
				map[string]any{"end_date": sub.EndDate.Format(time.DateOnly)})
		})
		if err != nil {
			log.Errorw("failed to expire subscription", "subscription_id", candidate.ID, "err", err)
			continue
		}
		m.publishEvent(ctx, events.RoutingKeySubscriptionExpired, candidate, "coverage_ended")
	}
	if expired > 0 {
		log.Infow("expired overdue subscriptions", "count", expired)
	}
	return expired, nil
}

// CancelAbandonedPending cancels pending subscriptions that never saw a
// successful payment within maxAge. The payment rows and audit trail
// remain.
func (m *Manager) CancelAbandonedPending(ctx context.Context, now time.Time, maxAge time.Duration) (int, error) {
	log := logctx.FromCtx(ctx, m.log)
	cutoff := now.Add(-maxAge)

	abandoned, err := m.store.Subscriptions().ListAbandonedPending(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	for _, candidate := range abandoned {
		err := m.store.InTx(ctx, func(tx repository.Store) error {
			sub, err := tx.Subscriptions().GetByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if sub.Status != types.SubscriptionStatusPending || !sub.CreatedAt.Before(cutoff) {
				return nil
			}

			sub.Status = types.SubscriptionStatusCancelled
			sub.AutoRenewEnabled = false
			sub.NextBillingDate = nil
			if err := tx.Subscriptions().Update(ctx, sub); err != nil {
				return err
			}
			cancelled++
			return m.ledger.RecordInTx(ctx, tx, sub.ID, lo.ToPtr(types.SubscriptionStatusPending),
				types.SubscriptionStatusCancelled, types.EventSubscriptionAutoCancelled,
				map[string]any{"pending_since": sub.CreatedAt.Format(time.RFC3339)})
		})
		if err != nil {
			log.Errorw("failed to cancel abandoned subscription", "subscription_id", candidate.ID, "err", err)
			continue
		}
		m.publishEvent(ctx, events.RoutingKeySubscriptionCancelled, candidate, "abandoned_pending")
	}
	if cancelled > 0 {
		log.Infow("cancelled abandoned pending subscriptions", "count", cancelled)
	}
	return cancelled, nil
}
