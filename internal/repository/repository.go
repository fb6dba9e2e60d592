package repository

import (
	"context"
	"errors"
	"time"

	"github.com/transitops/fareflow/internal/models"
)

// ErrNotFound is returned when a requested row does not exist or is
// soft-deleted.
var ErrNotFound = errors.New("record not found")

// Store bundles the persistence ports and the transaction boundary.
// InTx runs fn against a transaction-bound Store; every lifecycle
// operation draws exactly one such boundary so that the per-row lock
// taken via GetByIDForUpdate serializes concurrent mutations of the
// same subscription.
type Store interface {
	InTx(ctx context.Context, fn func(tx Store) error) error
	Subscriptions() SubscriptionRepository
	Payments() PaymentRepository
	Plans() PlanRepository
	History() HistoryRepository
}

// SubscriptionRepository persists subscriptions. All readers exclude
// soft-deleted rows.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *models.Subscription) error
	Update(ctx context.Context, sub *models.Subscription) error
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	// GetByIDForUpdate locks the row until the surrounding transaction
	// commits. Only meaningful on a transaction-bound Store.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	ExistsActiveByUserAndPlan(ctx context.Context, userID, planID string) (bool, error)
	// ListDueToExpire returns active or paused subscriptions whose end
	// date lies before today.
	ListDueToExpire(ctx context.Context, today time.Time, limit int) ([]*models.Subscription, error)
	// ListAbandonedPending returns pending subscriptions created before
	// the cutoff.
	ListAbandonedPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error)
}

// PaymentRepository persists charge attempts. The idempotency key is
// enforced unique by the store.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment) error
	Update(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	// FindByIdempotencyKey returns (nil, nil) when no payment carries
	// the key.
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Payment, error)
}

// PlanRepository reads the fare catalog. Plans are owned elsewhere.
type PlanRepository interface {
	GetByID(ctx context.Context, id string) (*models.Plan, error)
}

// HistoryRepository is append-only. No update or delete is ever issued.
type HistoryRepository interface {
	Append(ctx context.Context, entry *models.SubscriptionHistory) error
	ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error)
}
