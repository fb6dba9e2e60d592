package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/pkg/types"
)

type gormStore struct {
	db *gorm.DB
}

// NewStore returns the GORM-backed Store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) Subscriptions() SubscriptionRepository { return &subscriptionRepo{db: s.db} }
func (s *gormStore) Payments() PaymentRepository           { return &paymentRepo{db: s.db} }
func (s *gormStore) Plans() PlanRepository                 { return &planRepo{db: s.db} }
func (s *gormStore) History() HistoryRepository            { return &historyRepo{db: s.db} }

type subscriptionRepo struct {
	db *gorm.DB
}

func (r *subscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) Update(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	return nil
}

func (r *subscriptionRepo) getByID(ctx context.Context, id string, lock bool) (*models.Subscription, error) {
	q := r.db.WithContext(ctx).Where("id = ? AND deleted_at IS NULL", id)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub models.Subscription
	if err := q.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	return r.getByID(ctx, id, false)
}

func (r *subscriptionRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	return r.getByID(ctx, id, true)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Order("created_at desc").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) ExistsActiveByUserAndPlan(ctx context.Context, userID, planID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("user_id = ? AND plan_id = ? AND status = ? AND deleted_at IS NULL",
			userID, planID, types.SubscriptionStatusActive).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *subscriptionRepo) ListDueToExpire(ctx context.Context, today time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	q := r.db.WithContext(ctx).
		Where("status IN ? AND end_date < ? AND deleted_at IS NULL",
			[]types.SubscriptionStatus{types.SubscriptionStatusActive, types.SubscriptionStatusPaused}, today).
		Order("end_date asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) ListAbandonedPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	q := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ? AND deleted_at IS NULL",
			types.SubscriptionStatusPending, cutoff).
		Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

type paymentRepo struct {
	db *gorm.DB
}

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) Update(ctx context.Context, p *models.Payment) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at desc").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

type planRepo struct {
	db *gorm.DB
}

func (r *planRepo) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

type historyRepo struct {
	db *gorm.DB
}

func (r *historyRepo) Append(ctx context.Context, entry *models.SubscriptionHistory) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (r *historyRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	var entries []*models.SubscriptionHistory
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at asc").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
