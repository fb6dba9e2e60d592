// Package repotest provides an in-memory Store for service tests. It
// mirrors the repository contracts closely enough for lifecycle logic:
// soft-deleted rows are hidden, idempotency keys are unique, history is
// append-only. It does not simulate transaction isolation; InTx applies
// writes directly.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/types"
)

type Store struct {
	mu sync.Mutex

	subscriptions map[string]*models.Subscription
	payments      map[string]*models.Payment
	plans         map[string]*models.Plan
	history       []*models.SubscriptionHistory
}

func New() *Store {
	return &Store{
		subscriptions: map[string]*models.Subscription{},
		payments:      map[string]*models.Payment{},
		plans:         map[string]*models.Plan{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

func (s *Store) Subscriptions() repository.SubscriptionRepository { return &subscriptionRepo{s} }
func (s *Store) Payments() repository.PaymentRepository           { return &paymentRepo{s} }
func (s *Store) Plans() repository.PlanRepository                 { return &planRepo{s} }
func (s *Store) History() repository.HistoryRepository            { return &historyRepo{s} }

// SeedPlan registers a plan row.
func (s *Store) SeedPlan(p *models.Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
}

// SeedSubscription registers a subscription row bypassing Create.
func (s *Store) SeedSubscription(sub *models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
}

// SeedPayment registers a payment row bypassing Create.
func (s *Store) SeedPayment(p *models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = p
}

// HistoryEntries returns the audit trail in insertion order.
func (s *Store) HistoryEntries() []*models.SubscriptionHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.SubscriptionHistory, len(s.history))
	copy(out, s.history)
	return out
}

// PaymentCount returns the number of stored payment rows.
func (s *Store) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}

type subscriptionRepo struct{ s *Store }

func (r *subscriptionRepo) Create(ctx context.Context, sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscriptions[sub.ID]; ok {
		return fmt.Errorf("duplicate subscription id %s", sub.ID)
	}
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = sub.CreatedAt
	r.s.subscriptions[sub.ID] = sub
	return nil
}

func (r *subscriptionRepo) Update(ctx context.Context, sub *models.Subscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscriptions[sub.ID]; !ok {
		return repository.ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	r.s.subscriptions[sub.ID] = sub
	return nil
}

func (r *subscriptionRepo) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sub, ok := r.s.subscriptions[id]
	if !ok || sub.IsDeleted() {
		return nil, repository.ErrNotFound
	}
	return sub, nil
}

func (r *subscriptionRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Subscription, error) {
	return r.GetByID(ctx, id)
}

func (r *subscriptionRepo) ListByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID && !sub.IsDeleted() {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *subscriptionRepo) ExistsActiveByUserAndPlan(ctx context.Context, userID, planID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID && sub.PlanID == planID && sub.Status == types.SubscriptionStatusActive && !sub.IsDeleted() {
			return true, nil
		}
	}
	return false, nil
}

func (r *subscriptionRepo) ListDueToExpire(ctx context.Context, today time.Time, limit int) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.IsDeleted() {
			continue
		}
		if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusPaused {
			continue
		}
		if sub.CoverageEnded(today) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *subscriptionRepo) ListAbandonedPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Subscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Subscription
	for _, sub := range r.s.subscriptions {
		if sub.IsDeleted() || sub.Status != types.SubscriptionStatusPending {
			continue
		}
		if sub.CreatedAt.Before(cutoff) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type paymentRepo struct{ s *Store }

func (r *paymentRepo) Create(ctx context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.payments {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return fmt.Errorf("duplicate idempotency key %s", p.IdempotencyKey)
		}
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.payments[p.ID] = p
	return nil
}

func (r *paymentRepo) Update(ctx context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[p.ID]; !ok {
		return repository.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	r.s.payments[p.ID] = p
	return nil
}

func (r *paymentRepo) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r *paymentRepo) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.payments {
		if p.IdempotencyKey == key {
			return p, nil
		}
	}
	return nil, nil
}

func (r *paymentRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.s.payments {
		if p.SubscriptionID == subscriptionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type planRepo struct{ s *Store }

func (r *planRepo) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type historyRepo struct{ s *Store }

func (r *historyRepo) Append(ctx context.Context, entry *models.SubscriptionHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.CreatedAt = time.Now()
	r.s.history = append(r.s.history, entry)
	return nil
}

func (r *historyRepo) ListBySubscription(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.SubscriptionHistory
	for _, h := range r.s.history {
		if h.SubscriptionID == subscriptionID {
			out = append(out, h)
		}
	}
	return out, nil
}
