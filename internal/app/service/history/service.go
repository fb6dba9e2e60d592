package history

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/tool"
	"github.com/transitops/fareflow/pkg/types"
)

// Ledger records lifecycle transitions into the append-only audit
// trail. Entries are written in the same transaction as the transition
// they describe and are never read back by business logic.
type Ledger struct {
	store repository.Store
	log   *zap.SugaredLogger
}

func NewLedger(store repository.Store, log *zap.SugaredLogger) *Ledger {
	return &Ledger{store: store, log: log}
}

// RecordInTx appends one transition entry against a transaction-bound
// store. oldStatus is nil for the creation entry.
func (l *Ledger) RecordInTx(ctx context.Context, tx repository.Store, subscriptionID string, oldStatus *types.SubscriptionStatus, newStatus types.SubscriptionStatus, eventType string, metadata map[string]any) error {
	entry := &models.SubscriptionHistory{
		ID:             tool.GenerateUUIDV7(),
		SubscriptionID: subscriptionID,
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		EventType:      eventType,
		Metadata:       datatypes.JSONMap(metadata),
	}
	return tx.History().Append(ctx, entry)
}

// List returns the audit trail for one subscription, oldest first.
func (l *Ledger) List(ctx context.Context, subscriptionID string) ([]*models.SubscriptionHistory, error) {
	return l.store.History().ListBySubscription(ctx, subscriptionID)
}
