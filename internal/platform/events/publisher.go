package events

import (
	"context"
	"time"
)

// Routing keys for lifecycle notifications. Downstream consumers (e.g.
// the notification service) bind their own queues to these.
const (
	RoutingKeySubscriptionCreated   = "subscription.created"
	RoutingKeySubscriptionRenewed   = "subscription.renewed"
	RoutingKeySubscriptionCancelled = "subscription.cancelled"
	RoutingKeySubscriptionExpired   = "subscription.expired"
	RoutingKeyPaymentProcessed      = "payment.processed"
)

// Publisher delivers lifecycle notifications. Publishing is
// fire-and-forget from the caller's point of view: a publish failure is
// logged by the caller and never rolls back or blocks the lifecycle
// operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}

// SubscriptionEvent is the payload for subscription.* routing keys.
type SubscriptionEvent struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	PlanID         string    `json:"plan_id,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PaymentEvent is the payload for payment.processed.
type PaymentEvent struct {
	PaymentID      string    `json:"payment_id"`
	SubscriptionID string    `json:"subscription_id"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
}
