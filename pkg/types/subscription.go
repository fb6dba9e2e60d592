package types

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Terminal reports whether no further lifecycle transition is allowed.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

var allowedTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusPending: {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusActive:  {SubscriptionStatusPaused, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusPaused:  {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
}

// CanTransition reports whether moving from s to next is a legal
// state-machine edge.
func (s SubscriptionStatus) CanTransition(next SubscriptionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// History event tags recorded per committed transition.
const (
	EventSubscriptionCreated       = "SUBSCRIPTION_CREATED"
	EventSubscriptionRenewed       = "SUBSCRIPTION_RENEWED"
	EventSubscriptionCancelled     = "SUBSCRIPTION_CANCELLED"
	EventSubscriptionPaused        = "SUBSCRIPTION_PAUSED"
	EventSubscriptionResumed       = "SUBSCRIPTION_RESUMED"
	EventSubscriptionAutoExpired   = "SUBSCRIPTION_AUTO_EXPIRED"
	EventSubscriptionAutoCancelled = "SUBSCRIPTION_AUTO_CANCELLED"
	EventPaymentRetrySucceeded     = "PAYMENT_RETRY_SUCCEEDED"
)
