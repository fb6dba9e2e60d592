package subscription

import "errors"

var (
	// ErrPlanNotFound covers both a missing plan id and a plan that is
	// no longer open for new subscriptions.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrDuplicateSubscription is returned when the user already holds
	// an active subscription for the same plan.
	ErrDuplicateSubscription = errors.New("user already has an active subscription for this plan")

	// ErrSubscriptionNotFound is returned for unknown or soft-deleted
	// subscription ids.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrInvalidSubscriptionState is returned when the requested
	// operation is not a legal transition from the current status.
	ErrInvalidSubscriptionState = errors.New("operation not allowed in current subscription state")
)
