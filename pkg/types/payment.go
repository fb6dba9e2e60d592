package types

// PaymentStatus is the settlement state of a single charge attempt.
type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentType distinguishes the activating charge from coverage extensions.
type PaymentType string

const (
	PaymentTypeInitial PaymentType = "initial"
	PaymentTypeRenewal PaymentType = "renewal"
)
