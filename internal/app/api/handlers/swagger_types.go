package handlers

import (
	"time"

	"github.com/transitops/fareflow/internal/app/service/statistics"
	"github.com/transitops/fareflow/pkg/response"
	"github.com/transitops/fareflow/pkg/types"
)

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespSubscription wraps a single subscription in the standard envelope.
type RespSubscription struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SwaggerSubscription      `json:"data"`
}

// RespSubscriptionList wraps a list of subscriptions in the standard envelope.
type RespSubscriptionList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []SwaggerSubscription    `json:"data"`
}

// RespPayment wraps a single payment in the standard envelope.
type RespPayment struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    SwaggerPayment           `json:"data"`
}

// RespPaymentList wraps a list of payments in the standard envelope.
type RespPaymentList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []SwaggerPayment         `json:"data"`
}

// RespPaymentResult wraps a charge or refund outcome in the standard envelope.
type RespPaymentResult struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespHistoryList wraps the audit trail in the standard envelope.
type RespHistoryList struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []interface{}            `json:"data"`
}

// RespScanSubscriptions wraps ScanSubscriptionsResponse in the standard envelope.
type RespScanSubscriptions struct {
	Code    response.APIResponseCode             `json:"code"`
	Message string                               `json:"message"`
	Data    statistics.ScanSubscriptionsResponse `json:"data"`
}

// RespStatistic wraps StatisticResponse in the standard envelope.
type RespStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

// SwaggerSubscription is a simplified view of models.Subscription for documentation purposes.
type SwaggerSubscription struct {
	ID               string                   `json:"id"`
	UserID           string                   `json:"user_id"`
	PlanID           string                   `json:"plan_id"`
	Status           types.SubscriptionStatus `json:"status"`
	StartDate        time.Time                `json:"start_date"`
	EndDate          *time.Time               `json:"end_date"`
	NextBillingDate  *time.Time               `json:"next_billing_date"`
	AmountPaid       string                   `json:"amount_paid"`
	AutoRenewEnabled bool                     `json:"auto_renew_enabled"`
	CardLast4        string                   `json:"card_last4"`
	CardBrand        string                   `json:"card_brand"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// SwaggerPayment is a simplified view of models.Payment for documentation purposes.
type SwaggerPayment struct {
	ID             string              `json:"id"`
	SubscriptionID string              `json:"subscription_id"`
	Amount         string              `json:"amount"`
	Currency       string              `json:"currency"`
	Status         types.PaymentStatus `json:"status"`
	PaymentType    types.PaymentType   `json:"payment_type"`
	ExternalTxnID  *string             `json:"external_txn_id"`
	IdempotencyKey string              `json:"idempotency_key"`
	FailureReason  *string             `json:"failure_reason"`
	CreatedAt      time.Time           `json:"created_at"`
}
