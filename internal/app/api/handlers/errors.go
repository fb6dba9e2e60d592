package handlers

import (
	"errors"

	paysvc "github.com/transitops/fareflow/internal/app/service/payment"
	subsvc "github.com/transitops/fareflow/internal/app/service/subscription"
	"github.com/transitops/fareflow/internal/repository"
	"github.com/transitops/fareflow/pkg/response"
)

// codeFor maps service errors onto envelope codes. The HTTP status is
// always 200; clients branch on the code.
func codeFor(err error) response.APIResponseCode {
	switch {
	case errors.Is(err, subsvc.ErrPlanNotFound),
		errors.Is(err, subsvc.ErrSubscriptionNotFound),
		errors.Is(err, paysvc.ErrPaymentNotFound),
		errors.Is(err, repository.ErrNotFound):
		return response.APIResponseCodeNotFound
	case errors.Is(err, subsvc.ErrDuplicateSubscription),
		errors.Is(err, subsvc.ErrInvalidSubscriptionState):
		return response.APIResponseCodeConflict
	case errors.Is(err, paysvc.ErrPaymentFailed):
		return response.APIResponseCodeBadRequest
	default:
		return response.APIResponseCodeError
	}
}
