package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	paysvc "github.com/transitops/fareflow/internal/app/service/payment"
	"github.com/transitops/fareflow/pkg/response"
	"github.com/transitops/fareflow/pkg/types"
)

type processPaymentRequest struct {
	SubscriptionID string          `json:"subscription_id" binding:"required"`
	Amount         decimal.Decimal `json:"amount" binding:"required"`
	Currency       string          `json:"currency" binding:"required"`
	CardToken      string          `json:"card_token" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required"`
	PaymentType    string          `json:"payment_type"`
}

// @Summary      Process Payment
// @Description  Runs one charge attempt. Repeating a request with the same idempotency key returns the stored outcome without charging again.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        request body handlers.processPaymentRequest true "Process payment request"
// @Success      200  {object}  handlers.RespPaymentResult
// @Router       /api/v1/payments [post]
func ApiProcessPayment(orc *paysvc.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req processPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := orc.Process(c.Request.Context(), &paysvc.ProcessRequest{
			SubscriptionID: req.SubscriptionID,
			Amount:         req.Amount,
			Currency:       req.Currency,
			CardToken:      req.CardToken,
			IdempotencyKey: req.IdempotencyKey,
			PaymentType:    types.PaymentType(req.PaymentType),
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      Get Payment
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200  {object}  handlers.RespPayment
// @Router       /api/v1/payments/{id} [get]
func ApiGetPayment(orc *paysvc.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := orc.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(p))
	}
}

type refundPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// @Summary      Refund Payment
// @Description  Reverses a settled charge and decreases the subscription's paid amount.
// @Tags         Payment
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment ID"
// @Param        request body handlers.refundPaymentRequest true "Refund request"
// @Success      200  {object}  handlers.RespPaymentResult
// @Router       /api/v1/payments/{id}/refund [post]
func ApiRefundPayment(orc *paysvc.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := orc.Refund(c.Request.Context(), c.Param("id"), req.Amount)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

// @Summary      List Subscription Payments
// @Tags         Payment
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespPaymentList
// @Router       /api/v1/subscriptions/{id}/payments [get]
func ApiListSubscriptionPayments(orc *paysvc.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		payments, err := orc.ListBySubscription(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(payments))
	}
}

func RegisterPaymentRoutes(r gin.IRouter, orc *paysvc.Orchestrator) {
	r.POST("/payments", ApiProcessPayment(orc))
	r.GET("/payments/:id", ApiGetPayment(orc))
	r.POST("/payments/:id/refund", ApiRefundPayment(orc))
	r.GET("/subscriptions/:id/payments", ApiListSubscriptionPayments(orc))
}
