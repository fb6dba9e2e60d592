package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	subsvc "github.com/transitops/fareflow/internal/app/service/subscription"
	"github.com/transitops/fareflow/pkg/response"
)

type createSubscriptionRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	PlanID    string `json:"plan_id" binding:"required"`
	CardToken string `json:"card_token" binding:"required"`
	AutoRenew *bool  `json:"auto_renew"`
}

// @Summary      Create Subscription
// @Description  Creates a subscription and attempts the activating charge. A declined charge leaves the subscription pending.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        request body handlers.createSubscriptionRequest true "Create subscription request"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions [post]
func ApiCreateSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createSubscriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		autoRenew := true
		if req.AutoRenew != nil {
			autoRenew = *req.AutoRenew
		}
		sub, err := mgr.Create(c.Request.Context(), &subsvc.CreateRequest{
			UserID:    req.UserID,
			PlanID:    req.PlanID,
			CardToken: req.CardToken,
			AutoRenew: autoRenew,
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Get Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id} [get]
func ApiGetSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := mgr.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      List User Subscriptions
// @Tags         Subscription
// @Produce      json
// @Param        user_id path string true "User ID"
// @Success      200  {object}  handlers.RespSubscriptionList
// @Router       /api/v1/users/{user_id}/subscriptions [get]
func ApiListUserSubscriptions(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		subs, err := mgr.ListByUser(c.Request.Context(), c.Param("user_id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(subs))
	}
}

type retryPaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

// @Summary      Retry Activation Payment
// @Description  Re-attempts the activating charge of a pending subscription. Resending the same idempotency key replays the stored outcome.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body handlers.retryPaymentRequest false "Retry payment request"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/retry_payment [post]
func ApiRetryPayment(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req retryPaymentRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}
		sub, err := mgr.RetryPayment(c.Request.Context(), c.Param("id"), req.IdempotencyKey)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type renewSubscriptionRequest struct {
	CardToken string `json:"card_token"`
}

// @Summary      Renew Subscription
// @Description  Charges one plan period and extends coverage from the day after the current end date. An optional card token replaces the stored instrument.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body handlers.renewSubscriptionRequest false "Renew request"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/renew [post]
func ApiRenewSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req renewSubscriptionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}
		sub, err := mgr.Renew(c.Request.Context(), c.Param("id"), req.CardToken)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Pause Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/pause [post]
func ApiPauseSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := mgr.Pause(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Resume Subscription
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/resume [post]
func ApiResumeSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		sub, err := mgr.Resume(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

type cancelSubscriptionRequest struct {
	Reason          string `json:"reason"`
	RefundRequested bool   `json:"refund_requested"`
}

// @Summary      Cancel Subscription
// @Description  Cancels the subscription. A refund request is only recorded; the refund itself is a separate payment API call.
// @Tags         Subscription
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Param        request body handlers.cancelSubscriptionRequest false "Cancel request"
// @Success      200  {object}  handlers.RespSubscription
// @Router       /api/v1/subscriptions/{id}/cancel [post]
func ApiCancelSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cancelSubscriptionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
				return
			}
		}
		sub, err := mgr.Cancel(c.Request.Context(), c.Param("id"), req.Reason, req.RefundRequested)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(sub))
	}
}

// @Summary      Delete Subscription
// @Description  Soft-deletes a cancelled or expired subscription. The audit trail remains.
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/subscriptions/{id} [delete]
func ApiDeleteSubscription(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := mgr.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

// @Summary      Subscription History
// @Description  Returns the append-only audit trail of lifecycle transitions.
// @Tags         Subscription
// @Produce      json
// @Param        id path string true "Subscription ID"
// @Success      200  {object}  handlers.RespHistoryList
// @Router       /api/v1/subscriptions/{id}/history [get]
func ApiSubscriptionHistory(mgr *subsvc.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := mgr.History(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](codeFor(err), err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(entries))
	}
}

func RegisterSubscriptionRoutes(r gin.IRouter, mgr *subsvc.Manager) {
	r.POST("/subscriptions", ApiCreateSubscription(mgr))
	r.GET("/subscriptions/:id", ApiGetSubscription(mgr))
	r.DELETE("/subscriptions/:id", ApiDeleteSubscription(mgr))
	r.POST("/subscriptions/:id/retry_payment", ApiRetryPayment(mgr))
	r.POST("/subscriptions/:id/renew", ApiRenewSubscription(mgr))
	r.POST("/subscriptions/:id/pause", ApiPauseSubscription(mgr))
	r.POST("/subscriptions/:id/resume", ApiResumeSubscription(mgr))
	r.POST("/subscriptions/:id/cancel", ApiCancelSubscription(mgr))
	r.GET("/subscriptions/:id/history", ApiSubscriptionHistory(mgr))
	r.GET("/users/:user_id/subscriptions", ApiListUserSubscriptions(mgr))
}
