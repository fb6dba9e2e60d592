package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/transitops/fareflow/internal/app/service/history"
	paysvc "github.com/transitops/fareflow/internal/app/service/payment"
	subsvc "github.com/transitops/fareflow/internal/app/service/subscription"
	"github.com/transitops/fareflow/internal/models"
	"github.com/transitops/fareflow/internal/platform/gateway"
	"github.com/transitops/fareflow/internal/repository/repotest"
	cfgpkg "github.com/transitops/fareflow/pkg/config"
	"github.com/transitops/fareflow/pkg/response"
	"github.com/transitops/fareflow/pkg/tool"
)

type okGateway struct{}

func (okGateway) Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*gateway.ChargeResult, error) {
	return &gateway.ChargeResult{Success: true, ExternalTxnID: "txn_test", CardLast4: "4242", CardBrand: "Visa"}, nil
}

func (okGateway) Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{Success: true, RefundID: "re_test"}, nil
}

type silentPublisher struct{}

func (silentPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	return nil
}

func (silentPublisher) Close() error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *models.Plan) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repotest.New()
	log := zap.NewNop().Sugar()
	cfg := &cfgpkg.Config{Gateway: cfgpkg.GatewayConfig{TimeoutSeconds: 2}}
	orc := paysvc.NewOrchestrator(store, okGateway{}, silentPublisher{}, cfg, log)
	mgr := subsvc.NewManager(store, orc, history.NewLedger(store, log), silentPublisher{}, log)

	plan := &models.Plan{
		ID:           tool.GenerateUUIDV7(),
		Code:         "monthly-zone-1",
		Name:         "Monthly Zone 1",
		Price:        decimal.RequireFromString("49.90"),
		Currency:     "EUR",
		DurationDays: 30,
		IsActive:     true,
	}
	store.SeedPlan(plan)

	r := gin.New()
	g := r.Group("/api/v1")
	RegisterSubscriptionRoutes(g, mgr)
	return r, plan
}

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *envelope {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return &env
}

func TestApiCreateSubscription_FullLifecycleOverHTTP(t *testing.T) {
	r, plan := newTestRouter(t)
	userID := tool.GenerateUUIDV7()

	env := doJSON(t, r, http.MethodPost, "/api/v1/subscriptions", gin.H{
		"user_id":    userID,
		"plan_id":    plan.ID,
		"card_token": "tok_visa",
	})
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	var sub models.Subscription
	require.NoError(t, json.Unmarshal(env.Data, &sub))
	require.Equal(t, "active", string(sub.Status))
	require.NotEmpty(t, sub.ID)

	env = doJSON(t, r, http.MethodGet, "/api/v1/subscriptions/"+sub.ID, nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	env = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/subscriptions/%s/pause", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	env = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/subscriptions/%s/resume", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	env = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/subscriptions/%s/cancel", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	env = doJSON(t, r, http.MethodGet, fmt.Sprintf("/api/v1/subscriptions/%s/history", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var entries []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 4)
}

func TestApiCreateSubscription_UnknownPlanMapsToNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	env := doJSON(t, r, http.MethodPost, "/api/v1/subscriptions", gin.H{
		"user_id":    tool.GenerateUUIDV7(),
		"plan_id":    tool.GenerateUUIDV7(),
		"card_token": "tok_visa",
	})
	require.Equal(t, response.APIResponseCodeNotFound, env.Code)
}

func TestApiCreateSubscription_MissingFieldsMapToBadRequest(t *testing.T) {
	r, _ := newTestRouter(t)

	env := doJSON(t, r, http.MethodPost, "/api/v1/subscriptions", gin.H{"user_id": "u"})
	require.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestApiCancelSubscription_TerminalMapsToConflict(t *testing.T) {
	r, plan := newTestRouter(t)

	env := doJSON(t, r, http.MethodPost, "/api/v1/subscriptions", gin.H{
		"user_id":    tool.GenerateUUIDV7(),
		"plan_id":    plan.ID,
		"card_token": "tok_visa",
	})
	var sub models.Subscription
	require.NoError(t, json.Unmarshal(env.Data, &sub))

	env = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/subscriptions/%s/cancel", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeOK, env.Code)

	env = doJSON(t, r, http.MethodPost, fmt.Sprintf("/api/v1/subscriptions/%s/cancel", sub.ID), nil)
	require.Equal(t, response.APIResponseCodeConflict, env.Code)
}
