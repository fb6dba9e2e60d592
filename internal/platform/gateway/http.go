package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	cfgpkg "github.com/transitops/fareflow/pkg/config"
)

// httpGateway talks JSON over HTTP to the payment provider. Every call
// carries a per-request timeout and goes through a circuit breaker so a
// misbehaving provider cannot pile up blocked callers.
type httpGateway struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*http.Response]
	log     *zap.SugaredLogger
}

func newHTTPGateway(cfg cfgpkg.GatewayConfig, log *zap.SugaredLogger) *httpGateway {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("payment gateway breaker state changed", "from", from.String(), "to", to.String())
		},
	}
	return &httpGateway{
		client:  &http.Client{Timeout: cfg.Timeout()},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout(),
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		log:     log,
	}
}

type chargeRequest struct {
	CardToken      string          `json:"card_token"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	IdempotencyKey string          `json:"idempotency_key"`
}

type chargeResponse struct {
	Paid          bool   `json:"paid"`
	TxnID         string `json:"txn_id"`
	FailureReason string `json:"failure_reason"`
	CardLast4     string `json:"card_last4"`
	CardBrand     string `json:"card_brand"`
}

type refundRequest struct {
	TxnID  string          `json:"txn_id"`
	Amount decimal.Decimal `json:"amount"`
}

type refundResponse struct {
	Status        string `json:"status"`
	RefundID      string `json:"refund_id"`
	FailureReason string `json:"failure_reason"`
}

func (g *httpGateway) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode gateway request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.breaker.Execute(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
		res, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			res.Body.Close()
			return nil, fmt.Errorf("gateway returned status %d", res.StatusCode)
		}
		return res, nil
	})
	if err != nil {
		return fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}

func (g *httpGateway) Charge(ctx context.Context, cardToken string, amount decimal.Decimal, currency, idempotencyKey string) (*ChargeResult, error) {
	var out chargeResponse
	err := g.post(ctx, "/v1/charges", chargeRequest{
		CardToken:      cardToken,
		Amount:         amount,
		Currency:       currency,
		IdempotencyKey: idempotencyKey,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &ChargeResult{
		Success:       out.Paid,
		ExternalTxnID: out.TxnID,
		FailureReason: out.FailureReason,
		CardLast4:     out.CardLast4,
		CardBrand:     out.CardBrand,
	}, nil
}

func (g *httpGateway) Refund(ctx context.Context, externalTxnID string, amount decimal.Decimal) (*RefundResult, error) {
	var out refundResponse
	err := g.post(ctx, "/v1/refunds", refundRequest{TxnID: externalTxnID, Amount: amount}, &out)
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		Success:       out.Status == "succeeded",
		RefundID:      out.RefundID,
		FailureReason: out.FailureReason,
	}, nil
}
