package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anjiri1684/homestay_booking/services"
)

type payoutRequest struct {
	ReferenceID string `json:"reference_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Purpose     string `json:"purpose"`
	Description string `json:"description"`
}

type payoutResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HTTPPayoutGateway sends payouts to the payout provider's REST API.
type HTTPPayoutGateway struct {
	BaseURL    string
	Tokens     *TokenSource
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewHTTPPayoutGateway(baseURL, clientID, clientSecret string, logger *zap.Logger) *HTTPPayoutGateway {
	client := &http.Client{Timeout: 15 * time.Second}
	return &HTTPPayoutGateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Tokens:     NewTokenSource(strings.TrimRight(baseURL, "/")+"/v1/oauth2/token", clientID, clientSecret, client, logger),
		HTTPClient: client,
		Logger:     logger,
	}
}

// Transfer is idempotent per payout: the payout id is the idempotency key, so
// a retried attempt never pays twice at the provider.
func (g *HTTPPayoutGateway) Transfer(ctx context.Context, req services.TransferRequest) (*services.TransferReceipt, error) {
	if g.BaseURL == "" {
		return nil, fmt.Errorf("payout provider is not configured")
	}

	token, err := g.Tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout access token: %w", err)
	}

	body, err := json.Marshal(payoutRequest{
		ReferenceID: req.PayoutID.String(),
		Amount:      req.Amount,
		Currency:    "VND",
		Purpose:     req.Kind,
		Description: fmt.Sprintf("%s %s", req.Kind, req.Reference),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/v1/payouts", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Idempotency-Key", req.PayoutID.String())

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send payout: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payout response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		g.Tokens.Invalidate()
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		g.Logger.Warn("payout api error", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		return nil, fmt.Errorf("payout api returned non-2xx status: %d", resp.StatusCode)
	}

	var out payoutResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payout response: %w", err)
	}
	switch strings.ToLower(out.Status) {
	case "failed", "rejected", "cancelled":
		return nil, fmt.Errorf("payout %s: %s", out.Status, out.Message)
	}

	return &services.TransferReceipt{ProviderRef: out.ID, Raw: respBody}, nil
}
