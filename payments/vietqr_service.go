package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anjiri1684/homestay_booking/services"
)

const quickLinkBaseURL = "https://img.vietqr.io/image"

type vietQRGenerateRequest struct {
	AccountNo   string `json:"accountNo"`
	AccountName string `json:"accountName"`
	AcqID       int    `json:"acqId"`
	Amount      int64  `json:"amount"`
	AddInfo     string `json:"addInfo"`
	Format      string `json:"format"`
	Template    string `json:"template"`
}

type vietQRGenerateResponse struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
	Data struct {
		QRCode    string `json:"qrCode"`
		QRDataURL string `json:"qrDataURL"`
	} `json:"data"`
}

// VietQRClient renders bank-transfer QR codes. Without API credentials it
// falls back to a VietQR quick link, which needs no request at all.
type VietQRClient struct {
	BaseURL    string
	ClientID   string
	APIKey     string
	Template   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

func NewVietQRClient(baseURL, clientID, apiKey, template string, logger *zap.Logger) *VietQRClient {
	return &VietQRClient{
		BaseURL:    baseURL,
		ClientID:   clientID,
		APIKey:     apiKey,
		Template:   template,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
	}
}

func (c *VietQRClient) Generate(ctx context.Context, req services.QRRequest) (string, error) {
	if req.Amount <= 0 {
		return "", fmt.Errorf("qr amount must be positive")
	}
	if req.Account.BankID == "" || req.Account.AccountNo == "" {
		return "", fmt.Errorf("receiving bank account is not configured")
	}
	if c.ClientID == "" {
		return c.quickLink(req), nil
	}
	return c.generate(ctx, req)
}

func (c *VietQRClient) quickLink(req services.QRRequest) string {
	q := url.Values{}
	q.Set("amount", strconv.FormatInt(req.Amount, 10))
	q.Set("addInfo", req.Reference)
	if req.Account.AccountName != "" {
		q.Set("accountName", req.Account.AccountName)
	}
	return fmt.Sprintf("%s/%s-%s-%s.png?%s",
		quickLinkBaseURL,
		url.PathEscape(req.Account.BankID),
		url.PathEscape(req.Account.AccountNo),
		url.PathEscape(c.Template),
		q.Encode(),
	)
}

func (c *VietQRClient) generate(ctx context.Context, req services.QRRequest) (string, error) {
	acqID, err := strconv.Atoi(req.Account.BankID)
	if err != nil {
		return "", fmt.Errorf("bank id %q is not a BIN: %w", req.Account.BankID, err)
	}

	body, err := json.Marshal(vietQRGenerateRequest{
		AccountNo:   req.Account.AccountNo,
		AccountName: req.Account.AccountName,
		AcqID:       acqID,
		Amount:      req.Amount,
		AddInfo:     req.Reference,
		Format:      "text",
		Template:    c.Template,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal qr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v2/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create qr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.ClientID)
	httpReq.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send qr request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read qr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.Logger.Warn("vietqr api error", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
		return "", fmt.Errorf("vietqr api returned non-200 status: %d", resp.StatusCode)
	}

	var out vietQRGenerateResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to unmarshal qr response: %w", err)
	}
	if out.Code != "00" {
		return "", fmt.Errorf("vietqr generation failed: %s", out.Desc)
	}
	if out.Data.QRDataURL != "" {
		return out.Data.QRDataURL, nil
	}
	if out.Data.QRCode == "" {
		return "", fmt.Errorf("vietqr returned an empty payload")
	}
	return out.Data.QRCode, nil
}
