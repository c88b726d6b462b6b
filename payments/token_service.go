package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// tokenRefreshMargin is subtracted from the provider's expiry so a cached
// token is never used in its last minutes.
const tokenRefreshMargin = 300 * time.Second

// TokenSource fetches and caches a client-credentials access token.
type TokenSource struct {
	URL          string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
	Logger       *zap.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time
	now    func() time.Time
}

func NewTokenSource(url, clientID, clientSecret string, client *http.Client, logger *zap.Logger) *TokenSource {
	return &TokenSource{
		URL:          url,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   client,
		Logger:       logger,
		now:          time.Now,
	}
}

func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.token != "" && s.now().Before(s.expiry) {
		token := s.token
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expiry) {
		return s.token, nil
	}

	s.Logger.Debug("fetching payout access token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.ClientID, s.ClientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned non-200 status: %s", resp.Status)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}

	s.token = tokenResp.AccessToken
	s.expiry = s.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - tokenRefreshMargin)
	return s.token, nil
}

// Invalidate drops the cached token after the provider rejected it.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}
