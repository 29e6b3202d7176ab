// Package auth obtains and caches OAuth2 access tokens for the agent
// gateway using the client-credentials flow. The token is cached
// process-wide and refreshed lazily once it is within the expiry margin.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Ammar793/realestate-backend/internal/metrics"
)

// DefaultExpiryMargin is subtracted from the declared token lifetime; a
// token inside the margin is treated as already expired.
const DefaultExpiryMargin = 5 * time.Minute

// TokenSource hands out valid bearer tokens for the configured client.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	margin       time.Duration
	httpClient   *http.Client
	logger       *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource creates a token source. margin <= 0 uses the default.
func NewTokenSource(tokenURL, clientID, clientSecret string, margin time.Duration, logger *zap.Logger) *TokenSource {
	if margin <= 0 {
		margin = DefaultExpiryMargin
	}
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		margin:       margin,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// Token returns a valid access token, refreshing it when the cached one is
// past its margin. Safe for concurrent use; refreshes are single-flight
// under the mutex.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt.Add(-s.margin)) {
		return s.token, nil
	}
	return s.fetchLocked(ctx)
}

// AuthHeaders returns request headers carrying a valid bearer token.
func (s *TokenSource) AuthHeaders(ctx context.Context) (map[string]string, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization": "Bearer " + tok,
		"Content-Type":  "application/json",
	}, nil
}

// Valid reports whether the cached token is still inside its margin.
func (s *TokenSource) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && time.Now().Before(s.expiresAt.Add(-s.margin))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (s *TokenSource) fetchLocked(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("token request failed: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("token response missing access_token")
	}

	s.token = tr.AccessToken
	s.expiresAt = expiryFor(tr)
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()

	s.logger.Info("Refreshed access token",
		zap.Time("expires_at", s.expiresAt),
	)
	return s.token, nil
}

// expiryFor derives the token expiry. expires_in wins; when the issuer omits
// it, fall back to the token's own exp claim, then to one hour.
func expiryFor(tr tokenResponse) time.Time {
	if tr.ExpiresIn > 0 {
		return time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(tr.AccessToken); ok {
		return exp
	}
	return time.Now().Add(time.Hour)
}

func jwtExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	// Signature verification is the gateway's job; we only need exp.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
