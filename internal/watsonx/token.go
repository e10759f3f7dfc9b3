package watsonx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apikeyGrantType = "urn:ibm:params:oauth:grant-type:apikey"

// AuthError indicates the IAM credential exchange failed. It is fatal for the
// current operation and is never retried inside this package.
type AuthError struct {
	StatusCode int
	Reason     string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("iam token exchange failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("iam token exchange failed: %s", e.Reason)
}

// TokenSource exchanges a long-lived API key for a short-lived bearer token.
// Each call performs a fresh exchange; failures are never cached.
type TokenSource struct {
	apiKey     string
	tokenURL   string
	httpClient *http.Client
}

// NewTokenSource creates a token source for the given identity endpoint.
func NewTokenSource(apiKey, tokenURL string, timeout time.Duration) *TokenSource {
	return &TokenSource{
		apiKey:     apiKey,
		tokenURL:   tokenURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Token performs one synchronous exchange and returns the bearer token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", apikeyGrantType)
	form.Set("apikey", s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{StatusCode: resp.StatusCode}
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &AuthError{Reason: fmt.Sprintf("decode response: %v", err)}
	}
	if body.AccessToken == "" {
		return "", &AuthError{Reason: "missing access_token in response"}
	}
	return body.AccessToken, nil
}
