package kpler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Token is a bearer token with its refresh credential.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t Token) valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-tokenLeeway))
}

// Authenticator drives the interactive login flow and the refresh-token
// exchange. The login implementation (headless browser against the vendor's
// SSO) is supplied by the caller; long jobs must tolerate rotation mid-job.
type Authenticator interface {
	Login(ctx context.Context) (Token, error)
	Refresh(ctx context.Context, refreshToken string) (Token, error)
}

// tokenSource caches the current token and serialises renewals. A refresh is
// attempted once the token is within the expiry leeway; on refresh failure a
// full re-login runs.
type tokenSource struct {
	mu      sync.Mutex
	auth    Authenticator
	current Token
}

func newTokenSource(auth Authenticator) *tokenSource {
	return &tokenSource{auth: auth}
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if s.current.valid(now) {
		return s.current.AccessToken, nil
	}

	if s.current.RefreshToken != "" {
		refreshed, err := s.auth.Refresh(ctx, s.current.RefreshToken)
		if err == nil && refreshed.AccessToken != "" {
			s.current = refreshed
			return s.current.AccessToken, nil
		}
	}

	token, err := s.auth.Login(ctx)
	if err != nil {
		return "", fmt.Errorf("kpler: login: %w", err)
	}
	s.current = token
	return s.current.AccessToken, nil
}

// ForceLogin discards the cached token after a 401.
func (s *tokenSource) ForceLogin(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.auth.Login(ctx)
	if err != nil {
		return err
	}
	s.current = token
	return nil
}

// PasswordAuthenticator exchanges the account credentials (email, password,
// OTP seed) against the auth endpoint. It stands in where no headless-browser
// driver is wired; the token endpoints are OAuth-shaped.
type PasswordAuthenticator struct {
	AuthURL  string
	Email    string
	Password string
	OTPSeed  string
	Client   *http.Client
}

func NewPasswordAuthenticator(authURL, email, password, otpSeed string) *PasswordAuthenticator {
	return &PasswordAuthenticator{
		AuthURL:  strings.TrimRight(authURL, "/"),
		Email:    email,
		Password: password,
		OTPSeed:  otpSeed,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

func (a *PasswordAuthenticator) Login(ctx context.Context) (Token, error) {
	payload := map[string]string{
		"grant_type": "password",
		"username":   a.Email,
		"password":   a.Password,
	}
	if a.OTPSeed != "" {
		payload["otp_seed"] = a.OTPSeed
	}
	return a.exchange(ctx, payload)
}

func (a *PasswordAuthenticator) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	return a.exchange(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

func (a *PasswordAuthenticator) exchange(ctx context.Context, payload map[string]string) (Token, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Token{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.AuthURL+"/token", bytes.NewReader(body))
	if err != nil {
		return Token{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(req)
	if err != nil {
		return Token{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("kpler: token exchange failed (%s): %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Token{}, err
	}
	if parsed.AccessToken == "" {
		return Token{}, fmt.Errorf("kpler: token exchange returned no access token")
	}
	expiresIn := parsed.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
