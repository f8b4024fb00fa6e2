package meegle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenMargin is how long before expiry a cached token is replaced.
const DefaultTokenMargin = 5 * time.Minute

// defaultTokenTTL applies when the exchange omits the expiry.
const defaultTokenTTL = 2 * time.Hour

// reuseExpiryDelta is the slack oauth2 applies on top of the refresh
// deadline the exchanger reports.
const reuseExpiryDelta = time.Second

// Credentials is the app id/secret pair exchanged for a tenant token.
type Credentials struct {
	AppID     string
	AppSecret string
}

// Empty reports whether either half of the pair is missing.
func (c Credentials) Empty() bool {
	return c.AppID == "" || c.AppSecret == ""
}

// Authenticator owns the cached bearer token.
//
// The token is fetched on first use and replaced a safety margin before it
// expires. The margin is capped at half the token's lifetime, so a short
// lived token is still reused. Refresh goes through oauth2.ReuseTokenSourceWithExpiry, which
// holds a mutex across the exchange, so concurrent callers share a single
// credential exchange per expiry window.
type Authenticator struct {
	source oauth2.TokenSource
}

// NewAuthenticator creates an Authenticator that exchanges creds at tokenURL.
func NewAuthenticator(tokenURL string, creds Credentials, hc *http.Client, margin time.Duration) *Authenticator {
	if hc == nil {
		hc = http.DefaultClient
	}
	ex := &exchanger{url: tokenURL, creds: creds, http: hc, margin: margin, now: time.Now}
	return &Authenticator{source: oauth2.ReuseTokenSourceWithExpiry(nil, ex, reuseExpiryDelta)}
}

// Token returns a valid bearer token, exchanging credentials if needed.
func (a *Authenticator) Token() (string, error) {
	tok, err := a.source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// exchanger performs one credential exchange per call.
type exchanger struct {
	url    string
	creds  Credentials
	http   *http.Client
	margin time.Duration
	now    func() time.Time
}

type tokenRequest struct {
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
}

type tokenResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Token  string `json:"tenant_access_token"`
	Expire int64  `json:"expire"` // seconds
}

// Token implements oauth2.TokenSource.
func (e *exchanger) Token() (*oauth2.Token, error) {
	body, err := json.Marshal(tokenRequest{AppID: e.creds.AppID, AppSecret: e.creds.AppSecret})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("token exchange: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Op: "token exchange", Status: resp.StatusCode, Message: string(raw)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("token exchange: decode: %w", err)
	}
	if tr.Code != 0 {
		return nil, &APIError{Op: "token exchange", Status: resp.StatusCode, Code: tr.Code, Message: tr.Msg}
	}
	if tr.Token == "" {
		return nil, &APIError{Op: "token exchange", Status: resp.StatusCode, Message: "empty token"}
	}

	ttl := time.Duration(tr.Expire) * time.Second
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	// Expiry carries the refresh deadline rather than the real expiry.
	return &oauth2.Token{
		AccessToken: tr.Token,
		TokenType:   "Bearer",
		Expiry:      e.now().Add(ttl - min(e.margin, ttl/2)),
	}, nil
}
