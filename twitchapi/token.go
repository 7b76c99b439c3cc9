package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultAuthURL = "https://id.twitch.tv/oauth2/token"

// ttlSafetyFraction shrinks the platform-declared token lifetime so a cached
// token is never presented inside its true expiry window.
const ttlSafetyFraction = 0.9

// demoTokenLifetime is the nominal lifetime of the substituted built-in token.
const demoTokenLifetime = 24 * time.Hour

// TokenSource fetches and caches a Twitch app access (client credentials) token
// for one identity. The cache is owned by the instance, not package state, so
// multiple credential profiles never cross-talk.
type TokenSource struct {
	AuthURL    string // defaults to the Twitch token endpoint
	HTTPClient *http.Client

	mu        sync.RWMutex
	identity  Identity
	token     string
	expiresAt time.Time
}

// NewTokenSource returns a token source bound to the given identity.
func NewTokenSource(id Identity) *TokenSource {
	return &TokenSource{identity: id}
}

// Identity returns the identity the source currently authenticates as.
func (ts *TokenSource) Identity() Identity {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.identity
}

// SetIdentity swaps the identity and invalidates any cached token so the next
// call re-authenticates with the new credentials.
func (ts *TokenSource) SetIdentity(id Identity) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.identity = id
	ts.token = ""
	ts.expiresAt = time.Time{}
}

// Invalidate drops the cached token, forcing re-authentication on next Get.
func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expiresAt = time.Time{}
}

// Get returns a valid (fresh or cached) app access token. The built-in
// identity never performs a real exchange: the anonymous surfaces it ends up
// on do not validate bearer tokens, so a demo token is substituted instead.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Now().Before(ts.expiresAt) {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Now().Before(ts.expiresAt) {
		return ts.token, nil
	}

	if ts.identity.BuiltIn() {
		ts.token = "demo-app-token"
		ts.expiresAt = time.Now().Add(demoTokenLifetime)
		return ts.token, nil
	}

	if ts.identity.ClientID == "" {
		return "", ErrMissingClientID
	}
	form := url.Values{}
	form.Set("client_id", ts.identity.ClientID)
	if ts.identity.ClientSecret != "" {
		form.Set("client_secret", ts.identity.ClientSecret)
	}
	form.Set("grant_type", "client_credentials")
	authURL := ts.AuthURL
	if authURL == "" {
		authURL = defaultAuthURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	hc := ts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", upstreamErr("token request", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", upstreamErr("token request", &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(b))})
	}
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&at); err != nil {
		return "", upstreamErr("token decode", err)
	}
	if at.AccessToken == "" {
		return "", upstreamErr("token decode", errors.New("empty access_token in twitch response"))
	}
	ts.token = at.AccessToken
	ts.expiresAt = time.Now().Add(shrinkTTL(at.ExpiresIn))
	return ts.token, nil
}

// shrinkTTL applies the safety margin to the declared lifetime.
func shrinkTTL(expiresIn int) time.Duration {
	d := time.Duration(expiresIn) * time.Second
	return time.Duration(float64(d) * ttlSafetyFraction)
}
