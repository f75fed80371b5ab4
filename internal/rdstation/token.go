package rdstation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrMissingToken is returned when no stored OAuth token exists; the
// interactive login flow must be run once to seed the token file.
var ErrMissingToken = errors.New("rdstation: token file missing, run the OAuth login flow")

// Token is the persisted OAuth state. ExpiresAt is a Unix timestamp
// computed from expires_in at save time.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

func (t *Token) expired(now time.Time) bool {
	if t.ExpiresAt == 0 {
		return true
	}
	return now.Unix() >= t.ExpiresAt-60
}

func (c *Client) loadToken() (*Token, error) {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrMissingToken
		}
		return nil, fmt.Errorf("rdstation: read token: %w", err)
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("rdstation: parse token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, ErrMissingToken
	}
	return &tok, nil
}

func (c *Client) saveToken(tok *Token) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o755); err != nil {
		return fmt.Errorf("rdstation: token dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("rdstation: marshal token: %w", err)
	}
	if err := os.WriteFile(c.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("rdstation: write token: %w", err)
	}
	return nil
}

// ensureToken returns a valid access token, refreshing and persisting
// it when the stored one is missing an expiry or within a minute of it.
func (c *Client) ensureToken(ctx context.Context) (*Token, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	tok, err := c.loadToken()
	if err != nil {
		return nil, err
	}
	if !tok.expired(time.Now()) {
		return tok, nil
	}
	return c.refreshToken(ctx, tok)
}

func (c *Client) refreshToken(ctx context.Context, old *Token) (*Token, error) {
	payload, err := json.Marshal(map[string]string{
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"refresh_token": old.RefreshToken,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return nil, fmt.Errorf("rdstation: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("rdstation: token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rdstation: refresh token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rdstation: refresh token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("rdstation: decode token response: %w", err)
	}

	tok := &Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresIn:    body.ExpiresIn,
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = old.RefreshToken
	}
	if tok.ExpiresIn > 0 {
		tok.ExpiresAt = time.Now().Unix() + tok.ExpiresIn
	}
	if err := c.saveToken(tok); err != nil {
		return nil, err
	}
	return tok, nil
}
