package token

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"carelink/pkg/logger"
)

const (
	healthTimeout  = 10 * time.Second
	acquireTimeout = 10 * time.Second
)

// TokenRequest is the wire body of POST /token.
type TokenRequest struct {
	ChannelName   string `json:"channelName"`
	UID           uint32 `json:"uid"`
	Role          string `json:"role"`
	ExpireSeconds int    `json:"expireSeconds"`
}

// TokenResponse is the wire body the issuer returns.
type TokenResponse struct {
	Token       string `json:"token"`
	AppID       string `json:"appId"`
	ChannelName string `json:"channelName"`
	UID         uint32 `json:"uid"`
	ExpireTime  int64  `json:"expireTime"`
}

// Client talks to the external token issuing service. Both operations
// degrade instead of propagating failures: callers treat a false health
// probe or a nil token as "join without a token" or "abort", never as a
// crash path.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

func NewClient(baseURL string, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: acquireTimeout},
		log:     log,
	}
}

// CheckServiceHealth probes GET /health with a bounded timeout. It never
// returns an error: any network failure, timeout, or non-2xx is false.
func (c *Client) CheckServiceHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("token service health probe failed: %v", err)
		}
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// AcquireToken requests a signed join credential. Returns nil on any
// failure; a nil token means the caller proceeds with the unauthenticated
// fallback join or aborts, by its own policy.
func (c *Client) AcquireToken(ctx context.Context, channelName string, uid uint32, role string, ttlSeconds int) *string {
	body, err := json.Marshal(TokenRequest{
		ChannelName:   channelName,
		UID:           uid,
		Role:          role,
		ExpireSeconds: ttlSeconds,
	})
	if err != nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("token acquisition failed for channel %s: %v", channelName, err)
		}
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Warnf("token service returned %d for channel %s", resp.StatusCode, channelName)
		}
		return nil
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil || tr.Token == "" {
		return nil
	}
	return &tr.Token
}
