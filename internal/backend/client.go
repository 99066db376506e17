// Package backend is the client for the wallet sign-in function-call API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ahwlsqja/walletlogin/internal/common/errors"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	PathNewNonce = "wallet/new-nonce"
	PathSignIn   = "wallet/sign-in"
	PathLogout   = "wallet/logout"
	PathMe       = "wallet/me"

	defaultTimeout = 15 * time.Second
	maxBodySize    = 1 << 20
)

// Client calls backend functions over HTTP. Every response is expected in
// the server's {"data": ...} / {"error": {...}} envelope.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a client for the API rooted at baseURL (e.g. http://host/api)
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// CallFunction POSTs body as JSON to path and decodes the envelope's data
// into out. out may be nil when the function returns nothing.
func (c *Client) CallFunction(ctx context.Context, path string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, "", body, out)
}

// CallFunctionWithToken is CallFunction with a bearer session token
func (c *Client) CallFunctionWithToken(ctx context.Context, path, token string, body, out any) error {
	return c.call(ctx, http.MethodPost, path, token, body, out)
}

func (c *Client) call(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	url := c.baseURL + "/" + strings.TrimLeft(path, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	c.logger.Debug("backend call",
		zap.String("request_id", requestID),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(path, resp.StatusCode, raw)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	data := gjson.GetBytes(raw, "data")
	if !data.Exists() {
		return fmt.Errorf("%s response has no data field", path)
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns an error envelope into an *errors.AppError carrying the
// server's code, so callers can match it with errors.Is.
func decodeError(path string, status int, raw []byte) error {
	if !gjson.ValidBytes(raw) {
		return errors.Backend("", fmt.Sprintf("%s failed with status %d", path, status), status)
	}
	body := gjson.GetBytes(raw, "error")
	message := body.Get("message").String()
	if message == "" {
		message = fmt.Sprintf("%s failed with status %d", path, status)
	}
	return errors.Backend(body.Get("code").String(), message, status)
}

// ============================================================================
// Wallet functions
// ============================================================================

// NewNonce requests the one-time nonce for walletAddress
func (c *Client) NewNonce(ctx context.Context, walletAddress string) (string, error) {
	var out struct {
		Nonce string `json:"nonce"`
	}
	if err := c.CallFunction(ctx, PathNewNonce, map[string]string{"walletAddress": walletAddress}, &out); err != nil {
		return "", err
	}
	if out.Nonce == "" {
		return "", fmt.Errorf("%s returned an empty nonce", PathNewNonce)
	}
	return out.Nonce, nil
}

// SignIn exchanges a signed login message for a session token
func (c *Client) SignIn(ctx context.Context, walletAddress, signedMessage string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{
		"walletAddress": walletAddress,
		"signedMessage": signedMessage,
	}
	if err := c.CallFunction(ctx, PathSignIn, body, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%s returned an empty token", PathSignIn)
	}
	return out.Token, nil
}

// Logout revokes the session behind token
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.CallFunctionWithToken(ctx, PathLogout, token, nil, nil)
}

// SessionInfo is the backend's view of a session token
type SessionInfo struct {
	WalletAddress string    `json:"walletAddress"`
	SessionID     string    `json:"sessionId"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Me describes the session behind token
func (c *Client) Me(ctx context.Context, token string) (*SessionInfo, error) {
	var out SessionInfo
	if err := c.call(ctx, http.MethodGet, PathMe, token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
