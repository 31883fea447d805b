package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"contactd/internal/clientip"
	"contactd/internal/models"
)

// DefaultVerifyURL is Google's siteverify endpoint.
const DefaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// maxResponseBytes bounds how much of the siteverify body is read.
const maxResponseBytes = 64 << 10

// ErrMissingSecret is returned when the client has no shared secret.
var ErrMissingSecret = errors.New("captcha secret is not configured")

// Client is the production Verifier backed by the siteverify API.
type Client struct {
	secret     string
	verifyURL  string
	httpClient *http.Client
}

// NewClient creates a siteverify client. A zero timeout falls back to 10s.
func NewClient(cfg models.CaptchaConfig) *Client {
	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		secret:     cfg.Secret,
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify posts the secret and token (plus the client address when known)
// and decodes the verdict. Non-2xx answers and undecodable bodies are errors.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (*Verdict, error) {
	if c.secret == "" {
		return nil, ErrMissingSecret
	}

	form := url.Values{
		"secret":   {c.secret},
		"response": {token},
	}
	if remoteIP != "" && remoteIP != clientip.Unknown {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call siteverify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
	}

	var verdict Verdict
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&verdict); err != nil {
		return nil, fmt.Errorf("failed to decode siteverify response: %w", err)
	}
	return &verdict, nil
}

// Configured reports whether the client has a secret.
func (c *Client) Configured() bool {
	return c.secret != ""
}
