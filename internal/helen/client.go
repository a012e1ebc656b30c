package helen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/mtkorhonen/helen2mqtt/internal/config"
)

const (
	defaultAPIBaseURL = "https://api.omahelen.fi/v8"
	defaultLoginURL   = "https://login.helen.fi/api/login"

	userAgent = "helen2mqtt/1.0"

	maxRetries     = 3
	initialBackoff = 2 * time.Second

	// Tokens from the login endpoint carry an expires_in; captured browser
	// sessions don't, so assume a conservative lifetime for those.
	capturedSessionTTL = 30 * time.Minute
)

// Client talks to the Helen customer API for one account. It holds the
// session state (token, cookies, selected delivery site, cached contract
// data) for the lifetime of a poll cycle.
type Client struct {
	httpClient *http.Client
	apiBaseURL string
	loginURL   string

	username string
	password string

	vat    float64 // fraction, e.g. 0.255
	margin float64 // exchange margin, c/kWh

	accessToken   string
	sessionExpiry time.Time
	cookies       []config.Cookie

	siteID    string
	contracts []Contract

	// OnRequest, when set, is called after every API request with the
	// endpoint name and HTTP status (0 for transport failures).
	OnRequest func(endpoint string, status int)
}

// Option configures a Client
type Option func(*Client)

// WithVAT sets the VAT percentage applied to spot price costs
func WithVAT(percent float64) Option {
	return func(c *Client) { c.vat = percent / 100 }
}

// WithMargin sets the exchange contract margin in c/kWh
func WithMargin(margin float64) Option {
	return func(c *Client) { c.margin = margin }
}

// WithBaseURL overrides the API base URL
func WithBaseURL(u string) Option {
	return func(c *Client) { c.apiBaseURL = u }
}

// WithLoginURL overrides the login endpoint URL
func WithLoginURL(u string) Option {
	return func(c *Client) { c.loginURL = u }
}

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithSession seeds the client with a previously captured session
func WithSession(token string, cookies []config.Cookie) Option {
	return func(c *Client) {
		if token == "" {
			return
		}
		c.accessToken = token
		c.cookies = cookies
		c.sessionExpiry = time.Now().Add(capturedSessionTTL)
	}
}

// NewClient creates a Helen API client for the given credentials
func NewClient(username, password string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiBaseURL: defaultAPIBaseURL,
		loginURL:   defaultLoginURL,
		username:   username,
		password:   password,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Margin returns the exchange margin the client was configured with
func (c *Client) Margin() float64 {
	return c.margin
}

// SiteID returns the currently selected delivery site id
func (c *Client) SiteID() string {
	return c.siteID
}

// IsSessionValid reports whether the client still has a usable session
func (c *Client) IsSessionValid() bool {
	return c.accessToken != "" && time.Now().Before(c.sessionExpiry)
}

// Close drops the session state. The client can be reused; the next API
// call will log in again.
func (c *Client) Close() {
	c.accessToken = ""
	c.sessionExpiry = time.Time{}
	c.cookies = nil
	c.contracts = nil
}

// Login authenticates against the Helen login service and stores the
// session token. Rejected credentials return *AuthError.
func (c *Client) Login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return fmt.Errorf("encoding login payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.loginURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe("login", 0)
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()
	c.observe("login", resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading login response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &AuthError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("authentication failed (status %d): %s", resp.StatusCode, string(body)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("parsing login response: %w", err)
	}
	if result.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode, Message: "login succeeded but no access token was returned"}
	}

	c.accessToken = result.AccessToken
	if result.ExpiresIn > 0 {
		c.sessionExpiry = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	} else {
		c.sessionExpiry = time.Now().Add(capturedSessionTTL)
	}
	for _, hc := range resp.Cookies() {
		c.cookies = append(c.cookies, config.Cookie{
			Name:   hc.Name,
			Value:  hc.Value,
			Domain: hc.Domain,
			Path:   hc.Path,
		})
	}
	c.contracts = nil
	return nil
}

// ensureSession logs in when the current session is stale
func (c *Client) ensureSession(ctx context.Context) error {
	if c.IsSessionValid() {
		return nil
	}
	return c.Login(ctx)
}

// getJSON performs an authenticated GET with retry on transient failures.
// 401/403 surfaces immediately as *AuthError; 429 and 5xx retry with
// jittered exponential backoff, honoring Retry-After.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out any) error {
	if err := c.ensureSession(ctx); err != nil {
		return err
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + time.Duration(rand.Int63n(int64(time.Second)))):
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		for _, cookie := range c.cookies {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.observe(endpoint, 0)
			lastErr = fmt.Errorf("making request: %w", err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		c.observe(endpoint, resp.StatusCode)
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("authentication failed (status %d): %s", resp.StatusCode, string(body)),
			}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = &APIError{StatusCode: resp.StatusCode, Body: string(body)}
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
					backoff = time.Duration(secs) * time.Second
				}
			}
			continue
		case resp.StatusCode != http.StatusOK:
			return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parsing %s response: %w", endpoint, err)
		}
		return nil
	}

	return fmt.Errorf("%s request failed after %d attempts: %w", endpoint, maxRetries+1, lastErr)
}

func (c *Client) observe(endpoint string, status int) {
	if c.OnRequest != nil {
		c.OnRequest(endpoint, status)
	}
}
