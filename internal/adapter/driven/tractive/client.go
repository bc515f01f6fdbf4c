// Package tractive implements the AccountClient port against the Tractive
// cloud API.
package tractive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ericfisherdev/petlink/internal/domain/port/driven"
)

// DefaultBaseURL is the production Tractive API root.
const DefaultBaseURL = "https://graph.tractive.com/4/"

// DefaultClientID identifies this application to the Tractive API.
const DefaultClientID = "5728aa1fc9077f7c32000186"

// ErrClientClosed is returned when a closed client is used.
var ErrClientClosed = errors.New("tractive client closed")

// Compile-time interface satisfaction check.
var _ driven.AccountClient = (*Client)(nil)

// Options configures the HTTP transport shared by clients from one Factory.
type Options struct {
	BaseURL  string
	ClientID string
	Timeout  time.Duration
	RetryMax int
	// HTTPClient overrides the retrying transport. Intended for tests.
	HTTPClient *http.Client
}

// Factory builds Clients that share one configuration.
type Factory struct {
	opts    Options
	baseURL *url.URL
}

// NewFactory validates opts and returns a Factory. Zero values fall back to
// DefaultBaseURL, DefaultClientID, a 15s timeout and 3 retries.
func NewFactory(opts Options) (*Factory, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}

	u, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base URL %q is not absolute", opts.BaseURL)
	}

	return &Factory{opts: opts, baseURL: u}, nil
}

// New returns a client bound to the given credentials.
func (f *Factory) New(email, password string) driven.AccountClient {
	return &Client{
		http:     f.httpClient(),
		baseURL:  f.baseURL,
		clientID: f.opts.ClientID,
		email:    email,
		password: password,
	}
}

// AccountClientFactory adapts the Factory to the driven port.
func (f *Factory) AccountClientFactory() driven.AccountClientFactory {
	return f.New
}

// httpClient builds a fresh HTTP client per account client so Close can drop
// its connections without touching other sessions.
func (f *Factory) httpClient() *http.Client {
	if f.opts.HTTPClient != nil {
		return f.opts.HTTPClient
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = f.opts.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	// keep default CheckRetry (retries on 429/5xx and honors Retry-After)
	rc.Logger = nil
	// Return the last response instead of an error once retries run out so
	// the status code can be reported.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	httpClient := rc.StandardClient()
	httpClient.Timeout = f.opts.Timeout
	return httpClient
}

// Client implements driven.AccountClient for one Tractive account.
type Client struct {
	mu       sync.Mutex
	http     *http.Client
	baseURL  *url.URL
	clientID string
	email    string
	password string
	token    *authToken
	closed   bool
}

// authToken is the body of a successful POST auth/token.
type authToken struct {
	UserID      string `json:"user_id"`
	ClientID    string `json:"client_id"`
	ExpiresAt   int64  `json:"expires_at"`
	AccessToken string `json:"access_token"`
}

type authRequest struct {
	PlatformEmail string `json:"platform_email"`
	PlatformToken string `json:"platform_token"`
	GrantType     string `json:"grant_type"`
}

// UserID authenticates (once per client) and returns the Tractive user id.
func (c *Client) UserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrClientClosed
	}
	if c.token == nil {
		token, err := c.authenticate(ctx)
		if err != nil {
			return "", err
		}
		c.token = token
	}
	return c.token.UserID, nil
}

// Close releases idle connections held by the client. Further calls to
// UserID fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.token = nil
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) authenticate(ctx context.Context) (*authToken, error) {
	body, err := json.Marshal(authRequest{
		PlatformEmail: c.email,
		PlatformToken: c.password,
		GrantType:     "tractive",
	})
	if err != nil {
		return nil, fmt.Errorf("encoding auth request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("auth/token")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tractive-Client", c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting auth token: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("auth token: status %d: %w", resp.StatusCode, driven.ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	var token authToken
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding auth response: %w", err)
	}
	if token.UserID == "" {
		return nil, errors.New("auth response missing user_id")
	}

	return &token, nil
}

// StatusError reports an unexpected HTTP status from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tractive api: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("tractive api: unexpected status %d: %s", e.StatusCode, e.Body)
}
