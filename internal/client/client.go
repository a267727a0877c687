// Package client implements the device side of the authorization flow:
// initiate a request, show the user code, and poll until a terminal state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/formpilot/deviceauth/internal/models"

	retry "github.com/appleboy/go-httpretry"
)

// State is the client-view polling state. All failure states are terminal;
// only StateAuthorized leads to session persistence.
type State string

const (
	StateNotStarted   State = "not_started"
	StatePolling      State = "polling"
	StateAuthorized   State = "authorized"
	StateDenied       State = "denied"
	StateExpired      State = "expired"
	StateTimedOut     State = "timed_out"
	StateNetworkError State = "network_error"
	// StateFailed covers protocol-level rejections outside the polling
	// taxonomy, such as invalid_request for a malformed device code.
	StateFailed State = "failed"
)

var (
	// ErrAccessDenied is terminal: the user rejected the request.
	ErrAccessDenied = errors.New("authorization denied by user")

	// ErrExpiredToken is terminal: the server-side TTL elapsed.
	ErrExpiredToken = errors.New("device code expired, run login again")

	// ErrPollTimeout is the client-side ceiling, distinct from the
	// server's expired_token outcome.
	ErrPollTimeout = errors.New("timed out waiting for authorization")

	// ErrNetwork wraps transport-level failures. They abort polling
	// immediately rather than silently consuming the approval window.
	ErrNetwork = errors.New("cannot reach authorization server")
)

// errorResponse is the wire error body for non-2xx poll answers.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Client runs the device-grant flow against one server.
type Client struct {
	serverURL  string
	clientID   string
	httpClient *http.Client
	initiator  *retry.Client
	state      State
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom http.Client for polling.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a device-flow client. The initiate call retries transient
// transport failures with backoff; polling never retries, since a poll
// retry would silently consume the approval window.
func New(serverURL, clientID string, opts ...Option) (*Client, error) {
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		clientID:   clientID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		state:      StateNotStarted,
	}
	for _, opt := range opts {
		opt(c)
	}

	initiator, err := retry.NewRealtimeClient(
		retry.WithHTTPClient(c.httpClient),
		retry.WithMaxRetries(3),
		retry.WithInitialRetryDelay(time.Second),
		retry.WithMaxRetryDelay(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create initiate client: %w", err)
	}
	c.initiator = initiator

	return c, nil
}

// State reports the current client-view polling state.
func (c *Client) State() State {
	return c.state
}

type initiateRequest struct {
	ClientID   string            `json:"client_id"`
	Scope      string            `json:"scope,omitempty"`
	DeviceName string            `json:"device_name,omitempty"`
	DeviceInfo models.DeviceInfo `json:"device_info"`
}

// Initiate starts a new authorization: one call to the authorize endpoint,
// returning the codes and polling parameters to surface to the user.
func (c *Client) Initiate(
	ctx context.Context,
	deviceName string,
	info models.DeviceInfo,
) (*models.DeviceAuthResponse, error) {
	payload, err := json.Marshal(initiateRequest{
		ClientID:   c.clientID,
		Scope:      "read write",
		DeviceName: deviceName,
		DeviceInfo: info,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode authorize request: %w", err)
	}

	resp, err := c.initiator.Post(
		ctx,
		c.serverURL+"/device/authorize",
		retry.WithBody("application/json", bytes.NewBuffer(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf(
				"authorize request failed: %s - %s",
				errResp.Error, errResp.ErrorDescription,
			)
		}
		return nil, fmt.Errorf("authorize request failed: HTTP %d", resp.StatusCode)
	}

	var auth models.DeviceAuthResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		return nil, fmt.Errorf("failed to decode authorize response: %w", err)
	}
	if auth.DeviceCode == "" {
		return nil, fmt.Errorf("authorize response missing device_code")
	}

	return &auth, nil
}

// PollForToken polls the token endpoint every interval seconds until a
// terminal state. authorization_pending is the only retry signal; denied,
// expired, transport failures and the local attempt ceiling all end the
// loop. Pass interval 0 to skip the sleep delay (useful in tests).
func (c *Client) PollForToken(
	ctx context.Context,
	deviceCode string,
	interval, expiresIn int,
) (*models.TokenResponse, error) {
	if interval < 0 {
		interval = 0
	}

	// Hard ceiling: the whole window expressed in attempts, never less
	// than one poll even when the interval exceeds the window.
	maxAttempts := 1
	if interval > 0 && expiresIn > 0 {
		maxAttempts = expiresIn / interval
	} else if expiresIn > 0 {
		maxAttempts = expiresIn
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	c.state = StatePolling
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// User interrupt cancels the loop without reaching a terminal
		// protocol state.
		if interval > 0 {
			select {
			case <-time.After(time.Duration(interval) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		token, err := c.pollOnce(ctx, deviceCode)
		if err == nil {
			c.state = StateAuthorized
			return token, nil
		}

		switch {
		case errors.Is(err, ErrAuthorizationPending):
			// keep polling
		case errors.Is(err, ErrAccessDenied):
			c.state = StateDenied
			return nil, err
		case errors.Is(err, ErrExpiredToken):
			c.state = StateExpired
			return nil, err
		case errors.Is(err, ErrNetwork):
			c.state = StateNetworkError
			return nil, err
		default:
			// Terminal, but a server answer rather than a transport
			// failure.
			c.state = StateFailed
			return nil, err
		}
	}

	c.state = StateTimedOut
	return nil, ErrPollTimeout
}

// ErrAuthorizationPending is internal to the poll loop: the server has not
// seen a decision yet.
var ErrAuthorizationPending = errors.New("authorization pending")

func (c *Client) pollOnce(
	ctx context.Context,
	deviceCode string,
) (*models.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	form.Set("device_code", deviceCode)
	form.Set("client_id", c.clientID)

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.serverURL+"/device/token",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusOK {
		var token models.TokenResponse
		if err := json.Unmarshal(body, &token); err != nil {
			return nil, fmt.Errorf("%w: malformed token response", ErrNetwork)
		}
		if token.AccessToken == "" {
			return nil, fmt.Errorf("%w: token response missing access_token", ErrNetwork)
		}
		return &token, nil
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil, fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	switch errResp.Error {
	case "authorization_pending":
		return nil, ErrAuthorizationPending
	case "access_denied":
		return nil, ErrAccessDenied
	case "expired_token":
		return nil, ErrExpiredToken
	default:
		return nil, fmt.Errorf(
			"token poll failed: %s - %s",
			errResp.Error, errResp.ErrorDescription,
		)
	}
}
