package authhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	skerrors "github.com/porthorian/sessionkit/pkg/errors"
	"github.com/porthorian/sessionkit/pkg/session"
)

// DeviceInfo identifies the client device to the remote authentication
// service. Sent with every login exchange.
type DeviceInfo struct {
	DeviceID  string `json:"device_id"`
	UserAgent string `json:"user_agent,omitempty"`
}

type Config struct {
	// BaseURL is the authentication service root, e.g. "https://auth.example.com/api".
	BaseURL string

	// HTTPClient defaults to a client with a 30 second timeout.
	HTTPClient *http.Client

	// Device defaults to a generated device id.
	Device DeviceInfo
}

// Client implements session.Authenticator over the remote authentication
// service's JSON endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	device  DeviceInfo
}

var _ session.Authenticator = (*Client)(nil)

func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("authhttp: base url is required")
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if config.Device.DeviceID == "" {
		config.Device.DeviceID = uuid.NewString()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http:    config.HTTPClient,
		device:  config.Device,
	}, nil
}

type loginRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Device   DeviceInfo `json:"device_info"`
}

type loginResponse struct {
	Success      bool             `json:"success"`
	User         principalPayload `json:"user"`
	Token        string           `json:"token"`
	RefreshToken string           `json:"refresh_token"`
	ExpiresAt    time.Time        `json:"expires_at"`
	SessionID    string           `json:"session_id"`
	Error        string           `json:"error,omitempty"`
}

type principalPayload struct {
	ID          string   `json:"id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Active      bool     `json:"active"`
}

func (c *Client) Login(ctx context.Context, credentials session.Credentials) (session.LoginResult, error) {
	var resp loginResponse
	err := c.post(ctx, "/login", loginRequest{
		Username: credentials.Username,
		Password: credentials.Password,
		Device:   c.device,
	}, &resp)
	if err != nil {
		return session.LoginResult{}, loginError(err)
	}
	if !resp.Success {
		return session.LoginResult{}, skerrors.New(skerrors.CodeInvalidCredentials, errorMessage(resp.Error, "login rejected"))
	}

	return session.LoginResult{
		Principal: session.Principal{
			ID:          resp.User.ID,
			Roles:       resp.User.Roles,
			Permissions: resp.User.Permissions,
			Active:      resp.User.Active,
		},
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
		SessionID:    resp.SessionID,
	}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
	Error     string    `json:"error,omitempty"`
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (session.RefreshResult, error) {
	var resp refreshResponse
	err := c.post(ctx, "/refresh", refreshRequest{RefreshToken: refreshToken}, &resp)
	if err != nil {
		return session.RefreshResult{}, skerrors.Wrap(skerrors.CodeRefreshFailed, remoteMessage(err, "refresh exchange failed"), err)
	}
	if !resp.Success {
		return session.RefreshResult{}, skerrors.New(skerrors.CodeRefreshFailed, errorMessage(resp.Error, "refresh rejected"))
	}

	return session.RefreshResult{
		AccessToken: resp.Token,
		ExpiresAt:   resp.ExpiresAt,
		SessionID:   resp.SessionID,
	}, nil
}

type logoutRequest struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (c *Client) Logout(ctx context.Context, request session.LogoutRequest) error {
	return c.post(ctx, "/logout", logoutRequest{
		Token:     request.AccessToken,
		SessionID: request.SessionID,
		Reason:    request.Reason,
	}, nil)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("authhttp: unexpected status %d", e.status)
}

// errorField extracts the error field from the captured response body.
func (e *statusError) errorField() string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(e.body), &payload); err != nil {
		return ""
	}
	return payload.Error
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("authhttp: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authhttp: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.device.UserAgent != "" {
		req.Header.Set("User-Agent", c.device.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authhttp: request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{status: resp.StatusCode, body: string(data)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authhttp: failed to decode response: %w", err)
	}
	return nil
}

// loginError maps transport failures to the error taxonomy: 401/403 are
// credential rejections, anything else is an unclassified login failure. The
// remote's error field, when present, becomes the typed message.
func loginError(err error) error {
	var status *statusError
	if errors.As(err, &status) {
		switch status.status {
		case http.StatusUnauthorized, http.StatusForbidden:
			return skerrors.Wrap(skerrors.CodeInvalidCredentials, errorMessage(status.errorField(), "login rejected"), err)
		}
		return skerrors.Wrap(skerrors.CodeUnauthenticated, errorMessage(status.errorField(), "login failed"), err)
	}
	return skerrors.Wrap(skerrors.CodeUnauthenticated, "login failed", err)
}

// remoteMessage prefers the error field of a non-2xx response body over the
// fallback message.
func remoteMessage(err error, fallback string) string {
	var status *statusError
	if errors.As(err, &status) {
		return errorMessage(status.errorField(), fallback)
	}
	return fallback
}

func errorMessage(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
