package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Transport failure kinds. The gateway is a single-attempt transport: no
// retries, no caching. Callers decide what a failure means for local state.
var (
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrMalformedResponse = errors.New("malformed response")
)

// Wire attribute keys reported and accepted by the vendor cloud.
const (
	AttrPower       = "power"
	AttrTempNow     = "temp_now"
	AttrTempSet     = "temp_set"
	AttrHeatPower   = "heat_power"
	AttrFilterPower = "filter_power"
	AttrWavePower   = "wave_power"
)

// Attributes is the raw attribute object exactly as the cloud reports it.
type Attributes map[string]any

// Bool reads a boolean attribute. The second return reports presence with the
// expected type.
func (a Attributes) Bool(key string) (bool, bool) {
	v, ok := a[key].(bool)
	return v, ok
}

// Float reads a numeric attribute. JSON numbers decode as float64; integer
// values that survived an intermediate encoding are accepted too.
func (a Attributes) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

const defaultTimeout = 15 * time.Second

// Client talks to the vendor cloud. It owns the session token obtained at
// login but no business state.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a cloud client for the given API base URL. A non-positive
// timeout falls back to the default transport timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LoginResult is the session yielded by the cloud at startup.
type LoginResult struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Lang     string `json:"lang"`
}

// Login authenticates once and stores the session token for subsequent
// devdata/control calls. The bridge performs no token refresh; a dropped
// session requires a restart.
func (c *Client) Login(ctx context.Context, username, password, lang string) (LoginResult, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password, Lang: lang})
	if err != nil {
		return LoginResult{}, fmt.Errorf("encode login request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/login", bytes.NewReader(body))
	if err != nil {
		return LoginResult{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return LoginResult{}, err
	}

	var out LoginResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LoginResult{}, fmt.Errorf("decode login response: %w", ErrMalformedResponse)
	}
	if out.Token == "" || out.DeviceID == "" {
		return LoginResult{}, fmt.Errorf("login response missing token or device id: %w", ErrMalformedResponse)
	}

	c.token = out.Token
	return out, nil
}

// FetchStatus issues a single read and returns the attribute object verbatim.
func (c *Client) FetchStatus(ctx context.Context, deviceID string) (Attributes, error) {
	url := fmt.Sprintf("%s/devdata/%s/latest", c.baseURL, deviceID)
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var attrs Attributes
	if err := json.NewDecoder(resp.Body).Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode devdata body: %w", ErrMalformedResponse)
	}
	return attrs, nil
}

type controlRequest struct {
	Attrs Attributes `json:"attrs"`
}

// SendCommand writes one or more attributes in a single request.
func (c *Client) SendCommand(ctx context.Context, deviceID string, attrs Attributes) error {
	body, err := json.Marshal(controlRequest{Attrs: attrs})
	if err != nil {
		return fmt.Errorf("encode control request: %w", err)
	}

	url := fmt.Sprintf("%s/control/%s", c.baseURL, deviceID)
	resp, err := c.do(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp)
}

// do builds and executes one request with the session headers attached.
func (c *Client) do(ctx context.Context, method, url string, body *bytes.Reader) (*http.Response, error) {
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, url, err, ErrRemoteUnavailable)
	}
	return resp, nil
}

// checkStatus maps any non-2xx status to ErrRemoteUnavailable.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d: %w", resp.StatusCode, ErrRemoteUnavailable)
	}
	return nil
}
