// Package client is a typed HTTP client for the medicine API.
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
	"strconv"
	"strings"
	"time"

	"github.com/vyrodovalexey/medtrack/internal/auth"
	"github.com/vyrodovalexey/medtrack/internal/model"
)

// DefaultTimeout bounds each request when no custom http.Client is set.
const DefaultTimeout = 10 * time.Second

const medicinesPath = "/api/v1/medicines"

// Sentinel errors matched by status code.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrDuplicate    = errors.New("duplicate")
	ErrServer       = errors.New("server error")
)

// APIError is a non-2xx response. It unwraps to the sentinel for its
// status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return e.Message
}

// Unwrap maps the status code to a sentinel error.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return ErrBadRequest
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusConflict:
		return ErrDuplicate
	case e.StatusCode >= http.StatusInternalServerError:
		return ErrServer
	default:
		return nil
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithBasicAuth sends HTTP Basic credentials.
func WithBasicAuth(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

// Client talks to a medicine server.
type Client struct {
	baseURL  *url.URL
	http     *http.Client
	apiKey   string
	user     string
	password string
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: missing host", baseURL)
	}

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Health reports whether the server answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
}

// Add stores a medicine. It fails with ErrDuplicate when the pair exists.
func (c *Client) Add(ctx context.Context, name, expirationDate string) (model.Medicine, error) {
	var out model.Medicine
	in := model.MedicineInput{Name: name, ExpirationDate: expirationDate}
	err := c.do(ctx, http.MethodPost, medicinesPath, nil, in, &out)
	return out, err
}

// Delete removes a medicine. It fails with ErrNotFound when the pair is
// absent.
func (c *Client) Delete(ctx context.Context, name, expirationDate string) (model.Medicine, error) {
	var out model.Medicine
	err := c.do(ctx, http.MethodDelete, medicinesPath, keyQuery(name, expirationDate), nil, &out)
	return out, err
}

// List returns every stored medicine ordered by date, then name.
func (c *Client) List(ctx context.Context) ([]model.Medicine, error) {
	var out []model.Medicine
	err := c.do(ctx, http.MethodGet, medicinesPath, nil, nil, &out)
	return out, err
}

// Status reports whether a medicine is stored and expired.
func (c *Client) Status(ctx context.Context, name, expirationDate string) (model.StatusResponse, error) {
	var out model.StatusResponse
	err := c.do(ctx, http.MethodGet, medicinesPath+"/status", keyQuery(name, expirationDate), nil, &out)
	return out, err
}

// Expiring returns medicines expiring before today plus days.
func (c *Client) Expiring(ctx context.Context, days int) (model.ExpiringResponse, error) {
	var out model.ExpiringResponse
	query := url.Values{"days": {strconv.Itoa(days)}}
	err := c.do(ctx, http.MethodGet, medicinesPath+"/expiring", query, nil, &out)
	return out, err
}

// ExpiringDefault uses the server's configured warning window.
func (c *Client) ExpiringDefault(ctx context.Context) (model.ExpiringResponse, error) {
	var out model.ExpiringResponse
	err := c.do(ctx, http.MethodGet, medicinesPath+"/expiring", nil, nil, &out)
	return out, err
}

func keyQuery(name, expirationDate string) url.Values {
	return url.Values{
		"name":            {name},
		"expiration_date": {expirationDate},
	}
}

// do sends one request and decodes the data field of the success
// envelope into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path += path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	envelope := model.APIResponse[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !envelope.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: envelope.Error}
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.apiKey)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
}

// decodeError reads an ErrorResponse body, tolerating non-JSON bodies.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var e model.ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Message: e.Message}
	}

	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
}
