//go:build functional

// Package functional runs the medicine server on a real listener and
// exercises it over HTTP and WebSocket.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/medtrack/internal/auth"
	"github.com/vyrodovalexey/medtrack/internal/config"
	"github.com/vyrodovalexey/medtrack/internal/model"
	"github.com/vyrodovalexey/medtrack/internal/server"
	"github.com/vyrodovalexey/medtrack/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

// Default test configuration values.
const (
	DefaultTestHost         = "127.0.0.1"
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultWarningDays      = 30
)

const medicinesPath = "/api/v1/medicines"

// TestServer wraps a running server and its store.
type TestServer struct {
	Server  *server.Server
	Store   *store.MemoryStore
	BaseURL string
	WSURL   string
	t       *testing.T
	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// ServerOption adjusts the server configuration before start.
type ServerOption func(cfg *config.Config)

// WithSnapshotInterval sets the expiring snapshot period of the feed.
func WithSnapshotInterval(d time.Duration) ServerOption {
	return func(cfg *config.Config) {
		cfg.WSSnapshotInterval = d
	}
}

// StartTestServer starts a server on an ephemeral port and stops it when
// the test ends. A nil authenticator disables authentication.
func StartTestServer(t *testing.T, authenticator auth.Authenticator, opts ...ServerOption) *TestServer {
	t.Helper()

	host := DefaultTestHost
	if h := os.Getenv(EnvTestServerHost); h != "" {
		host = h
	}
	metrics := false
	if v, err := strconv.ParseBool(os.Getenv(EnvTestMetricsEnable)); err == nil {
		metrics = v
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := &config.Config{
		ServerPort:         port,
		LogLevel:           "error",
		ShutdownTimeout:    DefaultShutdownTimeout,
		MetricsEnabled:     metrics,
		ExpiryWarningDays:  DefaultWarningDays,
		WSSnapshotInterval: time.Minute,
		Timezone:           "UTC",
		CORSOrigins:        []string{"*"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	medicineStore := store.NewMemoryStore(store.WithLocation(time.UTC))
	srv := server.New(cfg, zap.NewNop(), medicineStore, authenticator)

	ts := &TestServer{
		Server:  srv,
		Store:   medicineStore,
		BaseURL: fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(port))),
		WSURL:   fmt.Sprintf("ws://%s", net.JoinHostPort(host, strconv.Itoa(port))),
		t:       t,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(ts.done)
		if err := srv.Serve(ln); err != nil {
			t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	t.Cleanup(ts.Stop)

	return ts
}

// waitForReady polls the liveness probe until it answers.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + "/health")
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop shuts the server down and waits for Serve to return. Later calls
// do nothing.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.stopped {
		return
	}
	ts.stopped = true

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}
	<-ts.done
}

// HTTPClient provides a configured HTTP client for tests.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	headers map[string]string
}

// NewHTTPClient creates an HTTP client that sends headers on every request.
func NewHTTPClient(baseURL string, headers map[string]string) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: DefaultRequestTimeout},
		baseURL: baseURL,
		headers: headers,
	}
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes an HTTP request and returns the response.
func (c *HTTPClient) Do(ctx context.Context, method, path string, body any) (*Response, error) {
	var bodyReader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		bodyReader = bytes.NewBufferString(v)
	default:
		jsonBody, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// AddMedicine posts a medicine.
func (c *HTTPClient) AddMedicine(ctx context.Context, name, date string) (*Response, error) {
	return c.Do(ctx, http.MethodPost, medicinesPath, model.MedicineInput{Name: name, ExpirationDate: date})
}

// DeleteMedicine deletes a medicine by name and date.
func (c *HTTPClient) DeleteMedicine(ctx context.Context, name, date string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, medicinesPath+"?"+keyQuery(name, date), nil)
}

// Status checks a medicine's expiration.
func (c *HTTPClient) Status(ctx context.Context, name, date string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, medicinesPath+"/status?"+keyQuery(name, date), nil)
}

func keyQuery(name, date string) string {
	return url.Values{"name": {name}, "expiration_date": {date}}.Encode()
}

// DecodeData decodes a success envelope into out.
func DecodeData(t *testing.T, resp *Response, out any) {
	t.Helper()

	var envelope model.APIResponse[json.RawMessage]
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		t.Fatalf("Failed to parse API response: %v. Body: %s", err, resp.Body)
	}
	if !envelope.Success {
		t.Fatalf("Expected success=true, got false. Error: %s", envelope.Error)
	}
	if len(envelope.Data) == 0 {
		return
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("Failed to parse data: %v", err)
	}
}

// DecodeError decodes an error body.
func DecodeError(t *testing.T, resp *Response) model.ErrorResponse {
	t.Helper()

	var e model.ErrorResponse
	if err := json.Unmarshal(resp.Body, &e); err != nil {
		t.Fatalf("Failed to parse error response: %v. Body: %s", err, resp.Body)
	}
	return e
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// RequestContext returns a context bounded by DefaultRequestTimeout.
func RequestContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// DaysFromToday returns today's UTC date shifted by n days as text.
func DaysFromToday(n int) string {
	return model.DateOf(time.Now().UTC()).AddDays(n).String()
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}
