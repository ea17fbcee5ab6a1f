// Package api is the typed client for the reprocessing backend's REST
// contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/google/uuid"
)

// DefaultClientTimeout is the default timeout for API requests.
const DefaultClientTimeout = 10 * time.Second

// TokenSource supplies the bearer token for authenticated calls. An empty
// token means no Authorization header is sent.
type TokenSource interface {
	Token() string
}

// Client wraps HTTP calls to the reprocessing backend.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches a bearer token to every authenticated call.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler registers fn to run whenever an authenticated call
// is answered with 401.
func WithUnauthorizedHandler(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new API client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultClientTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LiveURL returns the live-notification address for the current token.
func (c *Client) LiveURL() string {
	return LiveURL(c.baseURL, c.token())
}

// --- Auth ---

// Login exchanges credentials for a token. A rejected login returns
// *AuthError carrying the server's message.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", LoginRequest{Username: username, Password: password}, &resp, false)
	if err != nil {
		var apiErr *ApiError
		if errors.As(err, &apiErr) {
			return nil, &AuthError{StatusCode: apiErr.StatusCode, Message: apiErr.Body}
		}
		return nil, err
	}
	return &resp, nil
}

// --- Plans ---

// ListPlans fetches all plans, newest first.
func (c *Client) ListPlans(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	if err := c.do(ctx, "list_plans", http.MethodGet, "/api/plans", nil, &plans, true); err != nil {
		return nil, err
	}
	return plans, nil
}

// GetPlan fetches one plan together with its tasks.
func (c *Client) GetPlan(ctx context.Context, id int64) (*models.PlanDetail, error) {
	var detail models.PlanDetail
	if err := c.do(ctx, "get_plan", http.MethodGet, "/api/plans/"+strconv.FormatInt(id, 10), nil, &detail, true); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreatePlan submits a new plan.
func (c *Client) CreatePlan(ctx context.Context, req CreatePlanRequest) (*models.Plan, error) {
	if req.Tasks == nil {
		req.Tasks = []TaskRequest{}
	}
	var plan models.Plan
	if err := c.do(ctx, "create_plan", http.MethodPost, "/api/plans", req, &plan, true); err != nil {
		return nil, err
	}
	return &plan, nil
}

// PlanAction requests a plan state transition.
func (c *Client) PlanAction(ctx context.Context, id int64, action models.PlanAction) (*PlanActionResponse, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	var resp PlanActionResponse
	path := fmt.Sprintf("/api/plans/%d/%s", id, action)
	if err := c.do(ctx, "plan_"+string(action), http.MethodPost, path, struct{}{}, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Tasks ---

// TaskAction requests a task state transition.
func (c *Client) TaskAction(ctx context.Context, id int64, action models.TaskAction) (*TaskActionResponse, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	var resp TaskActionResponse
	path := fmt.Sprintf("/api/tasks/%d/%s", id, action)
	if err := c.do(ctx, "task_"+string(action), http.MethodPost, path, struct{}{}, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobInfo looks up an orchestration job through the backend. The payload is
// passed through untouched.
func (c *Client) JobInfo(ctx context.Context, planID int64, jobID string) (json.RawMessage, error) {
	var raw json.RawMessage
	path := "/api/oozie/job/" + url.PathEscape(jobID) + "?plan_id=" + strconv.FormatInt(planID, 10)
	if err := c.do(ctx, "job_info", http.MethodGet, path, nil, &raw, true); err != nil {
		return nil, err
	}
	return raw, nil
}

// Health checks whether the backend is up.
func (c *Client) Health(ctx context.Context) (bool, error) {
	var health HealthResponse
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, &health, false); err != nil {
		return false, err
	}
	return health.OK, nil
}

// --- plumbing ---

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

func (c *Client) log() *slog.Logger {
	return logging.OrDiscard(c.logger)
}

// do issues one request and decodes a 2xx body into out. Non-2xx responses
// become *ApiError; authenticated calls answered with 401 also trigger the
// unauthorized handler.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, authenticated bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordAPIRequest(op, 0, time.Since(start))
		c.log().Debug("api request failed", "op", op, "request_id", requestID, "error", err)
		return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.metrics.RecordAPIRequest(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return fmt.Errorf("%s: read response: %w: %w", op, ErrTransport, err)
	}
	c.log().Debug("api request",
		"op", op,
		"request_id", requestID,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized && authenticated && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return &ApiError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
