package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-ticket-client/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerRequestID     = "X-Request-ID"

	contentTypeJSON = "application/json"
	defaultTimeout  = 30 * time.Second
)

// Session supplies credentials to the gateway and is told when they cannot be recovered
type Session interface {
	Token() string
	Refresh(ctx context.Context) bool
	Logout(ctx context.Context, redirectTarget string) error
}

// Reconciler ensures the authenticated identity has a backend user record
type Reconciler interface {
	// BeforeRequest runs ahead of a request to path. It must not fail the request.
	BeforeRequest(ctx context.Context, path string)
	// RecoverUserNotFound creates the missing backend user so the request can be resent
	RecoverUserNotFound(ctx context.Context) error
}

// Client is the single HTTP entry point to the ticket API
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    Session
	reconciler Reconciler
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithReconciler(r Reconciler) Option {
	return func(c *Client) { c.reconciler = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a gateway for baseURL, e.g. "http://localhost:8081/api"
func New(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		session: session,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetReconciler attaches r after construction. The reconciler calls the sync
// endpoints through this client, so it is usually built after it.
func (c *Client) SetReconciler(r Reconciler) {
	c.reconciler = r
}

// Do sends req and applies the credential recovery rules:
// a 401 triggers one refresh and one resend, a "user not found" 400/404 triggers
// one user sync and one resend. Anything else is returned as an *APIError.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	reconcile := c.reconciler != nil && !reconciliationSkipped(ctx)
	if reconcile {
		c.reconciler.BeforeRequest(ctx, req.Path)
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		var transportErr *APIError
		if errors.As(err, &transportErr) {
			c.logAPIError(transportErr)
		}
		return nil, err
	}
	if resp.OK() {
		return resp, nil
	}

	apiErr := newAPIError(req, resp)
	switch {
	case apiErr.StatusCode == http.StatusUnauthorized && !req.retried:
		return c.retryAfterRefresh(ctx, req, apiErr)
	case reconcile && !req.retried && isUserNotFound(apiErr):
		return c.retryAfterUserSync(ctx, req, apiErr)
	}

	c.logAPIError(apiErr)
	return nil, apiErr
}

func (c *Client) retryAfterRefresh(ctx context.Context, req *Request, original *APIError) (*Response, error) {
	req.retried = true
	c.metrics.IncRetry(metrics.RetryUnauthorized)

	reason := metrics.LogoutRefreshFailed
	if c.session.Refresh(ctx) {
		resp, err := c.send(ctx, req)
		if err == nil && resp.OK() {
			return resp, nil
		}
		reason = metrics.LogoutRetryFailed
		if err != nil {
			c.logger.Warn().Err(err).Str("path", req.Path).Msg("retry after refresh failed")
		} else {
			c.logger.Warn().Int("status", resp.StatusCode).Str("path", req.Path).Msg("retry after refresh rejected")
		}
	}

	c.metrics.IncForcedLogout(reason)
	if err := c.session.Logout(ctx, ""); err != nil {
		c.logger.Warn().Err(err).Msg("forced logout")
	}
	c.logAPIError(original)
	return nil, original
}

func (c *Client) retryAfterUserSync(ctx context.Context, req *Request, original *APIError) (*Response, error) {
	req.retried = true
	c.logger.Info().Str("path", req.Path).Msg("backend user missing, attempting sync")

	if err := c.reconciler.RecoverUserNotFound(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("user sync failed")
		c.logAPIError(original)
		return nil, original
	}

	c.metrics.IncRetry(metrics.RetryUserNotFound)
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		apiErr := newAPIError(req, resp)
		c.logAPIError(apiErr)
		return nil, apiErr
	}
	return resp, nil
}

// send performs a single HTTP exchange with the current token attached
func (c *Client) send(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, &APIError{Method: req.Method, Path: req.Path, Err: err}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &APIError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &APIError{Method: req.Method, Path: req.Path, StatusCode: httpResp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = contentTypeJSON
	}
	httpReq.Header.Set(headerContentType, contentType)
	httpReq.Header.Set(headerAccept, contentTypeJSON)
	httpReq.Header.Set(headerRequestID, uuid.NewString())

	if token := c.session.Token(); token != "" {
		httpReq.Header.Set(headerAuthorization, "Bearer "+token)
	}
	return httpReq, nil
}

func (c *Client) url(req *Request) string {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}
