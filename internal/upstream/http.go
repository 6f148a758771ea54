package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reqpipe/reqpipe/internal/config"
	"github.com/reqpipe/reqpipe/internal/observability"
	"github.com/reqpipe/reqpipe/internal/retry"
)

const upstreamTracerName = "reqpipe/upstream"

// maxResponseBytes bounds how much of an upstream response is read.
const maxResponseBytes = 16 << 20

// actionMethods maps pipeline actions to HTTP methods.
var actionMethods = map[string]string{
	"read":   http.MethodGet,
	"list":   http.MethodGet,
	"write":  http.MethodPost,
	"update": http.MethodPut,
	"delete": http.MethodDelete,
}

// HTTPClient is an HTTP-backed upstream client. Connection failures
// and retryable status codes come back marked transient; other
// failures come back marked permanent.
type HTTPClient struct {
	name    string
	baseURL *url.URL
	client  *http.Client
	logger  observability.Logger
}

// HTTPClientOption configures an HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClientLogger sets the logger.
func WithHTTPClientLogger(logger observability.Logger) HTTPClientOption {
	return func(c *HTTPClient) {
		c.logger = logger
	}
}

// WithTransport overrides the HTTP transport.
func WithTransport(rt http.RoundTripper) HTTPClientOption {
	return func(c *HTTPClient) {
		c.client.Transport = rt
	}
}

// NewHTTPClient creates an upstream client from configuration.
func NewHTTPClient(cfg config.UpstreamConfig, opts ...HTTPClientOption) (*HTTPClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("upstream URL is required")
	}

	baseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.URL, err)
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &HTTPClient{
		name:    cfg.Name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements Client.
func (c *HTTPClient) Name() string {
	return c.name
}

// Call implements Client.
func (c *HTTPClient) Call(ctx context.Context, req Request) ([]byte, error) {
	ctx, span := otel.Tracer(upstreamTracerName).Start(ctx, "upstream.Call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.name", c.name),
			attribute.String("upstream.resource", req.Resource),
			attribute.String("upstream.action", req.Action),
		),
	)
	defer span.End()

	httpReq, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, retry.MarkPermanent(err)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	recordCall(c.name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		// Connection-level failures are classified by the retry
		// executor's default rules.
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return nil, retry.MarkTransient(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
	recordStatus(c.name, resp.StatusCode)
	span.RecordError(statusErr)

	c.logger.Warn("upstream call failed",
		observability.String(observability.FieldUpstream, c.name),
		observability.String(observability.FieldResource, req.Resource),
		observability.Int(observability.FieldStatus, resp.StatusCode))

	if retryableStatus(resp.StatusCode) {
		return nil, retry.MarkTransient(statusErr)
	}
	return nil, retry.MarkPermanent(statusErr)
}

// buildRequest translates a pipeline request into an HTTP request
// against the upstream base URL.
func (c *HTTPClient) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method, ok := actionMethods[strings.ToLower(req.Action)]
	if !ok {
		method = http.MethodGet
	}

	target := c.baseURL.JoinPath(req.Resource)

	if len(req.Params) > 0 {
		query := target.Query()
		for name, value := range req.Params {
			query.Set(name, value)
		}
		target.RawQuery = query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	return httpReq, nil
}

// retryableStatus reports whether a status code signals a transient
// upstream condition.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
