// Package remote is the HTTP client for the numbers service: dataset
// initialisation, row fetches, and digest validation.
//
// A single Client is built per process and shared by every concurrent call;
// it owns one pooled, OpenTelemetry-instrumented transport.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/polis-matrix/internal/governance"
	"github.com/polisai/polis-matrix/pkg/digest"
	"github.com/polisai/polis-matrix/pkg/domain"
	"github.com/polisai/polis-matrix/pkg/metrics"
)

// Endpoint labels used for metrics and logs.
const (
	EndpointInit     = "init"
	EndpointRow      = "row"
	EndpointValidate = "validate"
)

const (
	maxBodyBytes     = 4 << 20
	maxErrorBodySize = 512
)

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL    string
	InitMethod string
	// MaxConnsPerHost sizes the idle connection pool; set it to the row
	// fan-out so concurrent fetches reuse connections.
	MaxConnsPerHost int
	Timeouts        *governance.TimeoutManager
	Limiter         *governance.RateLimiter
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	// HTTPClient replaces the default instrumented client, mainly for tests.
	HTTPClient *http.Client
}

// Client talks to the numbers service.
type Client struct {
	base       *url.URL
	initMethod string
	httpClient *http.Client
	timeouts   *governance.TimeoutManager
	limiter    *governance.RateLimiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New validates opts and builds a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", domain.ErrConfigInvalid, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("%w: base url %q must be http or https", domain.ErrConfigInvalid, opts.BaseURL)
	}

	method := strings.ToUpper(opts.InitMethod)
	switch method {
	case "":
		method = http.MethodPost
	case http.MethodPost, http.MethodGet:
	default:
		return nil, fmt.Errorf("%w: init method %q must be GET or POST", domain.ErrConfigInvalid, opts.InitMethod)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeouts := opts.Timeouts
	if timeouts == nil {
		timeouts = governance.NewTimeoutManager(governance.DefaultTimeoutConfig())
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.MaxConnsPerHost)
	}

	return &Client{
		base:       base,
		initMethod: method,
		httpClient: httpClient,
		timeouts:   timeouts,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		logger:     logger,
	}, nil
}

func newHTTPClient(maxConnsPerHost int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if maxConnsPerHost > 0 {
		transport.MaxIdleConns = maxConnsPerHost
		transport.MaxIdleConnsPerHost = maxConnsPerHost
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return "numbers " + r.Method
			}),
		),
	}
}

// Init asks the service to create datasets A and B of the given size.
func (c *Client) Init(ctx context.Context, size int) error {
	target := c.endpoint("init", strconv.Itoa(size))
	status, _, err := c.do(ctx, EndpointInit, c.initMethod, target, nil)
	if err != nil {
		return err
	}
	if !isSuccess(status) {
		return &domain.TransportError{Op: c.initMethod, URL: target, StatusCode: status}
	}
	c.logger.Debug("Datasets initialised", "size", size, "status", status)
	return nil
}

// FetchRow retrieves one row of dataset. The payload is decoded but its shape
// is not checked here.
func (c *Client) FetchRow(ctx context.Context, dataset domain.Dataset, row int) (domain.RowResponse, error) {
	target := c.endpoint(string(dataset), "row", strconv.Itoa(row))
	status, body, err := c.do(ctx, EndpointRow, http.MethodGet, target, nil)
	if err != nil {
		return domain.RowResponse{}, err
	}
	if !isSuccess(status) {
		return domain.RowResponse{}, &domain.TransportError{Op: http.MethodGet, URL: target, StatusCode: status}
	}

	var resp domain.RowResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RowResponse{}, &domain.MalformedRowError{
			Dataset: dataset,
			Row:     row,
			Reason:  "payload does not decode",
			Err:     err,
		}
	}
	return resp, nil
}

// Validate submits d and returns the passphrase the service answers with.
func (c *Client) Validate(ctx context.Context, d digest.Digest) (domain.Passphrase, error) {
	payload, err := json.Marshal(d.String())
	if err != nil {
		return "", fmt.Errorf("encode digest: %w", err)
	}

	target := c.endpoint("validate")
	status, body, err := c.do(ctx, EndpointValidate, http.MethodPost, target, payload)
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", &domain.ValidationRejectedError{StatusCode: status, Body: truncate(string(body), maxErrorBodySize)}
	}
	return domain.Passphrase(body), nil
}

// do performs one exchange and returns the status and body. Any failure
// before a full body is read is a TransportError.
func (c *Client) do(ctx context.Context, endpoint, method, target string, payload []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, &domain.TransportError{Op: method, URL: target, Err: err}
	}

	reqCtx, cancel := c.timeouts.WithRequestTimeout(ctx)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return 0, nil, &domain.TransportError{Op: method, URL: target, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json, text/plain")

	timer := c.metrics.NewRequestTimer(endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		timer.Finish(0)
		return 0, nil, &domain.TransportError{Op: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	timer.Finish(resp.StatusCode)
	if err != nil {
		return resp.StatusCode, nil, &domain.TransportError{Op: method, URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	return resp.StatusCode, data, nil
}

func (c *Client) endpoint(elem ...string) string {
	return c.base.JoinPath(elem...).String()
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
