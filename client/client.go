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

	"pkt.systems/pslog"
	"pkt.systems/tclib/api"
	"pkt.systems/tclib/internal/compress"
	"pkt.systems/tclib/internal/correlation"
	"pkt.systems/tclib/internal/svcfields"
	"pkt.systems/tclib/session"
)

const (
	contentType = "application/x-tclib-fields"
	routePrefix = "/v1/tc/"

	// DefaultTimeout bounds calls when Config leaves Timeout unset. Long
	// running families should pass a context deadline instead.
	DefaultTimeout = 2 * time.Minute
	// DefaultCompressThreshold is the smallest request body sent zstd encoded.
	DefaultCompressThreshold = 4 << 10
	// DefaultMaxResponseBytes bounds decoded response bodies.
	DefaultMaxResponseBytes = 64 << 20
)

// Config configures a Client.
type Config struct {
	// Endpoint is the participant base URL, e.g. https://10.0.0.5:9443.
	Endpoint string
	// HTTPClient performs requests; nil uses a plain client with Timeout.
	HTTPClient *http.Client
	Logger     pslog.Logger
	Timeout    time.Duration
	// CompressThreshold is the request size above which bodies are sent
	// zstd encoded. Negative disables request compression.
	CompressThreshold int
	MaxResponseBytes  int64
}

// Client calls one participant.
type Client struct {
	endpoint          string
	http              *http.Client
	logger            pslog.Logger
	compressThreshold int
	maxResponseBytes  int64
}

// APIError is returned when the participant answers with a non-200 status.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Response is the decoded error envelope, when available.
	Response api.ErrorResponse
	// Body is the raw response body.
	Body []byte
}

func (e *APIError) Error() string {
	if e.Response.ErrorCode != "" {
		return fmt.Sprintf("tclib: %s (%s)", e.Response.ErrorCode, e.Response.Detail)
	}
	return fmt.Sprintf("tclib: status %d", e.Status)
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, errors.New("tclib client: endpoint required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("tclib client: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tclib client: unsupported endpoint scheme %q", u.Scheme)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	threshold := cfg.CompressThreshold
	if threshold == 0 {
		threshold = DefaultCompressThreshold
	}
	maxResp := cfg.MaxResponseBytes
	if maxResp <= 0 {
		maxResp = DefaultMaxResponseBytes
	}
	return &Client{
		endpoint:          endpoint,
		http:              httpClient,
		logger:            svcfields.WithSubsystem(cfg.Logger, "tclib.client"),
		compressThreshold: threshold,
		maxResponseBytes:  maxResp,
	}, nil
}

// Endpoint returns the participant base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Call issues one service call and returns the participant's response.
func (c *Client) Call(ctx context.Context, kind api.ServiceKind, fields ...session.Field) (*Response, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("tclib client: invalid service %d", uint32(kind))
	}
	ctx, corr := correlation.Ensure(ctx)
	body := session.Encode(fields)
	compressed := false
	if c.compressThreshold > 0 && len(body) >= c.compressThreshold {
		body = compress.Bytes(body)
		compressed = true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+routePrefix+kind.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tclib client: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept-Encoding", compress.Encoding)
	req.Header.Set(correlation.Header, corr)
	if compressed {
		req.Header.Set("Content-Encoding", compress.Encoding)
	}

	start := time.Now()
	c.logger.Trace("client.call.start", "service", kind, "cid", corr, "fields", len(fields), "bytes", len(body))
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("client.call.transport_error", "service", kind, "cid", corr, "error", err)
		return nil, fmt.Errorf("tclib client: %s: %w", kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("tclib client: read %s response: %w", kind, err)
	}
	if int64(len(raw)) > c.maxResponseBytes {
		return nil, fmt.Errorf("tclib client: %s response exceeds %d bytes", kind, c.maxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Body: raw}
		_ = json.Unmarshal(raw, &apiErr.Response)
		c.logger.Debug("client.call.error", "service", kind, "cid", corr, "status", resp.StatusCode, "code", apiErr.Response.ErrorCode)
		return nil, apiErr
	}
	if compress.Applied(resp.Header) {
		raw, err = compress.Decompress(raw, c.maxResponseBytes)
		if err != nil {
			return nil, fmt.Errorf("tclib client: %s response: %w", kind, err)
		}
	}
	result, out, err := session.DecodeResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("tclib client: decode %s response: %w", kind, err)
	}
	response := &Response{
		Result:        api.ResultCode(result),
		Fields:        out,
		CorrelationID: resp.Header.Get(correlation.Header),
	}
	c.logger.Debug("client.call.complete", "service", kind, "cid", corr, "result", response.Result, "fields", len(out), "elapsed", time.Since(start))
	return response, nil
}

// Health reports whether the participant has registered its callbacks.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("tclib client: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tclib client: health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode, Body: raw}
	_ = json.Unmarshal(raw, &apiErr.Response)
	return apiErr
}
