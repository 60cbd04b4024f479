// Package registry is the adapter for the government marking registry. It
// answers whether a marking code belongs to a genuine, sold unit.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"verity/internal/verification/models"
)

const (
	verifyPath      = "/api/v1/codes/check"
	maxResponseSize = 1 << 20
	apiKeyHeader    = "X-API-Key"
)

// HTTPClient calls the registry's JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	tracer  trace.Tracer
	now     func() time.Time
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// WithClock sets the clock used for CheckedAt.
func WithClock(now func() time.Time) Option {
	return func(h *HTTPClient) {
		if now != nil {
			h.now = now
		}
	}
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		tracer: otel.Tracer("verity/registry"),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type verifyRequest struct {
	Code string `json:"code"`
}

type verifyResponse struct {
	IsValid      bool   `json:"is_valid"`
	IsSold       bool   `json:"is_sold"`
	Status       string `json:"status"`
	ProductName  string `json:"product_name"`
	ProducerName string `json:"producer_name"`
	ErrorCode    string `json:"error_code"`
}

// Verify checks one marking code. A definitive answer, positive or negative,
// is returned as a result; failures are returned as *Error.
func (c *HTTPClient) Verify(ctx context.Context, code string) (*models.RegistryResult, error) {
	ctx, span := c.tracer.Start(ctx, "registry.verify")
	defer span.End()

	result, err := c.verify(ctx, code)
	if err != nil {
		span.SetAttributes(attribute.String("registry.error_category", string(CategoryOf(err))))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Bool("registry.is_valid", result.IsValid))
	return result, nil
}

func (c *HTTPClient) verify(ctx context.Context, code string) (*models.RegistryResult, error) {
	body, err := json.Marshal(verifyRequest{Code: code})
	if err != nil {
		return nil, NewError(ErrorInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+verifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrorInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var decoded verifyResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, NewError(ErrorBadData, "decode response", err)
	}
	return &models.RegistryResult{
		IsValid:      decoded.IsValid,
		IsSold:       decoded.IsSold,
		Status:       decoded.Status,
		ProductName:  decoded.ProductName,
		ProducerName: decoded.ProducerName,
		ErrorCode:    decoded.ErrorCode,
		CheckedAt:    c.now().UTC(),
	}, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusNotFound:
		return NewError(ErrorNotFound, "marking code not found", nil)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return NewError(ErrorInvalidFormat, "marking code rejected", nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(ErrorAuthentication, fmt.Sprintf("registry refused credentials (%d)", status), nil)
	case status == http.StatusTooManyRequests:
		return NewError(ErrorRateLimited, "registry rate limit reached", nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewError(ErrorTimeout, fmt.Sprintf("registry timed out (%d)", status), nil)
	case status >= 500:
		return NewError(ErrorOutage, fmt.Sprintf("registry unavailable (%d)", status), nil)
	default:
		return NewError(ErrorBadData, fmt.Sprintf("unexpected status %d", status), nil)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTimeout, "registry call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(ErrorTimeout, "registry call timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorInternal, "registry call cancelled", err)
	}
	return NewError(ErrorOutage, "registry unreachable", err)
}
