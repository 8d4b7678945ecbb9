package genapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lightbooth/boothflow/internal/faults"
)

// HTTPClient calls a generation endpoint over HTTP with bearer auth.
type HTTPClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPClient creates a client for the given endpoint. The http.Client
// carries no timeout of its own; callers bound each Generate with a context
// deadline sized to the media type.
func NewHTTPClient(endpoint, apiKey string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{},
	}
}

// Generate posts the request and maps failure classes onto the error
// taxonomy: timeouts and 5xx are transient, auth failures are AuthError,
// other 4xx are validation errors.
func (c *HTTPClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, faults.Transient(faults.CodeTimeout, err, "generation call timed out")
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, faults.Transient(faults.CodeUpstreamError, err, "generation call failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, faults.Transient(faults.CodeUpstreamError, err, "decoding generation response")
	}

	return &result, nil
}

func (c *HTTPClient) statusError(resp *http.Response) error {
	// Read a short error body for the message; upstream errors are JSON but
	// plain text happens during outages.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	msg := string(bytes.TrimSpace(raw))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return faults.Auth(faults.CodeAuthFailed, false, "generation API rejected credentials: %s", msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return faults.Transient(faults.CodeRateLimited, nil, "generation API rate limited: %s", msg)
	case resp.StatusCode == http.StatusRequestTimeout:
		return faults.Transient(faults.CodeTimeout, nil, "generation API timed out: %s", msg)
	case resp.StatusCode >= 500:
		return faults.Transient(faults.CodeUpstreamError, nil, "generation API returned %d: %s", resp.StatusCode, msg)
	default:
		return faults.Validation(faults.CodeInvalidReference, "generation API returned %d: %s", resp.StatusCode, msg)
	}
}

var _ Client = (*HTTPClient)(nil)
