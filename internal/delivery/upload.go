package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/lightbooth/boothflow/internal/faults"
)

// Default size thresholds for the HTTP upload provider.
const (
	DefaultSingleUploadLimit = 150 << 20
	DefaultMaxUploadSize     = 500 << 20
	DefaultChunkSize         = 8 << 20
)

// revokedGrantMarker is the error value the provider returns on a 401 when
// the integration's grant was revoked server-side. Refreshing the token
// cannot recover this; the destination must be reconnected by an operator.
const revokedGrantMarker = "grant_revoked"

// ChunkedUploadClientConfig configures a ChunkedUploadClient.
type ChunkedUploadClientConfig struct {
	// ProviderName keys the export log. Defaults to "webdrive".
	ProviderName string

	// Endpoint is the provider's API base URL.
	Endpoint string

	// Token is the current bearer token.
	Token string

	// RefreshToken exchanges the current token for a fresh one. Called at
	// most once per upload, on the first plain 401. Optional.
	RefreshToken func(ctx context.Context) (string, error)

	// Transport overrides the HTTP client. Optional.
	Transport *http.Client

	// Size thresholds, zero means the package defaults.
	SingleUploadLimit int64
	MaxUploadSize     int64
	ChunkSize         int64
}

// ChunkedUploadClient uploads to a generic HTTP storage provider. Payloads at
// or under the single-upload limit go up in one request; larger payloads use
// an open/append/finish session with fixed-size sequential chunks. Payloads
// over the hard ceiling are rejected before any network traffic.
type ChunkedUploadClient struct {
	cfg ChunkedUploadClientConfig

	mu        sync.Mutex
	token     string
	refreshed bool

	// NeedsReauth flips when the provider reports a revoked grant. Once set,
	// every upload fails immediately until the destination is reconnected.
	needsReauth bool
}

// NewChunkedUploadClient creates a client for cfg, applying defaults.
func NewChunkedUploadClient(cfg ChunkedUploadClientConfig) *ChunkedUploadClient {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "webdrive"
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultClient
	}
	if cfg.SingleUploadLimit == 0 {
		cfg.SingleUploadLimit = DefaultSingleUploadLimit
	}
	if cfg.MaxUploadSize == 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &ChunkedUploadClient{cfg: cfg, token: cfg.Token}
}

// Name returns the provider name used in export logs.
func (c *ChunkedUploadClient) Name() string { return c.cfg.ProviderName }

// NeedsReauth reports whether the provider revoked this client's grant.
func (c *ChunkedUploadClient) NeedsReauth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.needsReauth
}

// Upload sends the payload, routing by size.
func (c *ChunkedUploadClient) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if c.NeedsReauth() {
		return nil, faults.Auth(faults.CodeNeedsReauth, true, "%s grant revoked, reconnect the destination", c.cfg.ProviderName)
	}
	if req.SizeBytes > c.cfg.MaxUploadSize {
		return nil, faults.Validation(faults.CodeFileSizeExceeded,
			"payload is %d bytes, provider limit is %d", req.SizeBytes, c.cfg.MaxUploadSize)
	}

	body, size, err := req.Payload()
	if err != nil {
		return nil, fmt.Errorf("opening upload payload: %w", err)
	}
	defer body.Close() //nolint:errcheck

	// The declared size is caller input; the ceiling holds against the
	// actual payload size too.
	if size > c.cfg.MaxUploadSize {
		return nil, faults.Validation(faults.CodeFileSizeExceeded,
			"payload is %d bytes, provider limit is %d", size, c.cfg.MaxUploadSize)
	}

	if size <= c.cfg.SingleUploadLimit {
		return c.uploadSingle(ctx, req.FileName, body, size)
	}
	return c.uploadChunked(ctx, req.FileName, body, size)
}

func (c *ChunkedUploadClient) uploadSingle(ctx context.Context, name string, body io.Reader, size int64) (*UploadResult, error) {
	// Buffered so the request can be replayed after a token refresh.
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading upload payload: %w", err)
	}

	var resp struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	err = c.doJSON(ctx, http.MethodPut, fmt.Sprintf("/files/%s", name), payload, map[string]string{
		"Content-Length": fmt.Sprintf("%d", size),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Path: resp.Path, URL: resp.URL}, nil
}

func (c *ChunkedUploadClient) uploadChunked(ctx context.Context, name string, body io.Reader, size int64) (*UploadResult, error) {
	var opened struct {
		UploadID string `json:"uploadId"`
	}
	openReq, err := json.Marshal(map[string]any{"fileName": name, "sizeBytes": size})
	if err != nil {
		return nil, err
	}
	if err := c.doJSON(ctx, http.MethodPost, "/uploads", openReq, nil, &opened); err != nil {
		return nil, fmt.Errorf("opening upload session: %w", err)
	}

	chunk := make([]byte, c.cfg.ChunkSize)
	var offset int64
	for offset < size {
		n, readErr := io.ReadFull(body, chunk)
		if readErr == io.ErrUnexpectedEOF || readErr == io.EOF {
			readErr = nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("reading chunk at offset %d: %w", offset, readErr)
		}
		if n == 0 {
			return nil, fmt.Errorf("payload ended at %d bytes, expected %d", offset, size)
		}

		var appended struct {
			NextOffset int64 `json:"nextOffset"`
		}
		err := c.doJSON(ctx, http.MethodPut,
			fmt.Sprintf("/uploads/%s/chunks?offset=%d", opened.UploadID, offset),
			chunk[:n], nil, &appended)
		if err != nil {
			return nil, fmt.Errorf("appending chunk at offset %d: %w", offset, err)
		}

		offset += int64(n)
		if appended.NextOffset != offset {
			return nil, faults.Transient(faults.CodeUpstreamError, nil,
				"provider acknowledged offset %d, expected %d", appended.NextOffset, offset)
		}
	}

	var finished struct {
		Path string `json:"path"`
		URL  string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/uploads/%s/complete", opened.UploadID), nil, nil, &finished); err != nil {
		return nil, fmt.Errorf("finishing upload session: %w", err)
	}
	return &UploadResult{Path: finished.Path, URL: finished.URL}, nil
}

// doJSON sends one request with auth, mapping failures onto the error
// taxonomy and decoding a JSON response into out when out is non-nil.
func (c *ChunkedUploadClient) doJSON(ctx context.Context, method, path string, body []byte, headers map[string]string, out any) error {
	send := func(token string) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.Endpoint+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
		for k, v := range headers {
			httpReq.Header.Set(k, v)
		}
		return c.cfg.Transport.Do(httpReq)
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	resp, err := send(token)
	if err != nil {
		if ctx.Err() != nil {
			return faults.Transient(faults.CodeTimeout, err, "upload request timed out")
		}
		return faults.Transient(faults.CodeUpstreamError, err, "upload request failed")
	}

	if resp.StatusCode == http.StatusUnauthorized {
		marker := drainBody(resp)
		if strings.Contains(marker, revokedGrantMarker) {
			c.markRevoked()
			return faults.Auth(faults.CodeNeedsReauth, true, "%s grant revoked, reconnect the destination", c.cfg.ProviderName)
		}

		fresh, refreshErr := c.refreshOnce(ctx)
		if refreshErr != nil {
			return faults.Auth(faults.CodeAuthFailed, false, "token refresh failed: %v", refreshErr)
		}
		resp, err = send(fresh)
		if err != nil {
			return faults.Transient(faults.CodeUpstreamError, err, "upload request failed after refresh")
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drainBody(resp)
			return faults.Auth(faults.CodeAuthFailed, false, "provider rejected refreshed credentials")
		}
	}

	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decoding provider response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return faults.Transient(faults.CodeRateLimited, nil, "provider rate limited the upload")
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return faults.Transient(faults.CodeUpstreamError, nil, "provider returned %d", resp.StatusCode)
	default:
		return faults.Validation(faults.CodeInvalidReference, "provider rejected the request with %d", resp.StatusCode)
	}
}

// refreshOnce exchanges the token at most one time per client. A second
// caller observing refreshed just reuses whatever token the first obtained.
func (c *ChunkedUploadClient) refreshOnce(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshed || c.cfg.RefreshToken == nil {
		if c.refreshed {
			return c.token, nil
		}
		return "", fmt.Errorf("no refresh configured")
	}
	c.refreshed = true

	fresh, err := c.cfg.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = fresh
	return fresh, nil
}

func (c *ChunkedUploadClient) markRevoked() {
	c.mu.Lock()
	c.needsReauth = true
	c.mu.Unlock()
}

func drainBody(resp *http.Response) string {
	defer resp.Body.Close() //nolint:errcheck
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return string(b)
}

var _ Destination = (*ChunkedUploadClient)(nil)
