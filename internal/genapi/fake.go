package genapi

import (
	"context"
	"sync"

	"github.com/lightbooth/boothflow/internal/models"
)

// FakeClient is a test double that records every request it receives and
// returns a canned result or error.
type FakeClient struct {
	mu       sync.Mutex
	requests []*Request

	Result *Result
	Err    error

	// Delay, when set, blocks each call until the duration elapses or the
	// context is done (whichever comes first).
	Delay func(ctx context.Context) error
}

// NewFakeClient returns a fake producing a minimal successful result.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Result: &Result{
			AssetID:   "fake-asset",
			URL:       "https://media.example/fake-asset",
			Format:    models.FormatImage,
			Width:     1024,
			Height:    1024,
			SizeBytes: 2048,
		},
	}
}

func (f *FakeClient) Generate(ctx context.Context, req *Request) (*Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Delay != nil {
		if err := f.Delay(ctx); err != nil {
			return nil, err
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Result, nil
}

// Requests returns a copy of all recorded requests.
func (f *FakeClient) Requests() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// CallCount returns how many Generate calls were made.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var _ Client = (*FakeClient)(nil)
