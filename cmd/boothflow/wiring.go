package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/lightbooth/boothflow/internal/assets"
	"github.com/lightbooth/boothflow/internal/delivery"
	"github.com/lightbooth/boothflow/internal/genapi"
	"github.com/lightbooth/boothflow/internal/jobstore"
	"github.com/lightbooth/boothflow/internal/pipeline"
	"github.com/lightbooth/boothflow/internal/projectconfig"
)

func warnToStderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// runtime bundles everything a pipeline invocation needs, built from the
// project config and environment credentials.
type runtime struct {
	cfg          *projectconfig.ProjectConfig
	store        *jobstore.SQLiteStore
	assets       *assets.DirStore
	gen          genapi.Client
	orchestrator *pipeline.Orchestrator
}

func (r *runtime) Close() error {
	return r.store.Close()
}

func (r *runtime) generator() genapi.Client { return r.gen }

func (r *runtime) timeouts() pipeline.Timeouts {
	return pipeline.Timeouts{
		Photo:   time.Duration(r.cfg.Generation.PhotoTimeoutSeconds) * time.Second,
		AIImage: time.Duration(r.cfg.Generation.ImageTimeoutSeconds) * time.Second,
		AIVideo: time.Duration(r.cfg.Generation.VideoTimeoutSeconds) * time.Second,
	}
}

// newRuntime loads configuration from the working directory and wires the
// store, asset store, destinations, and orchestrator together.
func newRuntime() (*runtime, error) {
	cfg, err := projectconfig.Load(".")
	if err != nil {
		return nil, err
	}
	creds, err := projectconfig.LoadCredentials()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Paths.Database), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	store, err := jobstore.Open(cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("opening job store: %w", err)
	}

	assetStore := assets.NewDirStore(cfg.Paths.Assets)

	generator := genapi.NewHTTPClient(cfg.Generation.Endpoint, creds.GenerationAPIKey)

	destinations, err := buildDestinations(cfg, creds)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rt := &runtime{cfg: cfg, store: store, assets: assetStore, gen: generator}

	opts := []pipeline.Option{
		pipeline.WithTimeouts(rt.timeouts()),
		pipeline.WithWarnLogger(warnToStderr),
	}
	if len(destinations) > 0 {
		dispatcher := delivery.NewDispatcher(store, assetStore, destinations,
			delivery.WithWarnLogger(warnToStderr),
			delivery.WithBackoff(
				time.Duration(cfg.Delivery.RetryBackoffMillis)*time.Millisecond,
				retriesFromAttempts(cfg.Delivery.RetryMaxAttempts),
			),
		)
		opts = append(opts, pipeline.WithDispatcher(dispatcher))
	}

	rt.orchestrator = pipeline.New(store, generator, assetStore, opts...)
	return rt, nil
}

// retriesFromAttempts converts a total attempt budget into a retry count.
func retriesFromAttempts(attempts int) uint64 {
	if attempts <= 1 {
		return 0
	}
	return uint64(attempts - 1)
}

func buildDestinations(cfg *projectconfig.ProjectConfig, creds *projectconfig.Credentials) ([]delivery.Destination, error) {
	var destinations []delivery.Destination

	if cfg.Delivery.Webdrive.Enabled != nil && *cfg.Delivery.Webdrive.Enabled {
		if cfg.Delivery.Webdrive.Endpoint == "" {
			return nil, fmt.Errorf("webdrive destination enabled but no endpoint configured")
		}
		clientCfg := delivery.ChunkedUploadClientConfig{
			Endpoint: cfg.Delivery.Webdrive.Endpoint,
			Token:    creds.WebdriveToken,
		}
		if creds.WebdriveRefreshURL != "" {
			clientCfg.RefreshToken = refreshTokenFunc(creds.WebdriveRefreshURL, creds.WebdriveToken)
		}
		destinations = append(destinations, delivery.NewChunkedUploadClient(clientCfg))
	}

	if cfg.Delivery.Azure.Enabled != nil && *cfg.Delivery.Azure.Enabled {
		if cfg.Delivery.Azure.Container == "" {
			return nil, fmt.Errorf("azure destination enabled but no container configured")
		}
		var dest *delivery.AzureBlobDestination
		var err error
		switch {
		case creds.AzureConnectionString != "":
			dest, err = delivery.NewAzureBlobDestinationFromConnectionString(
				creds.AzureConnectionString, cfg.Delivery.Azure.Container, cfg.Delivery.Azure.Prefix)
		case cfg.Delivery.Azure.AccountURL != "":
			dest, err = delivery.NewAzureBlobDestinationFromAccountURL(
				cfg.Delivery.Azure.AccountURL, cfg.Delivery.Azure.Container, cfg.Delivery.Azure.Prefix)
		default:
			return nil, fmt.Errorf("azure destination enabled but neither BOOTHFLOW_AZURE_CONNECTION_STRING nor account_url is set")
		}
		if err != nil {
			return nil, err
		}
		destinations = append(destinations, dest)
	}

	return destinations, nil
}

// refreshTokenFunc exchanges the stale token at the provider's refresh
// endpoint.
func refreshTokenFunc(refreshURL, staleToken string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, refreshURL, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+staleToken)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("token refresh returned %d", resp.StatusCode)
		}

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("decoding refresh response: %w", err)
		}
		if body.Token == "" {
			return "", fmt.Errorf("token refresh returned an empty token")
		}
		return body.Token, nil
	}
}
