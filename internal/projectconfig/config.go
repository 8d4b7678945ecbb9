// Package projectconfig provides the ProjectConfig struct and loader for
// .boothflow.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the project config file searched for by Load.
const ConfigFileName = ".boothflow.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultAssetsDir    = "assets/"
	DefaultDatabasePath = ".boothflow/jobs.db"

	DefaultGenerationEndpoint = "https://genapi.lightbooth.example"

	DefaultPhotoTimeoutSeconds = 15
	DefaultImageTimeoutSeconds = 60
	DefaultVideoTimeoutSeconds = 300

	DefaultWorkers            = 2
	DefaultPollIntervalMillis = 1000

	DefaultRetryBackoffMillis = 500
	DefaultRetryMaxAttempts   = 3

	DefaultResultPageBaseURL = "https://results.lightbooth.example"
)

// PathsConfig holds local filesystem locations.
type PathsConfig struct {
	Assets   string `yaml:"assets,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// GenerationConfig holds generation API settings. The API key comes from the
// environment, never from this file.
type GenerationConfig struct {
	Endpoint            string `yaml:"endpoint,omitempty"`
	PhotoTimeoutSeconds int    `yaml:"photo_timeout_seconds,omitempty"`
	ImageTimeoutSeconds int    `yaml:"image_timeout_seconds,omitempty"`
	VideoTimeoutSeconds int    `yaml:"video_timeout_seconds,omitempty"`
}

// WorkerConfig holds job worker pool settings.
type WorkerConfig struct {
	Workers            int `yaml:"workers,omitempty"`
	PollIntervalMillis int `yaml:"poll_interval_ms,omitempty"`
}

// WebdriveConfig holds the HTTP storage provider destination settings.
type WebdriveConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// AzureConfig holds the Azure Blob destination settings. The connection
// string comes from the environment; account_url is the alternative for
// credential-chain auth.
type AzureConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	AccountURL string `yaml:"account_url,omitempty"`
	Container  string `yaml:"container,omitempty"`
	Prefix     string `yaml:"prefix,omitempty"`
}

// DeliveryConfig holds export retry and notification settings.
type DeliveryConfig struct {
	RetryBackoffMillis int            `yaml:"retry_backoff_ms,omitempty"`
	RetryMaxAttempts   int            `yaml:"retry_max_attempts,omitempty"`
	ResultPageBaseURL  string         `yaml:"result_page_base_url,omitempty"`
	Webdrive           WebdriveConfig `yaml:"webdrive,omitempty"`
	Azure              AzureConfig    `yaml:"azure,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .boothflow.yaml.
type ProjectConfig struct {
	Paths      PathsConfig      `yaml:"paths,omitempty"`
	Generation GenerationConfig `yaml:"generation,omitempty"`
	Worker     WorkerConfig     `yaml:"worker,omitempty"`
	Delivery   DeliveryConfig   `yaml:"delivery,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Paths: PathsConfig{
			Assets:   DefaultAssetsDir,
			Database: DefaultDatabasePath,
		},
		Generation: GenerationConfig{
			Endpoint:            DefaultGenerationEndpoint,
			PhotoTimeoutSeconds: DefaultPhotoTimeoutSeconds,
			ImageTimeoutSeconds: DefaultImageTimeoutSeconds,
			VideoTimeoutSeconds: DefaultVideoTimeoutSeconds,
		},
		Worker: WorkerConfig{
			Workers:            DefaultWorkers,
			PollIntervalMillis: DefaultPollIntervalMillis,
		},
		Delivery: DeliveryConfig{
			RetryBackoffMillis: DefaultRetryBackoffMillis,
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			ResultPageBaseURL:  DefaultResultPageBaseURL,
			Webdrive: WebdriveConfig{
				Enabled: boolPtr(false),
			},
			Azure: AzureConfig{
				Enabled: boolPtr(false),
			},
		},
	}
}

// Load finds .boothflow.yaml by walking up from startDir (max 10 levels),
// unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
// Real I/O errors (e.g. permission denied) are returned to the caller.
func Load(startDir string) (*ProjectConfig, error) {
	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil // no file found → return defaults
		}
		return nil, fmt.Errorf("loading .boothflow.yaml: %w", err)
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing .boothflow.yaml: %w", err)
	}

	// Merge file values onto defaults.
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .boothflow.yaml (max 10
// levels). Returns os.ErrNotExist if no config file is found. Propagates real
// I/O errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	// Convert to absolute path so filepath.Dir(".") walks correctly.
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ConfigFileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Assets != "" {
		dst.Paths.Assets = src.Paths.Assets
	}
	if src.Paths.Database != "" {
		dst.Paths.Database = src.Paths.Database
	}

	// Generation
	if src.Generation.Endpoint != "" {
		dst.Generation.Endpoint = src.Generation.Endpoint
	}
	if src.Generation.PhotoTimeoutSeconds != 0 {
		dst.Generation.PhotoTimeoutSeconds = src.Generation.PhotoTimeoutSeconds
	}
	if src.Generation.ImageTimeoutSeconds != 0 {
		dst.Generation.ImageTimeoutSeconds = src.Generation.ImageTimeoutSeconds
	}
	if src.Generation.VideoTimeoutSeconds != 0 {
		dst.Generation.VideoTimeoutSeconds = src.Generation.VideoTimeoutSeconds
	}

	// Worker
	if src.Worker.Workers != 0 {
		dst.Worker.Workers = src.Worker.Workers
	}
	if src.Worker.PollIntervalMillis != 0 {
		dst.Worker.PollIntervalMillis = src.Worker.PollIntervalMillis
	}

	// Delivery
	if src.Delivery.RetryBackoffMillis != 0 {
		dst.Delivery.RetryBackoffMillis = src.Delivery.RetryBackoffMillis
	}
	if src.Delivery.RetryMaxAttempts != 0 {
		dst.Delivery.RetryMaxAttempts = src.Delivery.RetryMaxAttempts
	}
	if src.Delivery.ResultPageBaseURL != "" {
		dst.Delivery.ResultPageBaseURL = src.Delivery.ResultPageBaseURL
	}
	if src.Delivery.Webdrive.Enabled != nil {
		dst.Delivery.Webdrive.Enabled = src.Delivery.Webdrive.Enabled
	}
	if src.Delivery.Webdrive.Endpoint != "" {
		dst.Delivery.Webdrive.Endpoint = src.Delivery.Webdrive.Endpoint
	}
	if src.Delivery.Azure.Enabled != nil {
		dst.Delivery.Azure.Enabled = src.Delivery.Azure.Enabled
	}
	if src.Delivery.Azure.AccountURL != "" {
		dst.Delivery.Azure.AccountURL = src.Delivery.Azure.AccountURL
	}
	if src.Delivery.Azure.Container != "" {
		dst.Delivery.Azure.Container = src.Delivery.Azure.Container
	}
	if src.Delivery.Azure.Prefix != "" {
		dst.Delivery.Azure.Prefix = src.Delivery.Azure.Prefix
	}
}

func boolPtr(b bool) *bool {
	return &b
}
