package projectconfig

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Credentials holds the secrets the pipeline needs. These come from the
// environment only; .boothflow.yaml never carries them.
type Credentials struct {
	// GenerationAPIKey authenticates against the generation API.
	GenerationAPIKey string `env:"BOOTHFLOW_GENAPI_KEY"`

	// WebdriveToken is the bearer token for the HTTP storage provider.
	WebdriveToken string `env:"BOOTHFLOW_WEBDRIVE_TOKEN"`

	// WebdriveRefreshURL, when set, is called to exchange an expired token.
	WebdriveRefreshURL string `env:"BOOTHFLOW_WEBDRIVE_REFRESH_URL"`

	// AzureConnectionString configures the Azure Blob destination.
	AzureConnectionString string `env:"BOOTHFLOW_AZURE_CONNECTION_STRING"`
}

// LoadCredentials reads credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("parsing environment credentials: %w", err)
	}
	return &creds, nil
}
