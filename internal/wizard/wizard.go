package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/charmbracelet/huh"
	"github.com/lightbooth/boothflow/internal/projectconfig"
	"golang.org/x/term"
)

// ProjectSpec holds all fields collected during the interactive setup wizard.
type ProjectSpec struct {
	AssetsDir          string
	DatabasePath       string
	GenerationEndpoint string
	Workers            int
	WebdriveEnabled    bool
	WebdriveEndpoint   string
	AzureEnabled       bool
	AzureContainer     string
	AzurePrefix        string
}

const configTemplate = `# boothflow project configuration
paths:
  assets: {{ .AssetsDir }}
  database: {{ .DatabasePath }}

generation:
  endpoint: {{ .GenerationEndpoint }}

worker:
  workers: {{ .Workers }}

delivery:
{{- if .WebdriveEnabled }}
  webdrive:
    enabled: true
    endpoint: {{ .WebdriveEndpoint }}
{{- else }}
  webdrive:
    enabled: false
{{- end }}
{{- if .AzureEnabled }}
  azure:
    enabled: true
    container: {{ .AzureContainer }}
{{- if .AzurePrefix }}
    prefix: {{ .AzurePrefix }}
{{- end }}
{{- else }}
  azure:
    enabled: false
{{- end }}
`

// RunProjectWizard runs an interactive huh form to collect project settings.
func RunProjectWizard(in io.Reader, out io.Writer) (*ProjectSpec, error) {
	var (
		assetsDir          = projectconfig.DefaultAssetsDir
		databasePath       = projectconfig.DefaultDatabasePath
		generationEndpoint = projectconfig.DefaultGenerationEndpoint
		workersRaw         = strconv.Itoa(projectconfig.DefaultWorkers)
		webdriveEnabled    bool
		webdriveEndpoint   string
		azureEnabled       bool
		azureContainer     string
		azurePrefix        string
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Assets directory").
				Description("Where generated media is stored").
				Value(&assetsDir).
				Validate(requireNonEmpty("assets directory")),
			huh.NewInput().
				Title("Database path").
				Description("SQLite file for the job store").
				Value(&databasePath).
				Validate(requireNonEmpty("database path")),
			huh.NewInput().
				Title("Generation endpoint").
				Description("Base URL of the generation API").
				Value(&generationEndpoint).
				Validate(requireNonEmpty("generation endpoint")),
			huh.NewInput().
				Title("Worker slots").
				Description("How many jobs run concurrently").
				Value(&workersRaw).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 1 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable webdrive exports?").
				Value(&webdriveEnabled),
			huh.NewInput().
				Title("Webdrive endpoint").
				Description("Leave blank if webdrive is disabled").
				Placeholder("https://webdrive.example/api").
				Value(&webdriveEndpoint),
			huh.NewConfirm().
				Title("Enable Azure Blob exports?").
				Value(&azureEnabled),
			huh.NewInput().
				Title("Azure container").
				Description("Leave blank if Azure is disabled").
				Placeholder("booth-results").
				Value(&azureContainer),
			huh.NewInput().
				Title("Azure blob prefix").
				Placeholder("exports/").
				Value(&azurePrefix),
		),
	).
		WithInput(in).
		WithOutput(out)

	// Use accessible mode for non-TTY input (e.g., tests, piped input).
	if f, ok := in.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("wizard failed: %w", err)
	}

	workers, _ := strconv.Atoi(strings.TrimSpace(workersRaw))

	spec := &ProjectSpec{
		AssetsDir:          strings.TrimSpace(assetsDir),
		DatabasePath:       strings.TrimSpace(databasePath),
		GenerationEndpoint: strings.TrimSpace(generationEndpoint),
		Workers:            workers,
		WebdriveEnabled:    webdriveEnabled,
		WebdriveEndpoint:   strings.TrimSpace(webdriveEndpoint),
		AzureEnabled:       azureEnabled,
		AzureContainer:     strings.TrimSpace(azureContainer),
		AzurePrefix:        strings.TrimSpace(azurePrefix),
	}

	if spec.WebdriveEnabled && spec.WebdriveEndpoint == "" {
		return nil, fmt.Errorf("webdrive is enabled but no endpoint was given")
	}
	if spec.AzureEnabled && spec.AzureContainer == "" {
		return nil, fmt.Errorf("azure is enabled but no container was given")
	}

	return spec, nil
}

// GenerateConfigYAML renders a .boothflow.yaml from the given spec.
func GenerateConfigYAML(spec *ProjectSpec) (string, error) {
	tmpl, err := template.New("boothflowyaml").Parse(configTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, spec); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func requireNonEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
