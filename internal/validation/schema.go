// Package validation checks on-disk experience and session documents against
// the embedded JSON Schemas before they enter the pipeline.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lightbooth/boothflow/schemas"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// defaultPrinter is used to format schema validation error messages.
var defaultPrinter = message.NewPrinter(language.English)

// experienceSchema is the compiled JSON Schema for experience config files.
var experienceSchema *jsonschema.Schema

// sessionSchema is the compiled JSON Schema for session files.
var sessionSchema *jsonschema.Schema

func init() {
	experienceSchema = mustCompileSchema(schemas.ExperienceSchemaJSON, "experience.schema.json")
	sessionSchema = mustCompileSchema(schemas.SessionSchemaJSON, "session.schema.json")
}

func mustCompileSchema(raw string, name string) *jsonschema.Schema {
	var schemaDoc any
	if err := json.Unmarshal([]byte(raw), &schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to parse embedded %s: %v", name, err))
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, schemaDoc); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}

	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return sch
}

// ValidateExperienceFile validates an experience config YAML file.
func ValidateExperienceFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading experience file: %w", err)
	}
	return ValidateExperienceBytes(data), nil
}

// ValidateSessionFile validates a session YAML file.
func ValidateSessionFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading session file: %w", err)
	}
	return ValidateSessionBytes(data), nil
}

// ValidateExperienceBytes validates raw YAML bytes against the experience schema.
func ValidateExperienceBytes(data []byte) []string {
	return validateYAMLBytes(experienceSchema, data)
}

// ValidateSessionBytes validates raw YAML bytes against the session schema.
func ValidateSessionBytes(data []byte) []string {
	return validateYAMLBytes(sessionSchema, data)
}

func validateYAMLBytes(schema *jsonschema.Schema, data []byte) []string {
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return []string{fmt.Sprintf("YAML parse error: %v", err)}
	}

	return validateAgainstSchema(schema, convertToJSONCompatible(yamlDoc))
}

func validateAgainstSchema(schema *jsonschema.Schema, instance any) []string {
	err := schema.Validate(instance)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{fmt.Sprintf("schema: %v", err)}
	}
	var errs []string
	collectSchemaErrors(ve, &errs)
	return errs
}

func collectSchemaErrors(ve *jsonschema.ValidationError, errs *[]string) {
	if len(ve.Causes) == 0 {
		loc := "/"
		if len(ve.InstanceLocation) > 0 {
			loc = "/" + strings.Join(ve.InstanceLocation, "/")
		}
		*errs = append(*errs, fmt.Sprintf("%s: %s", loc, ve.ErrorKind.LocalizedString(defaultPrinter)))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, errs)
	}
}

// convertToJSONCompatible converts YAML-decoded values to JSON-compatible
// types. yaml.v3 decodes timestamps to time.Time, which the schema treats as
// strings.
func convertToJSONCompatible(v any) any {
	switch val := v.(type) {
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v2 := range val {
			result[k] = convertToJSONCompatible(v2)
		}
		return result
	case []any:
		result := make([]any, len(val))
		for i, v2 := range val {
			result[i] = convertToJSONCompatible(v2)
		}
		return result
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return val
	}
}
