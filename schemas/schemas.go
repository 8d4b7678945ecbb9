// Package schemas embeds the JSON Schemas for the on-disk documents the CLI
// consumes: experience configurations and session records.
package schemas

import _ "embed"

//go:embed experience.schema.json
var ExperienceSchemaJSON string

//go:embed session.schema.json
var SessionSchemaJSON string
