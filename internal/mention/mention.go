// Package mention resolves templated tokens inside prompt text against
// session responses and reference media. Two token families exist:
//
//	@{step:<name>}  substitutes the named step's response value
//	@{ref:<name>}   collects the named reference media as a generation input
//
// Unknown or unresolvable tokens never block execution: they stay in the
// text as literals and are reported as warnings.
package mention

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/lightbooth/boothflow/internal/models"
)

var tokenPattern = regexp.MustCompile(`@\{(step|ref):([^}]+)\}`)

// Resolution is the outcome of resolving one template.
type Resolution struct {
	// ResolvedText is the template with step tokens substituted. Ref tokens
	// and unresolvable tokens remain as literal text.
	ResolvedText string

	// MediaRefs are the referenced media items, in first-occurrence order,
	// for the caller to attach as generation inputs.
	MediaRefs []models.MediaReference

	// Warnings lists tokens that could not be resolved. Non-fatal.
	Warnings []string
}

// responseOptions is the context payload shape for choice steps. Each option
// may define a prompt fragment that replaces the raw value in prompts.
type responseOptions struct {
	Options []struct {
		Value          string `mapstructure:"value"`
		Label          string `mapstructure:"label"`
		PromptFragment string `mapstructure:"prompt_fragment"`
	} `mapstructure:"options"`
}

// Resolve scans template for mention tokens and substitutes them from the
// given responses and reference media. It never fails; anything it cannot
// resolve is left literal and reported in Warnings.
func Resolve(template string, responses []models.StepResponse, refMedia []models.MediaReference) Resolution {
	res := Resolution{}
	seenRefs := make(map[string]bool)

	res.ResolvedText = tokenPattern.ReplaceAllStringFunc(template, func(token string) string {
		parts := tokenPattern.FindStringSubmatch(token)
		family, name := parts[1], strings.TrimSpace(parts[2])

		switch family {
		case "step":
			text, ok := resolveStep(name, responses)
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("unresolved step mention %q", name))
				return token
			}
			return text

		case "ref":
			ref, ok := findReference(name, refMedia)
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("unresolved reference mention %q", name))
				return token
			}
			if !seenRefs[ref.AssetID] {
				seenRefs[ref.AssetID] = true
				res.MediaRefs = append(res.MediaRefs, ref)
			}
			// Reference tokens contribute media, not text.
			return ""
		}

		return token
	})

	return res
}

func resolveStep(name string, responses []models.StepResponse) (string, bool) {
	var resp *models.StepResponse
	for i := range responses {
		if responses[i].StepName == name || responses[i].StepID == name {
			resp = &responses[i]
			break
		}
	}
	if resp == nil {
		return "", false
	}

	if selections := resp.Selections(); selections != nil {
		return joinSelections(resp, selections), true
	}

	return resp.ScalarValue()
}

// joinSelections renders a multi-select response as a comma-joined list of
// each selected option's prompt fragment, falling back to the raw value when
// the option defines no fragment.
func joinSelections(resp *models.StepResponse, selections []string) string {
	fragments := make(map[string]string)
	var opts responseOptions
	if err := mapstructure.Decode(resp.Context, &opts); err == nil {
		for _, opt := range opts.Options {
			if opt.PromptFragment != "" {
				fragments[opt.Value] = opt.PromptFragment
			}
		}
	}

	parts := make([]string, 0, len(selections))
	for _, sel := range selections {
		if frag, ok := fragments[sel]; ok {
			parts = append(parts, frag)
		} else {
			parts = append(parts, sel)
		}
	}
	return strings.Join(parts, ", ")
}

func findReference(name string, refMedia []models.MediaReference) (models.MediaReference, bool) {
	for _, ref := range refMedia {
		if ref.DisplayName == name || ref.AssetID == name {
			return ref, true
		}
	}
	return models.MediaReference{}, false
}
