// Package compose validates rendered stack definitions before they are
// materialized. This is part of the Functional Core - no I/O; the input is
// the rendered definition text.
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEmptyDefinition is returned for a blank definition.
	ErrEmptyDefinition = errors.New("definition is empty")

	// ErrInvalidYAML is returned when the definition is not valid YAML or
	// not a loadable compose document.
	ErrInvalidYAML = errors.New("definition is not valid compose YAML")

	// ErrNoServices is returned when the definition declares no services.
	ErrNoServices = errors.New("definition declares no services")
)

// =============================================================================
// Summary
// =============================================================================

// Summary describes a validated definition.
type Summary struct {
	Services []string
	Networks []string
	Volumes  []string
}

// =============================================================================
// Validation
// =============================================================================

// Validate loads the rendered definition through the compose loader and
// returns a summary of its services. Interpolation is skipped: unresolved
// ${VAR} placeholders are a deliberate render policy, not a load error.
func Validate(definition string) (*Summary, error) {
	if strings.TrimSpace(definition) == "" {
		return nil, ErrEmptyDefinition
	}

	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(definition), &dict); err != nil || dict == nil {
		return nil, fmt.Errorf("%w: yaml syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(definition),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("canopy-validate", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = true
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidYAML, err.Error())
	}

	if len(project.Services) == 0 {
		return nil, ErrNoServices
	}

	summary := &Summary{}
	for name := range project.Services {
		summary.Services = append(summary.Services, name)
	}
	for name := range project.Networks {
		summary.Networks = append(summary.Networks, name)
	}
	for name := range project.Volumes {
		summary.Volumes = append(summary.Volumes, name)
	}
	return summary, nil
}
