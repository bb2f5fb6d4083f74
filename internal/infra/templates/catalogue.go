// Package templates holds the embedded catalogue of system templates.
package templates

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"notify-dispatch/internal/domain/entity"
)

//go:embed catalogue.yaml
var catalogueYAML []byte

type catalogueFile struct {
	Templates []catalogueEntry `yaml:"templates"`
}

type catalogueEntry struct {
	Slug        string            `yaml:"slug"`
	Name        string            `yaml:"name"`
	Type        string            `yaml:"type"`
	Channel     string            `yaml:"channel"`
	Subject     *string           `yaml:"subject"`
	Body        string            `yaml:"body"`
	Description string            `yaml:"description"`
	Variables   map[string]string `yaml:"variables"`
	Defaults    map[string]any    `yaml:"defaults"`
	Metadata    map[string]any    `yaml:"metadata"`
}

// System returns the embedded system templates.
func System() ([]entity.NotificationTemplate, error) {
	return Parse(catalogueYAML)
}

// Parse decodes a catalogue document. Entries are checked for structure and
// for duplicate (slug, channel) pairs.
func Parse(data []byte) ([]entity.NotificationTemplate, error) {
	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse template catalogue: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Templates))
	out := make([]entity.NotificationTemplate, 0, len(f.Templates))
	for i, e := range f.Templates {
		t := entity.NotificationTemplate{
			// placeholder id for validation; the template service assigns the real one
			ID:          "catalogue-" + e.Slug,
			Name:        e.Name,
			Slug:        e.Slug,
			Type:        entity.NotificationType(e.Type),
			Channel:     entity.Channel(e.Channel),
			Subject:     e.Subject,
			Body:        e.Body,
			Description: e.Description,
			Variables:   e.Variables,
			Defaults:    e.Defaults,
			IsSystem:    true,
			IsActive:    true,
			Metadata:    e.Metadata,
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("template catalogue entry %d: %w", i, err)
		}
		key := e.Slug + "/" + e.Channel
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("template catalogue entry %d: duplicate slug %q on channel %s", i, e.Slug, e.Channel)
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
