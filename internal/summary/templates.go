// Package summary runs prompt templates against completed transcripts and
// stores one outcome per template.
package summary

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Template is one named prompt sent to the provider's query endpoint.
type Template struct {
	Key    string `yaml:"key"`
	Prompt string `yaml:"prompt"`
}

// DefaultTemplates is used when no template file is configured.
func DefaultTemplates() []Template {
	return []Template{{
		Key: "meeting_summary",
		Prompt: "Meeting summary. Give a detailed account of this recording, highlighting the main topics and key points. " +
			"List action items as TASK, OWNER, DATE and write unknown when the owner or date cannot be determined. " +
			"Format the answer as Markdown.",
	}}
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads templates from a YAML file of the form
//
//	templates:
//	  - key: meeting_summary
//	    prompt: ...
//
// An empty path yields DefaultTemplates.
func LoadTemplates(path string) ([]Template, error) {
	if path == "" {
		return DefaultTemplates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var file templateFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", path, err)
	}
	if err := validate(file.Templates); err != nil {
		return nil, fmt.Errorf("templates %s: %w", path, err)
	}
	return file.Templates, nil
}

func validate(templates []Template) error {
	if len(templates) == 0 {
		return fmt.Errorf("no templates defined")
	}
	seen := make(map[string]bool, len(templates))
	for i, t := range templates {
		key := strings.TrimSpace(t.Key)
		if key == "" {
			return fmt.Errorf("template %d: key is required", i)
		}
		if strings.TrimSpace(t.Prompt) == "" {
			return fmt.Errorf("template %s: prompt is required", key)
		}
		if seen[key] {
			return fmt.Errorf("template %s: duplicate key", key)
		}
		seen[key] = true
	}
	return nil
}
