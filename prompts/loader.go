package prompts

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// entry is one row of the index: where a prompt's template and system prompt
// live.
type entry struct {
	File   string `yaml:"file"`
	System string `yaml:"system"`
}

// Library resolves prompt names to formatted template text. Load it once at
// startup; all methods are read-only afterwards and safe for concurrent use.
type Library struct {
	index map[string]entry
}

// Load parses the embedded index and verifies every referenced file exists.
func Load() (*Library, error) {
	raw, err := files.ReadFile("index.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt index: %w", err)
	}

	index := map[string]entry{}
	if err := yaml.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("failed to parse prompt index: %w", err)
	}

	for name, e := range index {
		if _, err := files.ReadFile(e.File); err != nil {
			return nil, fmt.Errorf("prompt %q references missing file %q: %w", name, e.File, err)
		}
		if e.System != "" {
			if _, err := files.ReadFile(e.System); err != nil {
				return nil, fmt.Errorf("prompt %q references missing system file %q: %w", name, e.System, err)
			}
		}
	}

	return &Library{index: index}, nil
}

// Prompt returns the raw template text for name.
func (l *Library) Prompt(name string) (string, error) {
	e, ok := l.index[name]
	if !ok {
		return "", fmt.Errorf("prompt %q not found in index", name)
	}
	raw, err := files.ReadFile(e.File)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt %q: %w", name, err)
	}
	return string(raw), nil
}

// System returns the system prompt for name, or "" when none is configured.
func (l *Library) System(name string) string {
	e, ok := l.index[name]
	if !ok || e.System == "" {
		return ""
	}
	raw, err := files.ReadFile(e.System)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Format loads the template for name and substitutes {key} placeholders.
//
// A key mapped to "" counts as absent: every line containing its placeholder
// is dropped, so optional fields disappear cleanly instead of rendering an
// empty label.
func (l *Library) Format(name string, vars map[string]string) (string, error) {
	prompt, err := l.Prompt(name)
	if err != nil {
		return "", err
	}

	for key, value := range vars {
		placeholder := "{" + key + "}"
		if value == "" {
			lines := strings.Split(prompt, "\n")
			kept := lines[:0]
			for _, line := range lines {
				if !strings.Contains(line, placeholder) {
					kept = append(kept, line)
				}
			}
			prompt = strings.Join(kept, "\n")
			continue
		}
		prompt = strings.ReplaceAll(prompt, placeholder, value)
	}

	return prompt, nil
}
