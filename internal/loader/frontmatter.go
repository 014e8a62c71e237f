package loader

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the parsed /*--- ... ---*/ header of a SQL file.
type Frontmatter struct {
	Name        string
	Description string
	Tests       []ColumnTests
	// Config holds the node config keys set in the header.
	Config map[string]any
}

// ColumnTests declares generated tests on the model's columns.
type ColumnTests struct {
	Unique         []string              `yaml:"unique,omitempty"`
	NotNull        []string              `yaml:"not_null,omitempty"`
	AcceptedValues *AcceptedValuesConfig `yaml:"accepted_values,omitempty"`
}

// AcceptedValuesConfig restricts a column to a fixed set of values.
type AcceptedValuesConfig struct {
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Frontmatter *Frontmatter
	SQL         string // SQL content after frontmatter
	HasYAML     bool   // Whether frontmatter was found
}

// frontmatterPattern matches a leading /*--- ... ---*/ block.
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// descriptiveFields are frontmatter keys that describe the node rather than configure it.
var descriptiveFields = map[string]bool{
	"name":        true,
	"description": true,
	"tests":       true,
}

// configFields are frontmatter keys copied into the node config. "config"
// holds free-form options that have no dedicated key.
var configFields = map[string]bool{
	"materialized": true,
	"enabled":      true,
	"database":     true,
	"schema":       true,
	"alias":        true,
	"tags":         true,
	"severity":     true,
	"meta":         true,
	"config":       true,
}

// ExtractFrontmatter splits YAML frontmatter from SQL content. Files without
// a header get an empty Frontmatter.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{
		Frontmatter: &Frontmatter{},
		SQL:         content,
	}

	matches := frontmatterPattern.FindStringSubmatch(content)
	if len(matches) < 2 {
		return result, nil
	}

	fm, err := parseFrontmatterYAML(matches[1])
	if err != nil {
		return nil, err
	}

	result.HasYAML = true
	result.Frontmatter = fm
	result.SQL = strings.TrimSpace(content[len(matches[0]):])
	return result, nil
}

func parseFrontmatterYAML(yamlContent string) (*Frontmatter, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return nil, &FrontmatterParseError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fm := &Frontmatter{Config: make(map[string]any)}
	for _, k := range keys {
		switch {
		case descriptiveFields[k]:
		case k == "config":
			opts, ok := raw[k].(map[string]any)
			if !ok {
				return nil, &FrontmatterParseError{Message: "config must be a mapping"}
			}
			for key, v := range opts {
				fm.Config[key] = v
			}
		case configFields[k]:
			fm.Config[k] = raw[k]
		default:
			return nil, &UnknownFieldError{Field: k}
		}
	}

	var described struct {
		Name        string        `yaml:"name"`
		Description string        `yaml:"description"`
		Tests       []ColumnTests `yaml:"tests"`
	}
	if err := yaml.Unmarshal([]byte(yamlContent), &described); err != nil {
		return nil, &FrontmatterParseError{Message: fmt.Sprintf("failed to parse frontmatter: %v", err)}
	}
	fm.Name = described.Name
	fm.Description = described.Description
	fm.Tests = described.Tests

	for _, t := range fm.Tests {
		if av := t.AcceptedValues; av != nil && (av.Column == "" || len(av.Values) == 0) {
			return nil, &FrontmatterParseError{Message: "accepted_values needs a column and at least one value"}
		}
	}

	return fm, nil
}

// FrontmatterParseError represents a frontmatter parsing error.
type FrontmatterParseError struct {
	File    string
	Message string
}

func (e *FrontmatterParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an error for unknown frontmatter fields.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in frontmatter, use \"meta\" or \"config\" for custom fields", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
