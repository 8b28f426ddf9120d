// Package templates holds named, parameterized code fragments and composes
// them into a single artifact.
package templates

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind separates reasoning scaffolds from executable code.
type Kind string

const (
	KindThink Kind = "think"
	KindDo    Kind = "do"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindThink || k == KindDo
}

// Component is one named fragment of a template.
type Component struct {
	Name     string `yaml:"name" json:"name"`
	Template string `yaml:"template" json:"template"`
}

// Template is an ordered list of components plus metadata.
type Template struct {
	Name        string      `yaml:"name" json:"name"`
	Kind        Kind        `yaml:"type" json:"type"`
	Language    string      `yaml:"language" json:"language"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Components  []Component `yaml:"components" json:"components"`
}

// Validate checks the fields every template needs.
func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("template has no name")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("template %s: unknown type %q", t.Name, t.Kind)
	}
	if len(t.Components) == 0 {
		return fmt.Errorf("template %s: no components", t.Name)
	}
	seen := make(map[string]bool, len(t.Components))
	for _, c := range t.Components {
		if c.Name == "" {
			return fmt.Errorf("template %s: component without name", t.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("template %s: duplicate component %s", t.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

var (
	// placeholder is what Placeholders reports: identifier-like keys, dots and dashes allowed.
	placeholder = regexp.MustCompile(`\{([\w.-]+)\}`)
	// braced matches any brace pair; Substitute looks the inner text up as a key.
	braced = regexp.MustCompile(`\{([^{}]+)\}`)
)

// Render substitutes {key} placeholders in every component, in declared order.
// Placeholders without a value are left as they are.
func (t *Template) Render(params map[string]string) string {
	var parts []string
	for _, c := range t.Components {
		parts = append(parts, "# Component: "+c.Name, Substitute(c.Template, params), "")
	}
	return strings.Join(parts, "\n")
}

// Placeholders lists the distinct placeholder keys in declaration order.
func (t *Template) Placeholders() []string {
	seen := map[string]bool{}
	var keys []string
	for _, c := range t.Components {
		for _, m := range placeholder.FindAllStringSubmatch(c.Template, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				keys = append(keys, m[1])
			}
		}
	}
	return keys
}

// Substitute replaces each {key} in text with params[key] in a single pass.
func Substitute(text string, params map[string]string) string {
	if len(params) == 0 {
		return text
	}
	return braced.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := params[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}
