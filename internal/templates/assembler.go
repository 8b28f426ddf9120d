package templates

import (
	"fmt"
	"strings"

	"skillforge/internal/logging"
)

// CodeChecker validates an assembled artifact. *safety.Gate satisfies it.
type CodeChecker interface {
	CheckCode(code string) error
}

// Assembly is the outcome of Assemble. Code is set even when the safety check
// rejected it.
type Assembly struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Assembler composes registry templates into one artifact.
type Assembler struct {
	registry *Registry
	checker  CodeChecker
}

// NewAssembler returns an assembler. A nil checker skips the safety check.
func NewAssembler(registry *Registry, checker CodeChecker) *Assembler {
	return &Assembler{registry: registry, checker: checker}
}

// Registry returns the backing registry.
func (a *Assembler) Registry() *Registry {
	return a.registry
}

// Assemble renders names in request order, labels each rendering with its
// template and runs the result through the safety check. The first unknown
// name fails the whole assembly.
func (a *Assembler) Assemble(names []string, params map[string]string) (*Assembly, error) {
	timer := logging.StartTimer(logging.CategoryTemplates, "Assemble")
	defer timer.Stop()

	if len(names) == 0 {
		return &Assembly{Message: "Assembly failed: no templates specified"}, ErrNoTemplates
	}

	parts := make([]string, 0, 2*len(names))
	for _, name := range names {
		t, ok := a.registry.Get(name)
		if !ok {
			logging.TemplatesWarn("Unknown template %s", name)
			return &Assembly{Message: fmt.Sprintf("Assembly failed: template '%s' not found", name)},
				fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		parts = append(parts,
			fmt.Sprintf("# Template: %s (type: %s, language: %s)", t.Name, t.Kind, t.Language),
			t.Render(params))
	}
	code := strings.Join(parts, "\n")

	if a.checker != nil {
		if err := a.checker.CheckCode(code); err != nil {
			return &Assembly{
				Code:    code,
				Message: fmt.Sprintf("Assembly failed: safety violation - %s", err),
			}, err
		}
	}

	logging.Templates("Assembled %d template(s): %s", len(names), strings.Join(names, ", "))
	return &Assembly{
		Success: true,
		Code:    code,
		Message: fmt.Sprintf("Successfully assembled %d template(s)", len(names)),
	}, nil
}
