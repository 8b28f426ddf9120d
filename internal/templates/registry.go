package templates

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"skillforge/internal/logging"
)

var (
	// ErrTemplateNotFound is returned for unknown template names.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNoTemplates is returned when an assembly names no templates.
	ErrNoTemplates = errors.New("no templates specified")
)

// Registry maps names to templates. Registering an existing name replaces it
// in place.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*Template)}
}

// Register validates t and adds it.
func (r *Registry) Register(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.templates[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	} else {
		logging.TemplatesDebug("Replacing template %s", t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// List returns template names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// FindByType returns the templates of kind k in registration order.
func (r *Registry) FindByType(k Kind) []*Template {
	return r.filter(func(t *Template) bool { return t.Kind == k })
}

// FindByLanguage matches language case-insensitively.
func (r *Registry) FindByLanguage(language string) []*Template {
	return r.filter(func(t *Template) bool { return strings.EqualFold(t.Language, language) })
}

// Languages returns the distinct languages, sorted.
func (r *Registry) Languages() []string {
	seen := map[string]bool{}
	for _, t := range r.filter(func(*Template) bool { return true }) {
		seen[strings.ToLower(t.Language)] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) filter(keep func(*Template) bool) []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, name := range r.order {
		if t := r.templates[name]; keep(t) {
			out = append(out, t)
		}
	}
	return out
}
