package templates

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"skillforge/internal/logging"
)

// defaultTemplates are the built-in templates baked into the binary.
//
//go:embed defaults/*.yaml
var defaultTemplates embed.FS

// NewDefaultRegistry returns a registry holding the built-in templates.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	if err := LoadDefaults(r); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadDefaults registers the built-in templates.
func LoadDefaults(r *Registry) error {
	timer := logging.StartTimer(logging.CategoryTemplates, "LoadDefaults")
	defer timer.Stop()

	n, err := loadFS(r, defaultTemplates, "defaults")
	if err != nil {
		return fmt.Errorf("failed to load built-in templates: %w", err)
	}
	logging.TemplatesDebug("Loaded %d built-in templates", n)
	return nil
}

// LoadDir registers every *.yaml / *.yml template in dir. A missing directory
// is not an error. Files that fail to parse are skipped with a warning.
func LoadDir(r *Registry, dir string) (int, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	n, err := loadFS(r, os.DirFS(dir), ".")
	if err != nil {
		return n, fmt.Errorf("failed to load templates from %s: %w", dir, err)
	}
	if n > 0 {
		logging.Templates("Loaded %d templates from %s", n, dir)
	}
	return n, nil
}

func loadFS(r *Registry, fsys fs.FS, root string) (int, error) {
	loaded := 0
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(path.Ext(p))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		parsed, err := Parse(data)
		if err != nil {
			logging.TemplatesWarn("Skipping %s: %v", filepath.FromSlash(p), err)
			return nil
		}
		for _, t := range parsed {
			if err := r.Register(t); err != nil {
				logging.TemplatesWarn("Skipping template in %s: %v", filepath.FromSlash(p), err)
				continue
			}
			loaded++
		}
		return nil
	})
	return loaded, err
}

// Parse decodes one template or a list of templates.
func Parse(data []byte) ([]*Template, error) {
	var list []*Template
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single Template
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return []*Template{&single}, nil
}
