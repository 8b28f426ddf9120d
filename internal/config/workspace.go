package config

import "path/filepath"

// WorkspaceConfig locates the workspace and its fixed subpaths.
type WorkspaceConfig struct {
	Root         string `yaml:"root" json:"root,omitempty"`
	SkillsDir    string `yaml:"skills_dir" json:"skills_dir,omitempty"`       // relative to Root
	ExecDir      string `yaml:"exec_dir" json:"exec_dir,omitempty"`           // relative to Root
	TemplatesDir string `yaml:"templates_dir" json:"templates_dir,omitempty"` // relative to Root
	LedgerFile   string `yaml:"ledger_file" json:"ledger_file,omitempty"`     // relative to Root
}

// RootPath returns the absolute workspace root.
func (w WorkspaceConfig) RootPath() string {
	abs, err := filepath.Abs(w.Root)
	if err != nil {
		return filepath.Clean(w.Root)
	}
	return abs
}

// SkillsPath returns the absolute skills directory.
func (w WorkspaceConfig) SkillsPath() string { return filepath.Join(w.RootPath(), w.SkillsDir) }

// ExecPath returns the absolute execution directory.
func (w WorkspaceConfig) ExecPath() string { return filepath.Join(w.RootPath(), w.ExecDir) }

// TemplatesPath returns the absolute user templates directory.
func (w WorkspaceConfig) TemplatesPath() string { return filepath.Join(w.RootPath(), w.TemplatesDir) }

// LedgerPath returns the absolute ledger file path.
func (w WorkspaceConfig) LedgerPath() string { return filepath.Join(w.RootPath(), w.LedgerFile) }
