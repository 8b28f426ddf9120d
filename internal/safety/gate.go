// Package safety validates candidate paths and candidate code before anything
// generated is written or executed.
//
// The code check is a lexical denylist. It catches the obvious constructs and
// nothing else: string building, aliasing and indirection all get through.
// Treat it as a tripwire in front of the sandbox, not as a security boundary.
package safety

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"skillforge/internal/config"
	"skillforge/internal/logging"
)

var (
	// ErrUnsafePath is wrapped by violations of workspace containment.
	ErrUnsafePath = errors.New("unsafe path")

	// ErrUnsafeCode is wrapped by denylist matches.
	ErrUnsafeCode = errors.New("unsafe code")

	// ErrWorkspaceOutsideCwd is returned when the workspace root is not inside
	// the process working directory.
	ErrWorkspaceOutsideCwd = errors.New("workspace outside working directory")
)

// Actions that are approved without a human when they stay inside the workspace.
const (
	ActionWriteSkill    = "write_skill"
	ActionExecuteCode   = "execute_code"
	ActionReadWorkspace = "read_workspace"
)

var autoApproved = map[string]bool{
	ActionWriteSkill:    true,
	ActionExecuteCode:   true,
	ActionReadWorkspace: true,
}

// Violation describes why a path or a piece of code was rejected.
type Violation struct {
	Kind     error    // ErrUnsafePath or ErrUnsafeCode
	Category Category // set for code violations
	Pattern  string   // denylist expression that matched
	Path     string   // set for path violations
	Reason   string
}

func (v *Violation) Error() string {
	return v.Reason
}

func (v *Violation) Unwrap() error {
	return v.Kind
}

// Gate is the combined path-containment and code-denylist validator.
// It holds no mutable state after construction.
type Gate struct {
	root  string
	rules []Rule
}

type gateOptions struct {
	workingDir string
}

// Option customizes gate construction.
type Option func(*gateOptions)

// WithWorkingDir replaces the process working directory in the startup
// containment check.
func WithWorkingDir(dir string) Option {
	return func(o *gateOptions) { o.workingDir = dir }
}

// NewGate resolves the workspace root, verifies it lies inside the working
// directory and compiles the denylist.
func NewGate(root string, cfg config.SafetyConfig, opts ...Option) (*Gate, error) {
	var o gateOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.workingDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		o.workingDir = cwd
	}

	resolvedRoot, err := resolve(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	cwd, err := resolve(o.workingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if !within(cwd, resolvedRoot) {
		return nil, fmt.Errorf("%w: workspace %s must be within %s", ErrWorkspaceOutsideCwd, resolvedRoot, cwd)
	}

	var rules []Rule
	if !cfg.DisableBuiltinPatterns {
		rules = append(rules, BuiltinRules()...)
	}
	for _, expr := range cfg.ExtraPatterns {
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, fmt.Errorf("invalid extra safety pattern %q: %w", expr, err)
		}
		rules = append(rules, Rule{Category: CategoryCustom, Pattern: re})
	}

	logging.Safety("Workspace verified: %s (%d denylist rules)", resolvedRoot, len(rules))
	return &Gate{root: resolvedRoot, rules: rules}, nil
}

// Root returns the resolved workspace root.
func (g *Gate) Root() string {
	return g.root
}

// Rules returns a copy of the active denylist.
func (g *Gate) Rules() []Rule {
	out := make([]Rule, len(g.rules))
	copy(out, g.rules)
	return out
}

// IsPathSafe resolves path against the workspace root and reports whether the
// result stays inside it. Relative paths are joined to the root; absolute paths
// are taken as-is. Symlinks along the existing part of the path are followed.
func (g *Gate) IsPathSafe(path string) (bool, string) {
	if err := g.CheckPath(path); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// CheckPath is IsPathSafe returning a *Violation.
func (g *Gate) CheckPath(path string) error {
	if strings.ContainsRune(path, 0) {
		return g.pathViolation(path, fmt.Sprintf("Invalid path: %q contains a NUL byte", path))
	}

	// Joined without cleaning so ".." is applied after any symlink before it.
	target := path
	if !filepath.IsAbs(target) {
		target = g.root + string(filepath.Separator) + target
	}

	resolved, err := resolve(target)
	if err != nil {
		return g.pathViolation(path, fmt.Sprintf("Invalid path: %v", err))
	}

	if !within(g.root, resolved) {
		return g.pathViolation(path, fmt.Sprintf("Path traversal detected: %s escapes workspace", path))
	}
	return nil
}

func (g *Gate) pathViolation(path, reason string) *Violation {
	logging.SafetyWarn("%s", reason)
	return &Violation{Kind: ErrUnsafePath, Path: path, Reason: reason}
}

// CheckCodeSafety scans code against the denylist. The first matching rule wins
// and its category is named in the reason.
func (g *Gate) CheckCodeSafety(code string) (bool, string) {
	if err := g.CheckCode(code); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// CheckCode is CheckCodeSafety returning a *Violation.
func (g *Gate) CheckCode(code string) error {
	for _, rule := range g.rules {
		if rule.Pattern.MatchString(code) {
			reason := fmt.Sprintf("Dangerous pattern detected [%s]: %s", rule.Category, rule.Expr())
			logging.SafetyWarn("%s", reason)
			return &Violation{
				Kind:     ErrUnsafeCode,
				Category: rule.Category,
				Pattern:  rule.Expr(),
				Reason:   reason,
			}
		}
	}
	return nil
}

// RequiresApproval reports whether action needs a human before it runs.
// Auto-approved actions still need approval when they carry a "path" argument
// that escapes the workspace. Everything else always needs approval.
func (g *Gate) RequiresApproval(action string, args map[string]string) bool {
	if !autoApproved[action] {
		logging.SafetyDebug("Action %s requires approval: not auto-approved", action)
		return true
	}
	if path, ok := args["path"]; ok {
		if safe, reason := g.IsPathSafe(path); !safe {
			logging.SafetyWarn("Action %s requires approval: %s", action, reason)
			return true
		}
	}
	return false
}

// resolve returns the absolute form of path the way the OS would see it: each
// component is applied in order, existing symlinks are evaluated before any
// following "..", and the non-existent tail is appended lexically.
func resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		path = cwd + string(filepath.Separator) + path
	}

	vol := filepath.VolumeName(path)
	cur := vol + string(filepath.Separator)
	missing := false
	for _, comp := range strings.Split(filepath.ToSlash(path[len(vol):]), "/") {
		switch comp {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}
		next := filepath.Join(cur, comp)
		if missing {
			cur = next
			continue
		}
		info, err := os.Lstat(next)
		switch {
		case err != nil:
			missing = true
			cur = next
		case info.Mode()&os.ModeSymlink != 0:
			target, err := filepath.EvalSymlinks(next)
			if err != nil {
				return "", err
			}
			cur = target
		default:
			cur = next
		}
	}
	return cur, nil
}

// within reports whether target equals root or sits below it.
func within(root, target string) bool {
	if target == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(target, prefix)
}
