// Package ledger is the versioned, file-backed memory of skills, failures and
// directives for one workspace.
//
// Every mutation reads the whole document, changes it and writes it back. The
// write goes through a temp file and a rename so a crash never leaves a torn
// file, but there is no cross-process locking: one writer at a time.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"skillforge/internal/logging"
)

// ErrCorrupt is returned when the ledger file exists but is not a valid document.
var ErrCorrupt = errors.New("ledger file corrupt")

const (
	DefaultMaxFailures  = 50
	DefaultExcerptBytes = 500
)

// Ledger is a handle on one ledger file.
type Ledger struct {
	mu           sync.Mutex
	path         string
	maxFailures  int
	excerptBytes int
	now          func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithMaxFailures sets how many failure records are retained system-wide.
func WithMaxFailures(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxFailures = n
		}
	}
}

// WithExcerptBytes caps the stored code excerpt of each failure.
func WithExcerptBytes(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.excerptBytes = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open returns a ledger for path, creating the file (version 1) if it does not
// exist. An existing file must parse.
func Open(path string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		path:         path,
		maxFailures:  DefaultMaxFailures,
		excerptBytes: DefaultExcerptBytes,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		doc := &Document{
			CreatedAt:  l.now(),
			Skills:     []Skill{},
			Failures:   []FailureRecord{},
			Directives: []Directive{},
		}
		if err := l.write(doc); err != nil {
			return nil, err
		}
		logging.Ledger("Created ledger at %s", path)
		return l, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat ledger: %w", err)
	}

	doc, err := l.read()
	if err != nil {
		return nil, err
	}
	logging.LedgerDebug("Opened ledger at %s (version %d, %d skills, %d failures)",
		path, doc.Version, len(doc.Skills), len(doc.Failures))
	return l, nil
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}

// Read returns a snapshot of the whole document.
func (l *Ledger) Read() (*Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read()
}

// AddSkill upserts a skill by name.
func (l *Ledger) AddSkill(name, description string, status SkillStatus) error {
	return l.update(func(doc *Document) bool {
		now := l.now()
		for i := range doc.Skills {
			if doc.Skills[i].Name == name {
				doc.Skills[i].Description = description
				doc.Skills[i].Status = status
				doc.Skills[i].UpdatedAt = now
				logging.LedgerDebug("Updated skill %s -> %s", name, status)
				return true
			}
		}
		doc.Skills = append(doc.Skills, Skill{
			Name:        name,
			Description: description,
			Status:      status,
			CreatedAt:   now,
		})
		logging.Ledger("Added skill %s (%s)", name, status)
		return true
	})
}

// LogFailure appends a failure record and evicts the oldest records beyond the cap.
func (l *Ledger) LogFailure(skill, errText, code string) error {
	return l.update(func(doc *Document) bool {
		doc.Failures = append(doc.Failures, FailureRecord{
			Skill:       skill,
			Error:       errText,
			CodeSnippet: Excerpt(code, l.excerptBytes),
			Timestamp:   l.now(),
		})
		if over := len(doc.Failures) - l.maxFailures; over > 0 {
			doc.Failures = append([]FailureRecord(nil), doc.Failures[over:]...)
		}
		logging.LedgerDebug("Logged failure for %s (%d retained)", skill, len(doc.Failures))
		return true
	})
}

// AddDirective appends a pending directive and returns its index.
func (l *Ledger) AddDirective(goal string) (int, error) {
	index := -1
	err := l.update(func(doc *Document) bool {
		doc.Directives = append(doc.Directives, Directive{
			Goal:      goal,
			Status:    DirectivePending,
			CreatedAt: l.now(),
		})
		index = len(doc.Directives) - 1
		return true
	})
	if err != nil {
		return -1, err
	}
	logging.Ledger("Added directive #%d: %s", index, goal)
	return index, nil
}

// CompleteDirective marks the directive at index completed. Out-of-range
// indices leave the ledger untouched.
func (l *Ledger) CompleteDirective(index int) error {
	return l.update(func(doc *Document) bool {
		if index < 0 || index >= len(doc.Directives) {
			logging.LedgerDebug("CompleteDirective: index %d out of range (%d directives)", index, len(doc.Directives))
			return false
		}
		doc.Directives[index].Status = DirectiveCompleted
		doc.Directives[index].CompletedAt = l.now()
		return true
	})
}

// Directive returns the directive at index.
func (l *Ledger) Directive(index int) (Directive, bool, error) {
	doc, err := l.Read()
	if err != nil {
		return Directive{}, false, err
	}
	if index < 0 || index >= len(doc.Directives) {
		return Directive{}, false, nil
	}
	return doc.Directives[index], true, nil
}

// GetRelevantFailures returns the most recent limit failures for skill, oldest first.
func (l *Ledger) GetRelevantFailures(skill string, limit int) ([]FailureRecord, error) {
	doc, err := l.Read()
	if err != nil {
		return nil, err
	}
	var relevant []FailureRecord
	for _, f := range doc.Failures {
		if f.Skill == skill {
			relevant = append(relevant, f)
		}
	}
	if limit >= 0 && len(relevant) > limit {
		relevant = relevant[len(relevant)-limit:]
	}
	return relevant, nil
}

// ListSkills returns all skills in insertion order.
func (l *Ledger) ListSkills() ([]Skill, error) {
	doc, err := l.Read()
	if err != nil {
		return nil, err
	}
	return doc.Skills, nil
}

// Skill returns the skill called name.
func (l *Ledger) Skill(name string) (Skill, bool, error) {
	doc, err := l.Read()
	if err != nil {
		return Skill{}, false, err
	}
	s, ok := doc.FindSkill(name)
	return s, ok, nil
}

// update runs one read-modify-write cycle. mutate reports whether anything changed;
// nothing is written when it returns false.
func (l *Ledger) update(mutate func(*Document) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.read()
	if err != nil {
		return err
	}
	if !mutate(doc) {
		return nil
	}
	return l.write(doc)
}

func (l *Ledger) read() (*Document, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if doc.Version < 1 {
		return nil, fmt.Errorf("%w: version %d", ErrCorrupt, doc.Version)
	}
	if doc.Skills == nil {
		doc.Skills = []Skill{}
	}
	if doc.Failures == nil {
		doc.Failures = []FailureRecord{}
	}
	if doc.Directives == nil {
		doc.Directives = []Directive{}
	}
	return &doc, nil
}

// write bumps the version, stamps updated_at and replaces the file atomically.
func (l *Ledger) write(doc *Document) error {
	doc.Version++
	doc.UpdatedAt = l.now()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename ledger: %w", err)
	}
	return nil
}

// Excerpt returns at most n bytes of s without splitting a UTF-8 sequence.
func Excerpt(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
