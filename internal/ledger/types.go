package ledger

import "time"

// SkillStatus is the last judgment recorded for a skill.
type SkillStatus string

const (
	StatusUntested SkillStatus = "untested"
	StatusWorking  SkillStatus = "working"
	StatusFailed   SkillStatus = "failed"
)

// DirectiveStatus tracks a human goal.
type DirectiveStatus string

const (
	DirectivePending   DirectiveStatus = "pending"
	DirectiveCompleted DirectiveStatus = "completed"
)

// Skill is a named, generated unit of code. Names are unique within a ledger.
type Skill struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      SkillStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at,omitzero"`
}

// FailureRecord is one recorded failure, kept for later planning context.
type FailureRecord struct {
	Skill       string    `json:"skill"`
	Error       string    `json:"error"`
	CodeSnippet string    `json:"code_snippet"`
	Timestamp   time.Time `json:"timestamp"`
}

// Directive is a human-submitted goal, addressed by its position in the list.
type Directive struct {
	Goal        string          `json:"goal"`
	Status      DirectiveStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt time.Time       `json:"completed_at,omitzero"`
}

// Document is the whole ledger file.
type Document struct {
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero"`
	Skills     []Skill         `json:"skills"`
	Failures   []FailureRecord `json:"failures"`
	Directives []Directive     `json:"directives"`
}

// FindSkill returns the skill called name.
func (d *Document) FindSkill(name string) (Skill, bool) {
	for _, s := range d.Skills {
		if s.Name == name {
			return s, true
		}
	}
	return Skill{}, false
}
