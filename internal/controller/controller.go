// Package controller drives the plan, write, test and analyze loop that turns a
// goal into a working skill.
//
// Two dispatch modes share one state contract. Pipeline mode walks a fixed
// transition table. Delegated mode asks the model for the next action on every
// iteration and dispatches it through a closed handler table.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"skillforge/internal/config"
	"skillforge/internal/ledger"
	"skillforge/internal/logging"
	"skillforge/internal/reasoning"
	"skillforge/internal/tactile"
	"skillforge/internal/templates"
)

// ControllerSkill is the reserved ledger identifier for the controller's own
// failures, such as unparsable decisions.
const ControllerSkill = "__controller__"

// Failure markers prefixed to ledger error text.
const (
	markerSafety    = "[safety]"
	markerTimeout   = "[timeout]"
	markerExecution = "[execution]"
	markerVerdict   = "[verdict]"
	markerDecision  = "[decision]"
	markerReasoning = "[reasoning]"
)

// maxErrorBytes caps the stderr tail stored with a failure.
const maxErrorBytes = 2000

// ErrDirectiveNotFound is returned by RunDirective for an unknown index.
var ErrDirectiveNotFound = errors.New("directive not found")

// Gate validates code and paths. *safety.Gate satisfies it.
type Gate interface {
	CheckCode(code string) error
	CheckPath(path string) error
	RequiresApproval(action string, args map[string]string) bool
}

// Executor runs code. *tactile.Sandbox satisfies it.
type Executor interface {
	Execute(ctx context.Context, code, identifier string) *tactile.ExecutionResult
}

// Deps are the collaborators a Controller composes.
type Deps struct {
	Gate     Gate
	Executor Executor
	Ledger   *ledger.Ledger
	Client   reasoning.Client
	// Assembler is optional unless controller.templates is set.
	Assembler *templates.Assembler
}

// Controller runs goals to completion. One Run at a time.
type Controller struct {
	cfg       config.ControllerConfig
	language  string
	ext       string
	skillsDir string

	gate      Gate
	exec      Executor
	ledger    *ledger.Ledger
	client    reasoning.Client
	assembler *templates.Assembler

	pipeline map[Status]step
	handlers map[Action]handler
}

type step func(ctx context.Context, s State) (State, error)

// New validates the configuration against the provided collaborators.
func New(cfg *config.Config, deps Deps) (*Controller, error) {
	if deps.Gate == nil || deps.Executor == nil || deps.Ledger == nil {
		return nil, fmt.Errorf("controller requires a gate, an executor and a ledger")
	}
	cc := cfg.Controller
	if cc.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be positive, got %d", cc.MaxIterations)
	}
	needsClient := cc.Mode == config.ModeDelegated || cc.Judge == config.JudgeReasoning || len(cc.Templates) == 0
	if needsClient && deps.Client == nil {
		return nil, fmt.Errorf("controller mode %s with judge %s requires a reasoning client", cc.Mode, cc.Judge)
	}
	if len(cc.Templates) > 0 {
		if deps.Assembler == nil {
			return nil, fmt.Errorf("controller.templates is set but no assembler was provided")
		}
		for _, name := range cc.Templates {
			if _, ok := deps.Assembler.Registry().Get(name); !ok {
				return nil, fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, name)
			}
		}
	}

	skillsDir, err := filepath.Abs(cfg.Workspace.SkillsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skills dir: %w", err)
	}
	if err := os.MkdirAll(skillsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create skills dir: %w", err)
	}

	language := cfg.Execution.Language
	if language == "" {
		language = "Python"
	}

	c := &Controller{
		cfg:       cc,
		language:  language,
		ext:       cfg.Execution.FileExtension,
		skillsDir: skillsDir,
		gate:      deps.Gate,
		exec:      deps.Executor,
		ledger:    deps.Ledger,
		client:    deps.Client,
		assembler: deps.Assembler,
	}
	c.pipeline = map[Status]step{
		StatusPlanning:  c.plan,
		StatusCoding:    c.write,
		StatusTesting:   c.test,
		StatusAnalyzing: c.analyze,
	}
	c.handlers = c.handlerTable()

	logging.ControllerDebug("Controller ready: mode=%s judge=%s max_iterations=%d skills=%s",
		cc.Mode, cc.Judge, cc.MaxIterations, skillsDir)
	return c, nil
}

// Outcome reports how a run ended.
type Outcome struct {
	RunID        string                   `json:"run_id"`
	Goal         string                   `json:"goal"`
	SkillName    string                   `json:"skill_name"`
	Status       Status                   `json:"status"`
	Success      bool                     `json:"success"`
	DirectAnswer bool                     `json:"direct_answer"`
	Answer       string                   `json:"answer,omitempty"`
	Iterations   int                      `json:"iterations"`
	Code         string                   `json:"code,omitempty"`
	SkillPath    string                   `json:"skill_path,omitempty"`
	Verdict      string                   `json:"verdict,omitempty"`
	LastError    string                   `json:"last_error,omitempty"`
	History      []reasoning.HistoryEntry `json:"history,omitempty"`
	Duration     time.Duration            `json:"duration"`
}

// Run drives goal to a terminal state. An empty skillName is derived from the
// goal. The returned error is reserved for infrastructure faults and
// cancellation; failed skills are reported through the Outcome.
func (c *Controller) Run(ctx context.Context, goal, skillName string) (*Outcome, error) {
	start := time.Now()
	if skillName == "" {
		skillName = DeriveSkillName(goal)
	}

	s := State{
		RunID:     uuid.NewString(),
		Goal:      goal,
		SkillName: skillName,
		Iteration: 1,
		Status:    StatusPlanning,
	}
	log := c.log(s)
	log.Info("Starting run: goal=%q mode=%s", goal, c.cfg.Mode)

	var err error
	if c.cfg.Mode == config.ModeDelegated {
		s, err = c.runDelegated(ctx, s)
	} else {
		s, err = c.runPipeline(ctx, s)
	}
	if err != nil {
		s = c.abort(s, err)
	}

	out := c.outcome(s, time.Since(start))
	switch {
	case err != nil:
		log.Error("Run aborted after %d iteration(s): %v", out.Iterations, err)
	case out.Success:
		log.Info("Run succeeded after %d iteration(s)", out.Iterations)
	default:
		log.Warn("Run failed after %d iteration(s): %s", out.Iterations, out.LastError)
	}
	return out, err
}

// RunDirective runs the goal of the directive at index and marks it completed
// when the run succeeds.
func (c *Controller) RunDirective(ctx context.Context, index int) (*Outcome, error) {
	d, ok, err := c.ledger.Directive(index)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: #%d", ErrDirectiveNotFound, index)
	}

	out, err := c.Run(ctx, d.Goal, "")
	if err != nil {
		return out, err
	}
	if out.Success {
		if err := c.ledger.CompleteDirective(index); err != nil {
			return out, fmt.Errorf("failed to complete directive: %w", err)
		}
		logging.Controller("Directive #%d completed", index)
	}
	return out, nil
}

func (c *Controller) runPipeline(ctx context.Context, s State) (State, error) {
	for !s.Status.Terminal() {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		next, ok := c.pipeline[s.Status]
		if !ok {
			return s, fmt.Errorf("no pipeline step for status %s", s.Status)
		}
		c.log(s).Debug("Iteration %d/%d: %s", s.Iteration, c.cfg.MaxIterations, s.Status)

		var err error
		s, err = next(ctx, s)
		if err != nil {
			return s, err
		}
	}
	return s, nil
}

// abort records the run as failed after an infrastructure fault.
func (c *Controller) abort(s State, cause error) State {
	if !s.Status.Terminal() {
		if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
			c.log(s).Error("Failed to record aborted skill: %v", err)
		}
	}
	return s.failed(cause.Error())
}

func (c *Controller) outcome(s State, d time.Duration) *Outcome {
	iterations := s.Iteration
	if iterations > c.cfg.MaxIterations {
		iterations = c.cfg.MaxIterations
	}
	return &Outcome{
		RunID:        s.RunID,
		Goal:         s.Goal,
		SkillName:    s.SkillName,
		Status:       s.Status,
		Success:      s.Status == StatusSuccess || s.Status == StatusAnswered,
		DirectAnswer: s.Status == StatusAnswered,
		Answer:       s.Answer,
		Iterations:   iterations,
		Code:         s.Code,
		SkillPath:    s.SkillPath,
		Verdict:      s.Verdict,
		LastError:    s.LastError,
		History:      s.History,
		Duration:     d,
	}
}

func (c *Controller) log(s State) *logging.Logger {
	return logging.Get(logging.CategoryController).With("run_id", s.RunID, "skill", s.SkillName)
}

var skillNameStrip = regexp.MustCompile(`[^a-z0-9_]`)

// DeriveSkillName turns a goal into an identifier: lowercase, spaces to
// underscores, first 30 characters, then only [a-z0-9_] kept.
func DeriveSkillName(goal string) string {
	name := strings.ReplaceAll(strings.ToLower(goal), " ", "_")
	if runes := []rune(name); len(runes) > 30 {
		name = string(runes[:30])
	}
	name = skillNameStrip.ReplaceAllString(name, "")
	if name == "" {
		return "skill"
	}
	return name
}
