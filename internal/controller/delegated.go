package controller

import (
	"context"
	"fmt"

	"skillforge/internal/ledger"
	"skillforge/internal/reasoning"
)

// stepResult is what a delegated handler reports into the action history.
type stepResult struct {
	ok      bool
	summary string
}

type handler func(ctx context.Context, s State, d reasoning.Decision) (State, stepResult, error)

func (c *Controller) handlerTable() map[Action]handler {
	return map[Action]handler{
		ActionPlanSkill:      c.handlePlan,
		ActionAssembleSkill:  c.handleAssemble,
		ActionWriteSkill:     c.handleWrite,
		ActionTestSkill:      c.handleTest,
		ActionAnalyzeResults: c.handleAnalyze,
		ActionDirectAnswer:   c.handleDirectAnswer,
		ActionComplete:       c.handleComplete,
		ActionRetryPlan:      c.handleRetryPlan,
		ActionFailed:         c.handleFailed,
		ActionUnrecognized:   c.handlePlan,
	}
}

// runDelegated asks the model for one action per iteration until a control
// action, a success verdict, a safety violation or the budget ends the run.
func (c *Controller) runDelegated(ctx context.Context, s State) (State, error) {
	for !s.Status.Terminal() {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		if s.Iteration > c.cfg.MaxIterations {
			reason := fmt.Sprintf("iteration budget of %d exhausted", c.cfg.MaxIterations)
			if s.LastError != "" {
				reason += ": " + s.LastError
			}
			if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
				return s, err
			}
			return s.failed(reason).with(func(n *State) { n.Iteration = c.cfg.MaxIterations }), nil
		}

		decision, action, err := c.decide(ctx, s)
		if err != nil {
			return s, err
		}
		c.log(s).Info("Iteration %d/%d: %s (%s)", s.Iteration, c.cfg.MaxIterations, action, truncate(decision.Rationale, 120))

		next, result, err := c.handlers[action](ctx, s, decision)
		if err != nil {
			return s, err
		}

		entry := reasoning.HistoryEntry{
			Iteration: s.Iteration,
			Action:    action.String(),
			OK:        result.ok,
			Summary:   truncate(result.summary, 200),
		}
		s = next.with(func(n *State) {
			n.History = append(n.History, entry)
			if !n.Status.Terminal() {
				n.Iteration++
			}
		})
	}
	return s, nil
}

// decide asks for the next action. Unusable answers are logged under the
// controller identifier and fall back to planning.
func (c *Controller) decide(ctx context.Context, s State) (reasoning.Decision, Action, error) {
	status := ""
	if skill, ok, err := c.ledger.Skill(s.SkillName); err != nil {
		return reasoning.Decision{}, ActionUnrecognized, err
	} else if ok {
		status = string(skill.Status)
	}

	var templateNames []string
	if c.assembler != nil {
		templateNames = c.assembler.Registry().List()
	}

	system, user := reasoning.BuildDecisionPrompt(reasoning.DecisionInput{
		Goal:          s.Goal,
		SkillName:     s.SkillName,
		Iteration:     s.Iteration,
		MaxIterations: c.cfg.MaxIterations,
		SkillStatus:   status,
		HasCode:       s.Code != "",
		LastVerdict:   s.Verdict,
		Tools:         toolDescriptions,
		Controls:      controlDescriptions,
		History:       s.recentHistory(c.cfg.HistoryWindow),
		Templates:     templateNames,
	})

	response, err := c.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return reasoning.Decision{}, ActionUnrecognized, ctx.Err()
		}
		return c.fallback(s, fmt.Sprintf("%s collaborator error: %v", markerDecision, err), "")
	}

	decision, err := reasoning.ParseDecision(response)
	if err != nil {
		return c.fallback(s, fmt.Sprintf("%s %v", markerDecision, err), response)
	}

	action := ParseAction(decision.Action)
	if action == ActionUnrecognized {
		c.log(s).Warn("Unrecognized action %q, falling back to %s", decision.Action, ActionPlanSkill)
		if err := c.ledger.LogFailure(ControllerSkill,
			fmt.Sprintf("%s unrecognized action %q", markerDecision, decision.Action), response); err != nil {
			return decision, action, err
		}
	}
	return decision, action, nil
}

func (c *Controller) fallback(s State, reason, response string) (reasoning.Decision, Action, error) {
	c.log(s).Warn("Decision unusable, falling back to %s: %s", ActionPlanSkill, reason)
	if err := c.ledger.LogFailure(ControllerSkill, reason, response); err != nil {
		return reasoning.Decision{}, ActionPlanSkill, err
	}
	return reasoning.Decision{Rationale: "fallback after unusable decision"}, ActionPlanSkill, nil
}

func (c *Controller) handlePlan(ctx context.Context, s State, _ reasoning.Decision) (State, stepResult, error) {
	code, err := c.generate(ctx, s)
	if err != nil {
		if ctx.Err() != nil {
			return s, stepResult{}, ctx.Err()
		}
		if isSafety(err) {
			next, ferr := c.safetyFailure(s, err, code)
			return next, stepResult{summary: next.LastError}, ferr
		}
		return s.with(func(n *State) { n.LastError = fmt.Sprintf("%s %v", markerReasoning, err) }),
			stepResult{summary: err.Error()}, nil
	}
	return s.withCode(code), stepResult{ok: true, summary: fmt.Sprintf("generated %d bytes", len(code))}, nil
}

func (c *Controller) handleAssemble(_ context.Context, s State, d reasoning.Decision) (State, stepResult, error) {
	names := d.StringSlice("templates")
	if len(names) == 0 {
		names = c.cfg.Templates
	}
	extra := map[string]string{}
	if p, ok := d.Params["params"].(map[string]any); ok {
		for k, v := range p {
			extra[k] = fmt.Sprint(v)
		}
	}

	code, err := c.assemble(s, names, extra)
	if err != nil {
		if isSafety(err) {
			next, ferr := c.safetyFailure(s, err, code)
			return next, stepResult{summary: next.LastError}, ferr
		}
		return s.with(func(n *State) { n.LastError = err.Error() }), stepResult{summary: err.Error()}, nil
	}
	return s.withCode(code), stepResult{ok: true, summary: fmt.Sprintf("assembled %v (%d bytes)", names, len(code))}, nil
}

func (c *Controller) handleWrite(_ context.Context, s State, _ reasoning.Decision) (State, stepResult, error) {
	if s.Code == "" {
		return s, stepResult{summary: "no code to write; plan or assemble first"}, nil
	}
	path, err := c.writeSkill(s)
	if err != nil {
		if isSafety(err) {
			next, ferr := c.safetyFailure(s, err, s.Code)
			return next, stepResult{summary: next.LastError}, ferr
		}
		return s, stepResult{summary: fmt.Sprintf("write failed: %v", err)}, nil
	}
	return s.with(func(n *State) { n.SkillPath = path }), stepResult{ok: true, summary: "wrote " + path}, nil
}

func (c *Controller) handleTest(ctx context.Context, s State, _ reasoning.Decision) (State, stepResult, error) {
	if s.Code == "" {
		return s, stepResult{summary: "no code to test; plan or assemble first"}, nil
	}
	next, result, err := c.runTest(ctx, s)
	if err != nil {
		return s, stepResult{}, err
	}
	if result.Success {
		return next, stepResult{ok: true, summary: fmt.Sprintf("exit 0, %d bytes of output", len(result.Stdout))}, nil
	}
	return next, stepResult{summary: next.LastError}, nil
}

func (c *Controller) handleAnalyze(ctx context.Context, s State, _ reasoning.Decision) (State, stepResult, error) {
	if !s.Tested {
		return s, stepResult{summary: "nothing tested yet; run test_skill first"}, nil
	}
	verdict, err := c.judge(ctx, s)
	if err != nil {
		return s, stepResult{}, err
	}
	s = s.with(func(n *State) { n.Verdict = verdict.String() })

	if verdict.Success {
		if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusWorking); err != nil {
			return s, stepResult{}, err
		}
		return s.with(func(n *State) { n.Status = StatusSuccess }), stepResult{ok: true, summary: s.Verdict}, nil
	}

	next, err := c.recordVerdictFailure(s, verdict)
	if err != nil {
		return s, stepResult{}, err
	}
	return next.with(func(n *State) {
		n.Feedback = verdict.Reason
		n.LastError = verdict.Reason
	}), stepResult{summary: next.Verdict}, nil
}

func (c *Controller) handleDirectAnswer(_ context.Context, s State, d reasoning.Decision) (State, stepResult, error) {
	answer := d.Param("answer")
	if answer == "" {
		answer = d.Rationale
	}
	return s.with(func(n *State) {
		n.Status = StatusAnswered
		n.Answer = answer
	}), stepResult{ok: true, summary: "answered directly"}, nil
}

func (c *Controller) handleComplete(_ context.Context, s State, d reasoning.Decision) (State, stepResult, error) {
	if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusWorking); err != nil {
		return s, stepResult{}, err
	}
	return s.with(func(n *State) { n.Status = StatusSuccess }), stepResult{ok: true, summary: d.Rationale}, nil
}

func (c *Controller) handleFailed(_ context.Context, s State, d reasoning.Decision) (State, stepResult, error) {
	reason := d.Param("reason")
	if reason == "" {
		reason = d.Rationale
	}
	if reason == "" {
		reason = s.LastError
	}
	if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
		return s, stepResult{}, err
	}
	return s.failed(reason), stepResult{summary: reason}, nil
}

func (c *Controller) handleRetryPlan(ctx context.Context, s State, d reasoning.Decision) (State, stepResult, error) {
	return c.handlePlan(ctx, s.freshAttempt(), d)
}
