package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skillforge/internal/config"
	"skillforge/internal/ledger"
	"skillforge/internal/reasoning"
	"skillforge/internal/safety"
	"skillforge/internal/tactile"
)

// errEmptyCode is returned when the model answers with nothing usable.
var errEmptyCode = errors.New("empty code response")

// plan generates code for the next attempt.
func (c *Controller) plan(ctx context.Context, s State) (State, error) {
	var (
		code string
		err  error
	)
	if len(c.cfg.Templates) > 0 {
		code, err = c.assemble(s, c.cfg.Templates, nil)
	} else {
		code, err = c.generate(ctx, s)
	}
	if err != nil {
		if ctx.Err() != nil {
			return s, ctx.Err()
		}
		if isSafety(err) {
			return c.safetyFailure(s, err, code)
		}
		reason := fmt.Sprintf("%s %v", markerReasoning, err)
		if err := c.ledger.LogFailure(s.SkillName, reason, ""); err != nil {
			return s, err
		}
		return c.retryOrFail(s, reason)
	}

	c.log(s).Debug("Planned %d bytes of code", len(code))
	return s.withCode(code), nil
}

// write saves the code under the skills directory.
func (c *Controller) write(ctx context.Context, s State) (State, error) {
	path, err := c.writeSkill(s)
	if err != nil {
		if isSafety(err) {
			return c.safetyFailure(s, err, s.Code)
		}
		reason := fmt.Sprintf("%s write failed: %v", markerExecution, err)
		if err := c.ledger.LogFailure(s.SkillName, reason, s.Code); err != nil {
			return s, err
		}
		if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
			return s, err
		}
		return s.failed(reason), nil
	}
	return s.with(func(n *State) {
		n.SkillPath = path
		n.Status = StatusTesting
	}), nil
}

// test runs the code and records a failed run.
func (c *Controller) test(ctx context.Context, s State) (State, error) {
	next, _, err := c.runTest(ctx, s)
	if err != nil {
		return s, err
	}
	return next.with(func(n *State) { n.Status = StatusAnalyzing }), nil
}

// analyze judges the test output and decides between success, retry and failure.
func (c *Controller) analyze(ctx context.Context, s State) (State, error) {
	verdict, err := c.judge(ctx, s)
	if err != nil {
		return s, err
	}
	s = s.with(func(n *State) { n.Verdict = verdict.String() })

	if verdict.Success {
		if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusWorking); err != nil {
			return s, err
		}
		return s.with(func(n *State) { n.Status = StatusSuccess }), nil
	}

	s, err = c.recordVerdictFailure(s, verdict)
	if err != nil {
		return s, err
	}
	return c.retryOrFail(s, verdict.Reason)
}

// retryOrFail loops back to planning while budget remains, otherwise ends the
// run and marks the skill failed.
func (c *Controller) retryOrFail(s State, reason string) (State, error) {
	if s.Iteration < c.cfg.MaxIterations {
		c.log(s).Info("Iteration %d/%d failed, retrying: %s", s.Iteration, c.cfg.MaxIterations, truncate(reason, 200))
		return s.freshAttempt().with(func(n *State) {
			n.Status = StatusPlanning
			n.Iteration++
			n.Feedback = reason
			n.LastError = reason
		}), nil
	}

	if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
		return s, err
	}
	return s.failed(reason), nil
}

// safetyFailure records a violation and ends the run; violations are never retried.
func (c *Controller) safetyFailure(s State, violation error, code string) (State, error) {
	reason := fmt.Sprintf("%s %v", markerSafety, violation)
	c.log(s).Warn("Safety violation: %v", violation)
	if err := c.ledger.LogFailure(s.SkillName, reason, code); err != nil {
		return s, err
	}
	if err := c.ledger.AddSkill(s.SkillName, s.Goal, ledger.StatusFailed); err != nil {
		return s, err
	}
	return s.with(func(n *State) { n.Code = code }).failed(reason), nil
}

// generate asks the model for code and validates it.
func (c *Controller) generate(ctx context.Context, s State) (string, error) {
	failures, err := c.ledger.GetRelevantFailures(s.SkillName, c.cfg.FailureContextLimit)
	if err != nil {
		return "", err
	}

	system, user := reasoning.BuildPlanPrompt(reasoning.PlanInput{
		Goal:          s.Goal,
		SkillName:     s.SkillName,
		Language:      c.language,
		Iteration:     s.Iteration,
		MaxIterations: c.cfg.MaxIterations,
		Failures:      failures,
		Feedback:      s.Feedback,
	})
	response, err := c.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		return "", err
	}

	code := reasoning.ExtractCode(response)
	if code == "" {
		return "", errEmptyCode
	}
	if err := c.gate.CheckCode(code); err != nil {
		return code, err
	}
	return code, nil
}

// assemble builds code from templates. The assembler runs the safety check.
func (c *Controller) assemble(s State, names []string, extra map[string]string) (string, error) {
	if c.assembler == nil {
		return "", errors.New("no template assembler configured")
	}
	params := map[string]string{
		"goal":          s.Goal,
		"skill_name":    s.SkillName,
		"function_name": s.SkillName,
		"description":   s.Goal,
		"doc_string":    s.Goal,
		"params":        "",
		"test_params":   "",
	}
	for k, v := range extra {
		params[k] = v
	}

	assembly, err := c.assembler.Assemble(names, params)
	if err != nil {
		return assembly.Code, err
	}
	return assembly.Code, nil
}

// writeSkill validates the skill path and writes the code.
func (c *Controller) writeSkill(s State) (string, error) {
	path := filepath.Join(c.skillsDir, s.SkillName+c.ext)
	if err := c.gate.CheckPath(path); err != nil {
		return "", err
	}
	if c.gate.RequiresApproval(safety.ActionWriteSkill, map[string]string{"path": path}) {
		return "", &safety.Violation{
			Kind:   safety.ErrUnsafePath,
			Path:   path,
			Reason: fmt.Sprintf("writing %s requires approval", path),
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(s.Code), 0644); err != nil {
		return "", err
	}
	c.log(s).Info("Skill written: %s", path)
	return path, nil
}

// runTest executes the current code and logs a failure for an unsuccessful run.
func (c *Controller) runTest(ctx context.Context, s State) (State, *tactile.ExecutionResult, error) {
	result := c.exec.Execute(ctx, s.Code, s.SkillName)
	if err := ctx.Err(); err != nil {
		return s, result, err
	}

	next := s.with(func(n *State) {
		n.Tested = true
		n.TestPassed = result.Success
		n.ExitCode = result.ExitCode
		n.TestResult = result.Output()
	})
	if result.Success {
		c.log(s).Info("Test passed (%s)", result.Duration)
		return next, result, nil
	}

	marker := markerExecution
	if result.IsTimeout() {
		marker = markerTimeout
	}
	reason := fmt.Sprintf("%s %s", marker, tail(result.Stderr, maxErrorBytes))
	c.log(s).Warn("Test failed: exit=%d %s", result.ExitCode, truncate(result.Stderr, 200))
	if err := c.ledger.LogFailure(s.SkillName, reason, s.Code); err != nil {
		return s, result, err
	}
	return next.with(func(n *State) {
		n.FailureLogged = true
		n.LastError = reason
	}), result, nil
}

// judge produces a verdict for the last test output. Only cancellation is an error.
func (c *Controller) judge(ctx context.Context, s State) (reasoning.Verdict, error) {
	if c.cfg.Judge == config.JudgeExitCode {
		if s.TestPassed {
			return reasoning.Verdict{Success: true, Reason: "exit code 0"}, nil
		}
		return reasoning.Verdict{Reason: fmt.Sprintf("exit code %d", s.ExitCode)}, nil
	}

	system, user := reasoning.BuildJudgePrompt(reasoning.JudgeInput{
		Goal:       s.Goal,
		SkillName:  s.SkillName,
		TestResult: s.TestResult,
	})
	response, err := c.client.CompleteWithSystem(ctx, system, user)
	if err != nil {
		if ctx.Err() != nil {
			return reasoning.Verdict{}, ctx.Err()
		}
		c.log(s).Warn("Judge unavailable: %v", err)
		return reasoning.Verdict{Reason: fmt.Sprintf("%s judge unavailable: %v", markerReasoning, err)}, nil
	}

	verdict := reasoning.ParseVerdict(response)
	if verdict.Malformed {
		c.log(s).Warn("Judge answered without a verdict: %s", truncate(verdict.Raw, 200))
	}
	c.log(s).Info("Verdict: %s", truncate(verdict.String(), 200))
	return verdict, nil
}

// recordVerdictFailure makes sure every failing attempt leaves a ledger entry.
func (c *Controller) recordVerdictFailure(s State, verdict reasoning.Verdict) (State, error) {
	if s.FailureLogged {
		return s, nil
	}
	reason := fmt.Sprintf("%s %s", markerVerdict, verdict.Reason)
	if err := c.ledger.LogFailure(s.SkillName, reason, s.Code); err != nil {
		return s, err
	}
	return s.with(func(n *State) {
		n.FailureLogged = true
		n.LastError = reason
	}), nil
}

func isSafety(err error) bool {
	var v *safety.Violation
	return errors.As(err, &v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return ledger.Excerpt(s, n) + "..."
}

// tail keeps the last n bytes of s, where tracebacks put the useful line.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && s[cut]&0xC0 == 0x80 {
		cut++
	}
	return "..." + s[cut:]
}
