package reasoning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"skillforge/internal/ledger"
)

func TestBuildPlanPrompt(t *testing.T) {
	failures := []ledger.FailureRecord{
		{Skill: "fact", Error: "[execution] NameError", CodeSnippet: strings.Repeat("x", 300)},
	}
	system, user := BuildPlanPrompt(PlanInput{
		Goal: "compute factorial", SkillName: "fact", Iteration: 2, MaxIterations: 12,
		Failures: failures, Feedback: "wrong result for 0",
	})

	assert.Contains(t, system, "autonomous Python skill developer")
	assert.Contains(t, system, "OUTPUT ONLY THE PYTHON CODE")
	assert.Contains(t, user, "GOAL: compute factorial\n")
	assert.Contains(t, user, "ITERATION: 2/12\n")
	assert.Contains(t, user, "PREVIOUS FAILURES TO AVOID:\n- [execution] NameError\n  Code: "+strings.Repeat("x", 100)+"...\n")
	assert.NotContains(t, user, strings.Repeat("x", 101))
	assert.Contains(t, user, "LAST REVIEW: wrong result for 0")
}

func TestFailureContextEmpty(t *testing.T) {
	assert.Empty(t, FailureContext(nil))
}

func TestBuildJudgePrompt(t *testing.T) {
	system, user := BuildJudgePrompt(JudgeInput{Goal: "g", SkillName: "s", TestResult: "ERROR:\nboom\n\nOUTPUT:\n"})
	assert.Contains(t, system, `"SUCCESS: <brief reason>"`)
	assert.Contains(t, user, "TEST RESULT:\nERROR:\nboom")
}

func TestBuildDecisionPrompt(t *testing.T) {
	system, user := BuildDecisionPrompt(DecisionInput{
		Goal: "g", SkillName: "s", Iteration: 3, MaxIterations: 12, SkillStatus: "failed", HasCode: true,
		Tools:     []ToolDescription{{Name: "plan_skill", Description: "write code"}},
		Controls:  []ToolDescription{{Name: "COMPLETE", Description: "stop"}},
		History:   []HistoryEntry{{Iteration: 2, Action: "test_skill", OK: false, Summary: "exit 1"}},
		Templates: []string{"python_generator"},
	})

	assert.Contains(t, system, "- plan_skill: write code\n")
	assert.Contains(t, system, "- COMPLETE: stop\n")
	assert.Contains(t, system, "ACTION: <one tool or control name>")
	assert.Contains(t, user, "SKILL STATUS: failed\n")
	assert.Contains(t, user, "CODE READY: true\n")
	assert.Contains(t, user, "TEMPLATES: python_generator\n")
	assert.Contains(t, user, "2. test_skill [failed] exit 1\n")

	_, user = BuildDecisionPrompt(DecisionInput{})
	assert.Contains(t, user, "SKILL STATUS: unknown\n")
	assert.Contains(t, user, "(none)")
}
