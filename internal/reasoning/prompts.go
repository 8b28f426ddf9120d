package reasoning

import (
	"fmt"
	"strings"

	"skillforge/internal/ledger"
)

// failureCodePreview is how much of each stored code excerpt goes into a prompt.
const failureCodePreview = 100

// PlanInput is the context for a code-generation request.
type PlanInput struct {
	Goal          string
	SkillName     string
	Language      string
	Iteration     int
	MaxIterations int
	Failures      []ledger.FailureRecord
	// Feedback is the last judge's reason, if any.
	Feedback string
}

// BuildPlanPrompt returns the system and user prompts asking for a complete skill.
func BuildPlanPrompt(in PlanInput) (string, string) {
	lang := in.Language
	if lang == "" {
		lang = "Python"
	}

	system := fmt.Sprintf(`You are an autonomous %[1]s skill developer. Create a complete, working %[1]s skill.

REQUIREMENTS:
1. Write complete, self-contained %[1]s code
2. Include proper error handling
3. Add a test harness at the bottom that exercises the skill and prints its results
4. Make it production-ready and robust
5. Avoid patterns from previous failures
6. Do not use eval, exec, compile, subprocess, os.system, dynamic imports or file writes

OUTPUT ONLY THE %[2]s CODE, nothing else. No markdown, no explanations.`, lang, strings.ToUpper(lang))

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", in.Goal)
	fmt.Fprintf(&b, "SKILL NAME: %s\n", in.SkillName)
	fmt.Fprintf(&b, "ITERATION: %d/%d\n", in.Iteration, in.MaxIterations)
	b.WriteString(FailureContext(in.Failures))
	if in.Feedback != "" {
		fmt.Fprintf(&b, "\nLAST REVIEW: %s\n", in.Feedback)
	}
	return system, b.String()
}

// FailureContext renders recent failures for inclusion in a prompt.
func FailureContext(failures []ledger.FailureRecord) string {
	if len(failures) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nPREVIOUS FAILURES TO AVOID:\n")
	for _, f := range failures {
		fmt.Fprintf(&b, "- %s\n  Code: %s...\n", f.Error, ledger.Excerpt(f.CodeSnippet, failureCodePreview))
	}
	return b.String()
}

// JudgeInput is the context for judging one test run.
type JudgeInput struct {
	Goal       string
	SkillName  string
	TestResult string
}

// BuildJudgePrompt returns the system and user prompts asking for a verdict.
func BuildJudgePrompt(in JudgeInput) (string, string) {
	system := `Analyze this test result and determine if the skill is working correctly.

Respond with exactly one line:
- "SUCCESS: <brief reason>" if working
- "FAILURE: <specific error to fix>" if not working

Be strict: only mark as SUCCESS if output shows clear success.`

	user := fmt.Sprintf("SKILL: %s\nGOAL: %s\n\nTEST RESULT:\n%s\n", in.SkillName, in.Goal, in.TestResult)
	return system, user
}

// ToolDescription names an action the model may choose.
type ToolDescription struct {
	Name        string
	Description string
}

// HistoryEntry is one past decision as shown to the model.
type HistoryEntry struct {
	Iteration int    `json:"iteration"`
	Action    string `json:"action"`
	OK        bool   `json:"ok"`
	Summary   string `json:"summary"`
}

// DecisionInput is the context for choosing the next action.
type DecisionInput struct {
	Goal          string
	SkillName     string
	Iteration     int
	MaxIterations int
	SkillStatus   string
	HasCode       bool
	LastVerdict   string
	Tools         []ToolDescription
	Controls      []ToolDescription
	History       []HistoryEntry
	Templates     []string
}

// BuildDecisionPrompt returns the system and user prompts asking for the next action.
func BuildDecisionPrompt(in DecisionInput) (string, string) {
	var sys strings.Builder
	sys.WriteString("You are the controller of an autonomous skill builder. Choose exactly one next action.\n\n")
	sys.WriteString("TOOLS:\n")
	for _, t := range in.Tools {
		fmt.Fprintf(&sys, "- %s: %s\n", t.Name, t.Description)
	}
	sys.WriteString("\nCONTROL:\n")
	for _, c := range in.Controls {
		fmt.Fprintf(&sys, "- %s: %s\n", c.Name, c.Description)
	}
	sys.WriteString(`
Respond in exactly this format:
DECISION: <one sentence rationale>
ACTION: <one tool or control name>
PARAMS: <JSON object, {} when there are none>`)

	var b strings.Builder
	fmt.Fprintf(&b, "GOAL: %s\n", in.Goal)
	fmt.Fprintf(&b, "SKILL NAME: %s\n", in.SkillName)
	fmt.Fprintf(&b, "ITERATION: %d/%d\n", in.Iteration, in.MaxIterations)
	status := in.SkillStatus
	if status == "" {
		status = "unknown"
	}
	fmt.Fprintf(&b, "SKILL STATUS: %s\n", status)
	fmt.Fprintf(&b, "CODE READY: %t\n", in.HasCode)
	if in.LastVerdict != "" {
		fmt.Fprintf(&b, "LAST VERDICT: %s\n", in.LastVerdict)
	}
	if len(in.Templates) > 0 {
		fmt.Fprintf(&b, "TEMPLATES: %s\n", strings.Join(in.Templates, ", "))
	}
	b.WriteString("\nRECENT ACTIONS:\n")
	if len(in.History) == 0 {
		b.WriteString("(none)\n")
	}
	for _, h := range in.History {
		result := "ok"
		if !h.OK {
			result = "failed"
		}
		fmt.Fprintf(&b, "%d. %s [%s] %s\n", h.Iteration, h.Action, result, h.Summary)
	}
	return sys.String(), b.String()
}
