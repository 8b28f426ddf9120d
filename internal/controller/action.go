package controller

import (
	"strings"

	"skillforge/internal/reasoning"
)

// Action is the closed set of moves the model may choose in delegated mode.
type Action int

const (
	ActionUnrecognized Action = iota
	ActionPlanSkill
	ActionAssembleSkill
	ActionWriteSkill
	ActionTestSkill
	ActionAnalyzeResults
	ActionDirectAnswer
	ActionComplete
	ActionRetryPlan
	ActionFailed
)

var actionNames = [...]string{
	ActionUnrecognized:   "unrecognized",
	ActionPlanSkill:      "plan_skill",
	ActionAssembleSkill:  "assemble_skill",
	ActionWriteSkill:     "write_skill",
	ActionTestSkill:      "test_skill",
	ActionAnalyzeResults: "analyze_results",
	ActionDirectAnswer:   "DIRECT_ANSWER",
	ActionComplete:       "COMPLETE",
	ActionRetryPlan:      "RETRY_PLAN",
	ActionFailed:         "FAILED",
}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return actionNames[ActionUnrecognized]
	}
	return actionNames[a]
}

// IsTool reports whether a is one of the tool actions.
func (a Action) IsTool() bool {
	return a >= ActionPlanSkill && a <= ActionAnalyzeResults
}

// ParseAction maps a token to an Action, ignoring case. Unknown tokens map to
// ActionUnrecognized.
func ParseAction(token string) Action {
	token = strings.TrimSpace(token)
	for a := ActionPlanSkill; a <= ActionFailed; a++ {
		if strings.EqualFold(token, actionNames[a]) {
			return a
		}
	}
	return ActionUnrecognized
}

var toolDescriptions = []reasoning.ToolDescription{
	{Name: ActionPlanSkill.String(), Description: "generate the skill's code from the goal and past failures"},
	{Name: ActionAssembleSkill.String(), Description: `build the code from registered templates; PARAMS {"templates": [names], "params": {key: value}}`},
	{Name: ActionWriteSkill.String(), Description: "save the current code to the skills directory"},
	{Name: ActionTestSkill.String(), Description: "run the current code in the sandbox"},
	{Name: ActionAnalyzeResults.String(), Description: "judge the last test output; a SUCCESS verdict finishes the run"},
}

var controlDescriptions = []reasoning.ToolDescription{
	{Name: ActionDirectAnswer.String(), Description: `no code is needed; PARAMS {"answer": "..."}`},
	{Name: ActionComplete.String(), Description: "the skill works; finish successfully"},
	{Name: ActionRetryPlan.String(), Description: "discard the current code and plan again"},
	{Name: ActionFailed.String(), Description: `give up; PARAMS {"reason": "..."}`},
}
