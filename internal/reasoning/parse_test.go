package reasoning

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "print(1)\n", "print(1)"},
		{"python fence", "```python\nprint(1)\n```", "print(1)"},
		{"bare fence", "```\nx = 1\nprint(x)\n```\n", "x = 1\nprint(x)"},
		{"fence with trailing prose", "```py\nprint(2)\n```\nThis prints 2.", "print(2)"},
		{"prose then fence", "Here you go:\n```python\nprint(3)\n```\nEnjoy", "print(3)"},
		{"unterminated fence", "```python\nprint(4)", "print(4)"},
		{"only a fence", "```", ""},
		{"one-line fence", "```print('hi')```", "print('hi')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in        string
		success   bool
		reason    string
		malformed bool
	}{
		{"SUCCESS: prints 120", true, "prints 120", false},
		{"  success - all asserts passed", true, "- all asserts passed", false},
		{"FAILURE: NameError on line 3", false, "NameError on line 3", false},
		{"failure:missing output", false, "missing output", false},
		{"The skill looks fine to me", false, "The skill looks fine to me", true},
		{"", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v := ParseVerdict(tt.in)
			assert.Equal(t, tt.success, v.Success)
			assert.Equal(t, tt.reason, v.Reason)
			assert.Equal(t, tt.malformed, v.Malformed)
		})
	}

	assert.Equal(t, "SUCCESS: ok", Verdict{Success: true, Reason: "ok"}.String())
	assert.Equal(t, "FAILURE: bad", Verdict{Reason: "bad"}.String())
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Decision
	}{
		{
			name: "canonical",
			in:   "DECISION: need code first\nACTION: plan_skill\nPARAMS: {}",
			want: Decision{Rationale: "need code first", Action: "plan_skill", Params: map[string]any{}},
		},
		{
			name: "multi-line params and emphasis",
			in:   "**DECISION:** answer directly\n**ACTION:** DIRECT_ANSWER\n**PARAMS:**\n{\n  \"answer\": \"42\"\n}\nextra",
			want: Decision{Rationale: "answer directly", Action: "DIRECT_ANSWER", Params: map[string]any{"answer": "42"}},
		},
		{
			name: "fenced block",
			in:   "```\nDECISION: assemble\nACTION: `assemble_skill`\nPARAMS: {\"templates\": [\"python_generator\"]}\n```",
			want: Decision{Rationale: "assemble", Action: "assemble_skill", Params: map[string]any{"templates": []any{"python_generator"}}},
		},
		{
			name: "lowercase keys and no params",
			in:   "decision: done\naction: COMPLETE",
			want: Decision{Rationale: "done", Action: "COMPLETE", Params: map[string]any{}},
		},
		{
			name: "action with trailing words",
			in:   "ACTION: test_skill now please\nPARAMS: none",
			want: Decision{Action: "test_skill", Params: map[string]any{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseDecision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseDecisionErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"I think we should plan the skill.",
		"DECISION: x\nPARAMS: {}",
		"DECISION: x\nACTION: plan_skill\nPARAMS: {\"broken\": }",
		"ACTION:   \nPARAMS: {}",
	} {
		_, err := ParseDecision(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrMalformedDecision), in)
	}
}

func TestDecisionParams(t *testing.T) {
	d := Decision{Params: map[string]any{
		"answer":    "hi",
		"count":     float64(3),
		"templates": []any{"a", "b"},
		"csv":       "x, y,,z",
		"null":      nil,
	}}
	assert.Equal(t, "hi", d.Param("answer"))
	assert.Equal(t, "3", d.Param("count"))
	assert.Equal(t, "", d.Param("missing"))
	assert.Equal(t, "", d.Param("null"))
	assert.Equal(t, []string{"a", "b"}, d.StringSlice("templates"))
	assert.Equal(t, []string{"x", "y", "z"}, d.StringSlice("csv"))
	assert.Nil(t, d.StringSlice("count"))
}
