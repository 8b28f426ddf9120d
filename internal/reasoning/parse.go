package reasoning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDecision is wrapped by every ParseDecision failure.
var ErrMalformedDecision = errors.New("malformed decision")

// ExtractCode strips a Markdown fence from a code response. A response that
// starts with a fence loses the opening line (with its language tag) and
// everything from the last closing fence on. A response that only contains a
// fenced block somewhere inside yields the first such block.
func ExtractCode(response string) string {
	code := strings.TrimSpace(response)

	if strings.HasPrefix(code, "```") {
		code = code[3:]
		// A one-line reply keeps everything between the fences.
		if nl := strings.IndexByte(code, '\n'); nl >= 0 {
			code = code[nl+1:]
		}
		if end := strings.LastIndex(code, "```"); end >= 0 {
			code = code[:end]
		}
		return strings.TrimSpace(code)
	}

	if start := strings.Index(code, "\n```"); start >= 0 {
		rest := code[start+4:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			body := rest[nl+1:]
			if end := strings.Index(body, "```"); end >= 0 {
				return strings.TrimSpace(body[:end])
			}
		}
	}
	return code
}

// Verdict is a parsed judgment of test output.
type Verdict struct {
	Success bool
	Reason  string
	// Malformed is set when the response started with neither SUCCESS nor FAILURE.
	Malformed bool
	Raw       string
}

// ParseVerdict reads a "SUCCESS: ..." or "FAILURE: ..." response. Anything
// else is a failure.
func ParseVerdict(response string) Verdict {
	raw := strings.TrimSpace(response)
	upper := strings.ToUpper(raw)

	switch {
	case strings.HasPrefix(upper, "SUCCESS"):
		return Verdict{Success: true, Reason: verdictReason(raw, len("SUCCESS")), Raw: raw}
	case strings.HasPrefix(upper, "FAILURE"):
		return Verdict{Reason: verdictReason(raw, len("FAILURE")), Raw: raw}
	default:
		return Verdict{Reason: raw, Malformed: true, Raw: raw}
	}
}

func verdictReason(raw string, skip int) string {
	rest := strings.TrimSpace(raw[skip:])
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

// String renders the verdict in the wire form.
func (v Verdict) String() string {
	if v.Success {
		return "SUCCESS: " + v.Reason
	}
	return "FAILURE: " + v.Reason
}

// Decision is a parsed DECISION / ACTION / PARAMS block.
type Decision struct {
	Rationale string
	Action    string
	Params    map[string]any
}

// Param returns params[key] as a string, or "" if absent.
func (d Decision) Param(key string) string {
	v, ok := d.Params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// StringSlice returns params[key] as a list of strings. A single string is
// split on commas.
func (d Decision) StringSlice(key string) []string {
	switch v := d.Params[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	default:
		return nil
	}
}

// ParseDecision reads a response of the form
//
//	DECISION: <rationale>
//	ACTION: <token>
//	PARAMS: {"json": "object"}
//
// Field names are case-insensitive and may carry Markdown emphasis. ACTION is
// required. PARAMS without a JSON object means no parameters; an object that
// does not decode is an error.
func ParseDecision(response string) (Decision, error) {
	text := strings.TrimSpace(response)
	if strings.HasPrefix(text, "```") {
		text = ExtractCode(text)
	}

	var d Decision
	var paramsText string
	var sawAction, sawParams bool

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		key, value, ok := decisionField(line)
		if !ok {
			continue
		}
		switch key {
		case "DECISION":
			if d.Rationale == "" {
				d.Rationale = value
			}
		case "ACTION":
			if !sawAction {
				d.Action = strings.Trim(value, "`'\" ")
				sawAction = true
			}
		case "PARAMS":
			if !sawParams {
				paramsText = strings.Join(append([]string{value}, lines[i+1:]...), "\n")
				sawParams = true
			}
		}
	}

	if !sawAction || d.Action == "" {
		return Decision{}, fmt.Errorf("%w: no ACTION field", ErrMalformedDecision)
	}
	if fields := strings.Fields(d.Action); len(fields) > 1 {
		d.Action = fields[0]
	}

	d.Params = map[string]any{}
	if sawParams {
		params, err := decodeFirstObject(paramsText)
		if err != nil {
			return Decision{}, fmt.Errorf("%w: PARAMS: %v", ErrMalformedDecision, err)
		}
		d.Params = params
	}
	return d, nil
}

// decisionField splits "KEY: value" with optional list markers and emphasis.
func decisionField(line string) (string, string, bool) {
	trimmed := strings.TrimLeft(strings.TrimSpace(line), "-*# ")
	colon := strings.IndexByte(trimmed, ':')
	if colon < 0 {
		return "", "", false
	}
	key := strings.ToUpper(strings.Trim(trimmed[:colon], "*_ "))
	switch key {
	case "DECISION", "ACTION", "PARAMS":
	default:
		return "", "", false
	}
	value := strings.TrimSpace(strings.TrimLeft(trimmed[colon+1:], "*_"))
	return key, value, true
}

func decodeFirstObject(text string) (map[string]any, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return map[string]any{}, nil
	}
	var params map[string]any
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}
