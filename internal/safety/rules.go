package safety

import "regexp"

// Category names the kind of construct a denylist rule looks for.
type Category int

const (
	CategoryDynamicEval Category = iota
	CategoryProcessSpawn
	CategoryDynamicImport
	CategoryFileWrite
	CategoryCustom
)

func (c Category) String() string {
	switch c {
	case CategoryDynamicEval:
		return "dynamic_eval"
	case CategoryProcessSpawn:
		return "process_spawn"
	case CategoryDynamicImport:
		return "dynamic_import"
	case CategoryFileWrite:
		return "file_write"
	case CategoryCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Rule is one denylist entry.
type Rule struct {
	Category Category
	Pattern  *regexp.Regexp
}

// Expr returns the rule's source expression.
func (r Rule) Expr() string {
	return r.Pattern.String()
}

// Builtin denylist, checked in order. Matching is case-insensitive.
var builtinExprs = []struct {
	category Category
	expr     string
}{
	{CategoryDynamicEval, `\beval\s*\(`},
	{CategoryDynamicEval, `\bexec\s*\(`},
	{CategoryProcessSpawn, `\bos\.system\s*\(`},
	{CategoryProcessSpawn, `\bos\.popen\s*\(`},
	{CategoryProcessSpawn, `\bos\.(exec|spawn)[lvpe]*\s*\(`},
	{CategoryProcessSpawn, `\bsubprocess\.(Popen|call|run|check_call|check_output|getoutput|getstatusoutput)\s*\(`},
	{CategoryDynamicImport, `\b__import__\s*\(`},
	{CategoryDynamicImport, `\bimportlib\.import_module\s*\(`},
	{CategoryDynamicEval, `\bcompile\s*\(`},
	{CategoryFileWrite, `\bopen\s*\(.*(['"]w|['"]a)`},
}

var builtinRules = func() []Rule {
	rules := make([]Rule, 0, len(builtinExprs))
	for _, b := range builtinExprs {
		rules = append(rules, Rule{
			Category: b.category,
			Pattern:  regexp.MustCompile(`(?i)` + b.expr),
		})
	}
	return rules
}()

// BuiltinRules returns a copy of the builtin denylist.
func BuiltinRules() []Rule {
	out := make([]Rule, len(builtinRules))
	copy(out, builtinRules)
	return out
}
