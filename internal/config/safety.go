package config

// SafetyConfig configures the safety gate.
type SafetyConfig struct {
	// ExtraPatterns are additional denylist regular expressions (category "custom").
	ExtraPatterns []string `yaml:"extra_patterns" json:"extra_patterns,omitempty"`

	// DisableBuiltinPatterns drops the builtin denylist. Only useful for tests.
	DisableBuiltinPatterns bool `yaml:"disable_builtin_patterns" json:"disable_builtin_patterns,omitempty"`
}
