package config

// Controller dispatch modes.
const (
	ModePipeline  = "pipeline"
	ModeDelegated = "delegated"
)

// Judge strategies for the analyze step.
const (
	JudgeReasoning = "reasoning"
	JudgeExitCode  = "exit_code"
)

// ControllerConfig configures the iteration state machine.
type ControllerConfig struct {
	Mode                string   `yaml:"mode" json:"mode,omitempty"`
	Judge               string   `yaml:"judge" json:"judge,omitempty"`
	MaxIterations       int      `yaml:"max_iterations" json:"max_iterations,omitempty"`
	HistoryWindow       int      `yaml:"history_window" json:"history_window,omitempty"`
	FailureContextLimit int      `yaml:"failure_context_limit" json:"failure_context_limit,omitempty"`
	Templates           []string `yaml:"templates" json:"templates,omitempty"` // assemble instead of asking the collaborator
}

// LedgerConfig configures the memory ledger.
type LedgerConfig struct {
	MaxFailures      int `yaml:"max_failures" json:"max_failures,omitempty"`
	CodeExcerptBytes int `yaml:"code_excerpt_bytes" json:"code_excerpt_bytes,omitempty"`
}
