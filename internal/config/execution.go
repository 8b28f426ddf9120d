package config

import "time"

// ExecutionConfig configures the sandbox that runs generated skills.
type ExecutionConfig struct {
	// Interpreter runs the ephemeral file, e.g. "python3".
	Interpreter string `yaml:"interpreter" json:"interpreter,omitempty"`

	// InterpreterArgs are placed before the file path.
	InterpreterArgs []string `yaml:"interpreter_args" json:"interpreter_args,omitempty"`

	// Language names the generated code in prompts, e.g. "Python".
	Language string `yaml:"language" json:"language,omitempty"`

	// FileExtension of generated skills and ephemeral files, with the dot.
	FileExtension string `yaml:"file_extension" json:"file_extension,omitempty"`

	// Timeout is the hard wall-clock limit per execution.
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// SearchPath becomes PATH in the child environment.
	SearchPath string `yaml:"search_path" json:"search_path,omitempty"`

	// ExtraEnv entries in KEY=VALUE form. Nothing else is inherited.
	ExtraEnv []string `yaml:"extra_env" json:"extra_env,omitempty"`

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes,omitempty"`

	// AuditLog, when set, receives one JSON line per sandbox event.
	// Relative paths are taken from the workspace root.
	AuditLog string `yaml:"audit_log" json:"audit_log,omitempty"`
}

// GetTimeout returns the execution timeout as a duration.
func (c ExecutionConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}
