// Package tactile is the execution layer that physically runs generated code.
//
// Every run happens in a fresh child process with:
//   - an ephemeral source file under the workspace exec directory
//   - a hard wall-clock timeout that kills the whole process group
//   - an explicit minimal environment (nothing inherited)
//   - stdout and stderr captured separately, each size-capped
//
// There is no kernel-level confinement here. Callers validate code through the
// safety gate before handing it to the Sandbox.
package tactile

import (
	"time"
)

// TimeoutMarker prefixes the stderr of a run that hit the wall-clock limit.
const TimeoutMarker = "Execution timeout"

// ExecutionResult is the structured outcome of one Sandbox run.
type ExecutionResult struct {
	// Success is true only when the child exited with code 0.
	Success bool `json:"success"`

	// ExitCode is the child's exit code, or -1 on timeout or fault.
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// TimedOut marks a run killed by the wall-clock limit.
	TimedOut bool `json:"timed_out"`

	// Fault holds an infrastructure error (interpreter missing, write failed).
	Fault string `json:"fault,omitempty"`

	// Truncated indicates output was cut at the configured cap.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	Identifier string        `json:"identifier"`
	File       string        `json:"file"`
	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`

	// Usage is nil when the platform does not report it or the child never ran.
	Usage *ResourceUsage `json:"usage,omitempty"`
}

// ResourceUsage is the CPU time consumed by the child process.
type ResourceUsage struct {
	UserTime   time.Duration `json:"user_time"`
	SystemTime time.Duration `json:"system_time"`
}

// IsTimeout reports whether the run was killed by the timeout.
func (r *ExecutionResult) IsTimeout() bool {
	return r.TimedOut
}

// IsFault reports whether the run failed before or outside the child's own logic.
func (r *ExecutionResult) IsFault() bool {
	return r.Fault != ""
}

// Output returns stdout on success, otherwise an error/output report.
func (r *ExecutionResult) Output() string {
	if r.Success {
		return r.Stdout
	}
	return "ERROR:\n" + r.Stderr + "\n\nOUTPUT:\n" + r.Stdout
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent is emitted at each step of a run.
type AuditEvent struct {
	Type       AuditEventType   `json:"type"`
	Timestamp  time.Time        `json:"timestamp"`
	Identifier string           `json:"identifier"`
	File       string           `json:"file"`
	Command    []string         `json:"command"`
	Result     *ExecutionResult `json:"result,omitempty"`
}

// Config configures a Sandbox.
type Config struct {
	// WorkspaceRoot is the child's working directory.
	WorkspaceRoot string

	// ExecDir holds the ephemeral files.
	ExecDir string

	Interpreter     string
	InterpreterArgs []string
	FileExtension   string

	Timeout time.Duration

	// SearchPath is the only PATH the child sees; the interpreter is looked up in it.
	SearchPath string

	// ExtraEnv entries in KEY=VALUE form.
	ExtraEnv []string

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64
}

// DefaultConfig returns sensible defaults for a workspace.
func DefaultConfig(workspaceRoot, execDir string) Config {
	return Config{
		WorkspaceRoot:  workspaceRoot,
		ExecDir:        execDir,
		Interpreter:    "python3",
		FileExtension:  ".py",
		Timeout:        15 * time.Second,
		SearchPath:     "/usr/bin:/bin",
		MaxOutputBytes: 1 << 20,
	}
}
