package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skillforge/internal/logging"
)

// Sandbox runs code artifacts as isolated, time-bounded child processes.
type Sandbox struct {
	mu     sync.RWMutex
	config Config

	seq atomic.Uint64

	// auditCallback is called for execution events
	auditCallback func(AuditEvent)
}

// NewSandbox creates the exec directory and returns a Sandbox.
func NewSandbox(config Config) (*Sandbox, error) {
	if config.WorkspaceRoot == "" || config.ExecDir == "" {
		return nil, fmt.Errorf("sandbox requires a workspace root and exec dir")
	}
	if config.Interpreter == "" {
		return nil, fmt.Errorf("sandbox requires an interpreter")
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 1 << 20
	}
	if err := os.MkdirAll(config.ExecDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create exec dir: %w", err)
	}

	logging.SandboxDebug("Creating Sandbox: interpreter=%s timeout=%s execDir=%s",
		config.Interpreter, config.Timeout, config.ExecDir)
	return &Sandbox{config: config}, nil
}

// Config returns the sandbox configuration.
func (s *Sandbox) Config() Config {
	return s.config
}

// SetAuditCallback sets the callback for audit events.
func (s *Sandbox) SetAuditCallback(callback func(AuditEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditCallback = callback
}

func (s *Sandbox) emitAudit(event AuditEvent) {
	s.mu.RLock()
	callback := s.auditCallback
	s.mu.RUnlock()

	if callback != nil {
		callback(event)
	}
}

// Execute writes code to an ephemeral file and runs it. It never returns an
// error: every failure mode is folded into the result. The ephemeral file is
// removed on every path.
func (s *Sandbox) Execute(ctx context.Context, code, identifier string) *ExecutionResult {
	timer := logging.StartTimer(logging.CategorySandbox, "Sandbox execution")
	defer timer.Stop()

	file := s.ephemeralPath()
	result := &ExecutionResult{
		ExitCode:   -1,
		Identifier: identifier,
		File:       file,
		StartedAt:  time.Now(),
	}
	defer func() {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			logging.SandboxWarn("Failed to remove ephemeral file %s: %v", file, err)
		}
	}()

	if err := os.WriteFile(file, []byte(code), 0644); err != nil {
		return s.fault(result, nil, fmt.Errorf("failed to write ephemeral file: %w", err))
	}

	interpreter, err := lookInSearchPath(s.config.Interpreter, s.config.SearchPath)
	if err != nil {
		return s.fault(result, nil, err)
	}
	argv := append(append([]string{interpreter}, s.config.InterpreterArgs...), file)

	s.emitAudit(AuditEvent{
		Type:       AuditEventStart,
		Timestamp:  time.Now(),
		Identifier: identifier,
		File:       file,
		Command:    argv,
	})
	logging.Sandbox("Executing %s for %s (timeout=%s)", filepath.Base(file), identifier, s.config.Timeout)

	execCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Dir = s.config.WorkspaceRoot
	cmd.Env = s.buildEnvironment()
	cmd.Stdin = nil
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	// Descendants may keep the output pipes open after the group is killed.
	cmd.WaitDelay = time.Second

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: s.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: s.config.MaxOutputBytes}
	cmd.Stdout = stdoutLimited
	cmd.Stderr = stderrLimited

	runErr := cmd.Run()
	result.Duration = time.Since(result.StartedAt)
	// Background descendants must not outlive the run.
	if err := killProcessGroup(cmd); err != nil {
		logging.SandboxDebug("Process group cleanup for %s: %v", identifier, err)
	}
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Usage = processUsage(cmd)

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.SandboxWarn("Output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	switch {
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = -1
		result.Stderr = fmt.Sprintf("%s (%s)", TimeoutMarker, s.config.Timeout)
		logging.SandboxWarn("Execution killed (timeout): %s after %s", identifier, s.config.Timeout)
		s.emitAudit(AuditEvent{Type: AuditEventKilled, Timestamp: time.Now(), Identifier: identifier, File: file, Command: argv, Result: result})
		return result

	case errors.Is(execCtx.Err(), context.Canceled):
		return s.fault(result, argv, fmt.Errorf("execution canceled: %w", execCtx.Err()))

	case runErr == nil:
		result.ExitCode = 0
		result.Success = true

	case errors.Is(runErr, exec.ErrWaitDelay) && cmd.ProcessState != nil:
		// The child exited but a descendant kept the output pipes open.
		result.ExitCode = cmd.ProcessState.ExitCode()
		result.Success = result.ExitCode == 0
		logging.SandboxWarn("Output pipes held open after %s exited; descendants killed", identifier)

	default:
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return s.fault(result, argv, runErr)
		}
		result.ExitCode = exitErr.ExitCode()
		result.Success = false
	}

	s.emitAudit(AuditEvent{Type: AuditEventComplete, Timestamp: time.Now(), Identifier: identifier, File: file, Command: argv, Result: result})
	logging.Sandbox("Execution completed: %s -> exit=%d, duration=%s, stdout=%d bytes",
		identifier, result.ExitCode, result.Duration, len(result.Stdout))
	return result
}

func (s *Sandbox) fault(result *ExecutionResult, argv []string, err error) *ExecutionResult {
	result.Success = false
	result.ExitCode = -1
	result.Fault = err.Error()
	if result.Stderr == "" {
		result.Stderr = err.Error()
	} else {
		result.Stderr = err.Error() + "\n" + result.Stderr
	}
	logging.SandboxError("Execution fault for %s: %v", result.Identifier, err)
	s.emitAudit(AuditEvent{Type: AuditEventError, Timestamp: time.Now(), Identifier: result.Identifier, File: result.File, Command: argv, Result: result})
	return result
}

// ephemeralPath returns a file name unique within this process: nanosecond
// timestamp plus a per-sandbox sequence number.
func (s *Sandbox) ephemeralPath() string {
	n := s.seq.Add(1)
	name := fmt.Sprintf("exec_%d_%d%s", time.Now().UnixNano(), n, s.config.FileExtension)
	return filepath.Join(s.config.ExecDir, name)
}

// buildEnvironment creates the child's entire environment.
func (s *Sandbox) buildEnvironment() []string {
	env := []string{
		"PATH=" + s.config.SearchPath,
		"PYTHONPATH=" + s.config.WorkspaceRoot,
	}
	return append(env, s.config.ExtraEnv...)
}

// PurgeExecDir removes leftover ephemeral files, e.g. after a crash.
// It returns how many files were removed.
func (s *Sandbox) PurgeExecDir() (int, error) {
	entries, err := os.ReadDir(s.config.ExecDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read exec dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "exec_") {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.ExecDir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	if removed > 0 {
		logging.Sandbox("Purged %d stale ephemeral files", removed)
	}
	return removed, nil
}

// lookInSearchPath resolves name against searchPath only, ignoring the
// parent's PATH. Names containing a separator are used as given.
func lookInSearchPath(name, searchPath string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("interpreter %s is not executable", name)
	}
	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("interpreter %q not found in search path %q", name, searchPath)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0 || isWindows
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
