package tactile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"skillforge/internal/logging"
)

// AuditLogger fans sandbox events out to callbacks and an optional JSON Lines
// file, and keeps running counts.
type AuditLogger struct {
	mu sync.RWMutex

	callbacks  []func(AuditEvent)
	fileLogger *AuditFileLogger
	metrics    AuditMetrics
}

// AuditMetrics counts events by type.
type AuditMetrics struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Succeeded int64 `json:"succeeded"`
	Killed    int64 `json:"killed"`
	Errors    int64 `json:"errors"`
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// AddCallback adds a callback function for audit events.
func (l *AuditLogger) AddCallback(callback func(AuditEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.callbacks = append(l.callbacks, callback)
}

// EnableFileLogging appends events to path.
func (l *AuditLogger) EnableFileLogging(path string) error {
	fl, err := NewAuditFileLogger(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fileLogger != nil {
		_ = l.fileLogger.Close()
	}
	l.fileLogger = fl
	return nil
}

// Close closes the audit file, if any.
func (l *AuditLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileLogger != nil {
		err := l.fileLogger.Close()
		l.fileLogger = nil
		return err
	}
	return nil
}

// Log records an event. It has the signature Sandbox.SetAuditCallback expects.
func (l *AuditLogger) Log(event AuditEvent) {
	l.mu.Lock()
	switch event.Type {
	case AuditEventStart:
		l.metrics.Started++
	case AuditEventComplete:
		l.metrics.Completed++
		if event.Result != nil && event.Result.Success {
			l.metrics.Succeeded++
		}
	case AuditEventKilled:
		l.metrics.Killed++
	case AuditEventError:
		l.metrics.Errors++
	}
	callbacks := l.callbacks
	fileLogger := l.fileLogger
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(event)
	}

	if fileLogger != nil {
		if err := fileLogger.Write(event); err != nil {
			logging.SandboxWarn("Failed to write audit event: %v", err)
		}
	}
}

// Metrics returns a snapshot of the counters.
func (l *AuditLogger) Metrics() AuditMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.metrics
}

// AuditFileLogger writes audit events to a file in JSON Lines format.
type AuditFileLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewAuditFileLogger creates a new file logger.
func NewAuditFileLogger(path string) (*AuditFileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &AuditFileLogger{file: file, path: path}, nil
}

// Write writes an event to the log file.
func (l *AuditFileLogger) Write(event AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log not open")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = l.file.Write(append(data, '\n'))
	return err
}

// Close closes the log file.
func (l *AuditFileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
