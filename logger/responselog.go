package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const latestLogName = "responses_latest.log"

// ResponseLog mirrors every prompt/response pair to a timestamped file so
// failed runs against a nondeterministic agent can be diagnosed afterwards.
// A nil *ResponseLog is valid and discards everything.
type ResponseLog struct {
	file *os.File
	path string
}

// NewResponseLog creates test-results/e2e/responses_<timestamp>.log under dir
// and points responses_latest.log at it for easy access.
func NewResponseLog(dir string) (*ResponseLog, error) {
	if dir == "" {
		dir = filepath.Join("test-results", "e2e")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create response log directory: %w", err)
	}

	name := fmt.Sprintf("responses_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, FilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to open response log: %w", err)
	}

	// Best effort: symlinks are unavailable on some filesystems.
	latest := filepath.Join(dir, latestLogName)
	_ = os.Remove(latest)
	if err := os.Symlink(name, latest); err != nil {
		_ = os.WriteFile(latest, []byte(path+"\n"), FilePermission)
	}

	return &ResponseLog{file: file, path: path}, nil
}

// Path returns the location of the full untruncated log.
func (r *ResponseLog) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// LogPrompt records an outgoing prompt, truncated to keep the log scannable.
func (r *ResponseLog) LogPrompt(testID, prompt string) {
	if r == nil {
		return
	}
	p := prompt
	if len(p) > 200 {
		p = p[:200] + "..."
	}
	r.write(testID, fmt.Sprintf("PROMPT: %s", p))
}

// LogResponse records the full captured output of one prompt execution.
func (r *ResponseLog) LogResponse(testID string, exitCode int, duration time.Duration, stdout, stderr string) {
	if r == nil {
		return
	}
	r.write(testID, fmt.Sprintf("RESPONSE (exit=%d, %.1fs):", exitCode, duration.Seconds()))
	if stdout == "" {
		stdout = "(empty)"
	}
	r.write(testID, "STDOUT:\n"+stdout)
	if stderr != "" {
		r.write(testID, "STDERR:\n"+stderr)
	}
	r.write(testID, strings.Repeat("=", 60))
}

func (r *ResponseLog) write(testID, msg string) {
	prefix := ""
	if testID != "" {
		prefix = fmt.Sprintf("[%s] ", testID)
	}
	fmt.Fprintf(r.file, "%s - %s%s\n", time.Now().Format("2006-01-02 15:04:05"), prefix, msg)
}

// Close flushes and closes the underlying file.
func (r *ResponseLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}
