// Package driver invokes the external agent CLI as a black-box subprocess
// and turns each invocation into a model.Transcript. All failure modes
// (timeout, launch failure, nonzero exit) come back as transcript data, never
// as errors: the orchestrator must always get one result per prompt.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
)

const (
	DefaultBinary   = "claude"
	DefaultTimeout  = 120 * time.Second
	DefaultMaxTurns = 5

	// TimeoutExitCode is the sentinel exit code for timeouts and launch
	// failures. Real processes cannot exit with a negative code.
	TimeoutExitCode = -1

	versionCheckTimeout = 10 * time.Second

	// APIKeyEnvVar overrides OAuth in the agent CLI when both are present,
	// so it is stripped from the subprocess environment when local OAuth
	// session credentials exist.
	APIKeyEnvVar = "ANTHROPIC_API_KEY"

	skipOnboardingEnvVar = "CLAUDE_CODE_SKIP_OOBE"
)

// OutputFormat selects how the agent's stdout is captured.
type OutputFormat string

const (
	// FormatText captures raw stdout as the response, with no tool-call
	// extraction. Used when tool assertions are not needed.
	FormatText OutputFormat = "text"
	// FormatStreamJSON decodes one JSON event per stdout line into text
	// fragments and tool calls.
	FormatStreamJSON OutputFormat = "stream-json"
)

type Config struct {
	Binary       string
	WorkingDir   string
	Model        string
	Timeout      time.Duration
	MaxTurns     int
	OutputFormat OutputFormat
	Verbose      bool

	// HomeDir overrides the OAuth credential lookup location. Tests use it;
	// empty means the current user's home.
	HomeDir string
}

// Driver runs prompts against the agent CLI. The environment, including the
// OAuth-vs-API-key decision, is snapshotted once at construction and never
// re-evaluated per call.
type Driver struct {
	cfg Config
	env []string
}

func New(cfg Config) *Driver {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = FormatStreamJSON
	}
	if cfg.HomeDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.HomeDir = home
		}
	}

	d := &Driver{cfg: cfg}
	d.env = subprocessEnv(os.Environ(), hasOAuthCredentials(cfg.HomeDir))
	return d
}

// hasOAuthCredentials reports whether locally stored OAuth session
// credentials exist, checking the primary location and the legacy one.
func hasOAuthCredentials(homeDir string) bool {
	if homeDir == "" {
		return false
	}
	if _, err := os.Stat(filepath.Join(homeDir, ".claude.json")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(homeDir, ".claude", "credentials.json")); err == nil {
		return true
	}
	return false
}

// subprocessEnv builds the environment forwarded to the agent. When OAuth
// credentials exist the API key variable is removed even if the parent set
// it, because its presence would silently override OAuth in the agent CLI.
func subprocessEnv(environ []string, hasOAuth bool) []string {
	env := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if hasOAuth && strings.HasPrefix(kv, APIKeyEnvVar+"=") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, skipOnboardingEnvVar+"=1")
	return env
}

// CheckBinary verifies the agent CLI is invocable before any test executes.
// It is a startup precondition, not part of per-test execution.
func (d *Driver) CheckBinary(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.cfg.Binary, "--version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("agent CLI %q did not respond to --version within %s", d.cfg.Binary, versionCheckTimeout)
		}
		if _, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("agent CLI error: %s", strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("agent CLI %q not found, install with: npm install -g @anthropic-ai/claude-code", d.cfg.Binary)
	}

	if d.cfg.Verbose && logger.Logger != nil {
		logger.Logger.Debug("Agent CLI available", "version", strings.TrimSpace(stdout.String()))
	}
	return nil
}

// CheckAuth verifies either OAuth session credentials or the API key variable
// is configured.
func (d *Driver) CheckAuth() error {
	if hasOAuthCredentials(d.cfg.HomeDir) {
		return nil
	}
	if os.Getenv(APIKeyEnvVar) != "" {
		return nil
	}
	return fmt.Errorf("no authentication configured: set %s or log in with: %s login", APIKeyEnvVar, d.cfg.Binary)
}

// buildArgs assembles the CLI invocation for one prompt: non-interactive
// single-shot mode, the chosen output format, model, turn cap, and the
// permission bypass required for unattended runs.
func (d *Driver) buildArgs(req model.RunRequest) []string {
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = d.cfg.MaxTurns
	}

	args := []string{"-p", req.Prompt}
	switch d.cfg.OutputFormat {
	case FormatText:
		args = append(args, "--output-format", "text")
	default:
		args = append(args, "--output-format", "stream-json", "--verbose")
	}
	if d.cfg.Model != "" {
		args = append(args, "--model", d.cfg.Model)
	}
	args = append(args,
		"--max-turns", strconv.Itoa(maxTurns),
		"--dangerously-skip-permissions",
	)
	return args
}

// Run sends one prompt to the agent and returns its transcript in bounded
// time. The subprocess is killed on timeout so no agent process outlives its
// test.
func (d *Driver) Run(ctx context.Context, req model.RunRequest) model.Transcript {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, d.cfg.Binary, d.buildArgs(req)...)
	cmd.Dir = d.cfg.WorkingDir
	cmd.Env = d.env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if logger.Logger != nil {
		logger.Logger.Debug("Executing agent prompt",
			"test_id", req.TestID,
			"model", d.cfg.Model,
			"format", string(d.cfg.OutputFormat),
			"timeout", timeout,
			"prompt_length", len(req.Prompt))
	}

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	if runCtx.Err() == context.DeadlineExceeded {
		return model.Transcript{
			ExitCode: TimeoutExitCode,
			Stderr:   stderr.String(),
			Duration: duration,
			TimedOut: true,
			Error:    fmt.Sprintf("command timed out after %s", timeout),
		}
	}

	transcript := model.Transcript{
		ExitCode: 0,
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			transcript.ExitCode = exitError.ExitCode()
		} else {
			// The command failed to launch at all.
			transcript.ExitCode = TimeoutExitCode
			transcript.Error = err.Error()
			return transcript
		}
	}

	switch d.cfg.OutputFormat {
	case FormatText:
		transcript.ResponseText = stdout.String()
	default:
		transcript.ResponseText, transcript.ToolsCalled = parseStream(stdout.String())
	}

	if logger.Logger != nil {
		logger.Logger.Debug("Agent prompt completed",
			"test_id", req.TestID,
			"exit_code", transcript.ExitCode,
			"duration_ms", duration.Milliseconds(),
			"tool_calls", len(transcript.ToolsCalled),
			"response_length", len(transcript.ResponseText))
	}

	return transcript
}
