// Package engine orchestrates a full test run: it loads suite definitions,
// drives each prompt through the agent driver, validates transcripts, and
// aggregates suite and run level results.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/life4/genesis/slices"
	"github.com/mykhaliev/skilltest/judge"
	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"github.com/mykhaliev/skilltest/telemetry"
	"github.com/mykhaliev/skilltest/templates"
	"github.com/mykhaliev/skilltest/validator"
	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultTimeout = 120 * time.Second

	// Output shown inline for a failing test is bounded so summaries stay
	// readable; the response log has the full text.
	responseTruncateLimit = 2000
	stderrTruncateLimit   = 500
)

// AgentDriver is the single capability the orchestrator needs from the
// subprocess layer. All failure modes arrive as transcript data, so the
// method returns no error; mocking it is trivial.
type AgentDriver interface {
	Run(ctx context.Context, req model.RunRequest) model.Transcript
}

// Runner executes prompt specs sequentially. The agent CLI's session state is
// not safe for concurrent invocation, and ordered, reproducible output
// matters more here than wall-clock speed.
type Runner struct {
	driver         AgentDriver
	engine         *templates.TemplateEngine
	templateCtx    map[string]string
	responseLog    *logger.ResponseLog
	judgeLLM       llms.Model
	model          string
	defaultTimeout time.Duration
	verbose        bool
}

type RunnerConfig struct {
	Model          string
	DefaultTimeout time.Duration
	Verbose        bool
	TemplateCtx    map[string]string
	ResponseLog    *logger.ResponseLog
	JudgeLLM       llms.Model
}

func NewRunner(d AgentDriver, cfg RunnerConfig) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.TemplateCtx == nil {
		cfg.TemplateCtx = make(map[string]string)
	}
	return &Runner{
		driver:         d,
		engine:         templates.NewTemplateEngine(),
		templateCtx:    cfg.TemplateCtx,
		responseLog:    cfg.ResponseLog,
		judgeLLM:       cfg.JudgeLLM,
		model:          cfg.Model,
		defaultTimeout: cfg.DefaultTimeout,
		verbose:        cfg.Verbose,
	}
}

// RunSpec executes one prompt spec and assembles its result. A spec moves
// pending -> running -> {passed|failed|timeout|error}; nothing here ever
// panics or returns early, so a run of N specs always yields N results.
func (r *Runner) RunSpec(ctx context.Context, spec model.PromptSpec) model.PromptResult {
	prompt := r.engine.Render(spec.Prompt, r.templateCtx)

	req := model.RunRequest{
		Prompt:   prompt,
		TestID:   spec.ID,
		Timeout:  ParseTimeout(spec.Timeout, r.defaultTimeout),
		MaxTurns: spec.MaxTurns,
	}

	r.responseLog.LogPrompt(spec.ID, prompt)

	var transcript model.Transcript
	_ = telemetry.WithSpan(ctx, "prompt.run", func(ctx context.Context) error {
		transcript = r.driver.Run(ctx, req)
		telemetry.SetAttributes(ctx,
			attribute.Int64("duration_ms", transcript.Duration.Milliseconds()),
			attribute.Int("tool_calls", len(transcript.ToolsCalled)),
			attribute.Int("exit_code", transcript.ExitCode),
		)
		return nil
	},
		attribute.Int("prompt_index", spec.Index),
		attribute.String("model", r.model),
		attribute.Int("prompt_length", len(prompt)),
	)

	r.responseLog.LogResponse(spec.ID, transcript.ExitCode, transcript.Duration,
		transcript.ResponseText, transcript.Stderr)

	result := model.PromptResult{
		Spec:         spec,
		ResponseText: transcript.ResponseText,
		ToolsCalled:  transcript.ToolsCalled,
		ExitCode:     transcript.ExitCode,
		Stderr:       transcript.Stderr,
		Duration:     transcript.Duration,
	}

	switch {
	case transcript.TimedOut:
		result.Status = model.StatusTimeout
		if logger.Logger != nil {
			logger.Logger.Warn("Test timed out", "id", spec.ID, "detail", transcript.Error)
		}
		return result
	case transcript.Error != "":
		result.Status = model.StatusError
		if logger.Logger != nil {
			logger.Logger.Error("Agent invocation failed", "id", spec.ID, "error", transcript.Error)
		}
		return result
	case transcript.ExitCode != 0:
		// The agent ran but exited abnormally. Distinct from an assertion
		// failure: expectations were never meaningfully evaluated.
		result.Status = model.StatusError
		if logger.Logger != nil {
			logger.Logger.Error("Agent exited abnormally",
				"id", spec.ID,
				"exit_code", transcript.ExitCode,
				"stderr_length", len(transcript.Stderr))
		}
		return result
	}

	result.ToolAssertions, result.TextAssertions = validator.Evaluate(transcript, spec.Expect)
	if result.Passed() {
		result.Status = model.StatusPassed
	} else {
		result.Status = model.StatusFailed
	}

	// Extractors feed observed values back into the template context for
	// later prompts in the same suite.
	for i := range spec.Extract {
		spec.Extract[i].Extract(&transcript, r.templateCtx)
	}

	if spec.Expect.Semantic != "" && r.judgeLLM != nil {
		verdict := judge.Evaluate(ctx, r.judgeLLM, spec.Expect.Semantic, spec, transcript)
		result.Quality = verdict.Quality
		result.Reasoning = verdict.Reasoning
	}

	return result
}

// RunSuite runs every spec of a suite in declaration order. A failing spec
// never prevents the remaining specs from executing.
func (r *Runner) RunSuite(ctx context.Context, suite model.Suite) model.SuiteResult {
	result := model.SuiteResult{
		Name:        suite.Name,
		Description: suite.Description,
		Tests:       make([]model.PromptResult, 0, len(suite.Tests)),
	}

	if logger.Logger != nil {
		logger.Logger.Info("Running suite", "suite", suite.Name, "tests", len(suite.Tests))
	}

	for _, spec := range suite.Tests {
		if logger.Logger != nil {
			logger.Logger.Info("Running test",
				"suite", suite.Name,
				"id", spec.ID,
				"number", spec.Index+1,
				"total", len(suite.Tests))
		}

		testResult := r.RunSpec(ctx, spec)
		result.Tests = append(result.Tests, testResult)

		if logger.Logger != nil {
			logger.Logger.Info("Test finished",
				"suite", suite.Name,
				"id", spec.ID,
				"status", string(testResult.Status),
				"duration_ms", testResult.Duration.Milliseconds())
		}
	}

	return result
}

// RunAll applies the optional suite and test allowlists, then runs the
// remaining suites sequentially in declaration order. Suites left with no
// matching test are omitted from the results.
func (r *Runner) RunAll(ctx context.Context, allSuites []model.Suite, suiteFilter, testFilter []string) []model.SuiteResult {
	results := make([]model.SuiteResult, 0, len(allSuites))

	for _, suite := range FilterSuites(allSuites, suiteFilter, testFilter) {
		results = append(results, r.RunSuite(ctx, suite))
	}

	return results
}

// FilterSuites applies the inclusive suite-name and test-id allowlists. An
// absent filter runs everything.
func FilterSuites(allSuites []model.Suite, suiteFilter, testFilter []string) []model.Suite {
	filtered := make([]model.Suite, 0, len(allSuites))

	for _, suite := range allSuites {
		if len(suiteFilter) > 0 && !slices.Contains(suiteFilter, suite.Name) {
			continue
		}

		tests := suite.Tests
		if len(testFilter) > 0 {
			tests = slices.Filter(suite.Tests, func(spec model.PromptSpec) bool {
				return slices.Contains(testFilter, spec.ID)
			})
		}
		if len(tests) == 0 {
			continue
		}

		filtered = append(filtered, model.Suite{
			Name:        suite.Name,
			Description: suite.Description,
			Tests:       tests,
		})
	}

	return filtered
}

// Summarize builds the run-level aggregate handed to reporters.
func Summarize(modelName string, results []model.SuiteResult) model.RunSummary {
	return model.NewRunSummary(uuid.New().String(), modelName, results)
}

// PrintSummary writes the human-readable tally. Failing tests surface their
// assertion rows and the captured response text, truncated to keep the
// summary scannable. Returns true when everything executed passed.
func PrintSummary(results []model.SuiteResult, responseLogPath string) bool {
	totalPassed := 0
	totalFailed := 0
	total := 0
	for _, r := range results {
		totalPassed += r.Passed()
		totalFailed += r.Failed()
		total += r.Total()
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("E2E TEST SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	for _, r := range results {
		status := "PASS"
		if r.Failed() > 0 {
			status = "FAIL"
		}
		fmt.Printf("  %s: %d/%d (%s)\n", r.Name, r.Passed(), r.Total(), status)
	}

	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("  Total: %d/%d passed\n", totalPassed, total)

	if totalFailed > 0 {
		fmt.Printf("\n  FAILURES (%d):\n", totalFailed)
		for _, r := range results {
			for _, test := range r.Tests {
				if test.Status == model.StatusPassed {
					continue
				}
				fmt.Printf("\n    - %s::%s (%s)\n", r.Name, test.Spec.ID, test.Status)
				for _, check := range test.FailedChecks() {
					detail := ""
					if check.Detail != "" {
						detail = fmt.Sprintf(" (%s)", check.Detail)
					}
					fmt.Printf("      Reason: %s%s\n", check.Description, detail)
				}
				printCapturedOutput(test)
			}
		}

		if responseLogPath != "" {
			fmt.Printf("\n  Full responses logged to: %s\n", responseLogPath)
		}
	}

	fmt.Println(strings.Repeat("=", 60))

	return totalFailed == 0
}

func printCapturedOutput(test model.PromptResult) {
	if test.ResponseText == "" && test.Stderr == "" {
		return
	}

	fmt.Println("\n      --- Response Output ---")
	if test.ResponseText != "" {
		output := test.ResponseText
		if len(output) > responseTruncateLimit {
			output = output[:responseTruncateLimit] +
				fmt.Sprintf("\n... (truncated, %d total chars)", len(test.ResponseText))
		}
		for _, line := range strings.Split(output, "\n") {
			fmt.Printf("      %s\n", line)
		}
	}
	if test.Stderr != "" {
		fmt.Println("\n      --- Stderr ---")
		stderr := test.Stderr
		if len(stderr) > stderrTruncateLimit {
			stderr = stderr[:stderrTruncateLimit]
		}
		for _, line := range strings.Split(stderr, "\n") {
			fmt.Printf("      %s\n", line)
		}
	}
	fmt.Println("      --- End Response ---")
}

// HasFailures reports whether any executed test ended in a non-passed state.
func HasFailures(results []model.SuiteResult) bool {
	for _, r := range results {
		if r.Failed() > 0 {
			return true
		}
	}
	return false
}

// ParseTimeout converts a per-spec duration string, falling back to the run
// default on empty or invalid input.
func ParseTimeout(timeoutStr string, fallback time.Duration) time.Duration {
	if timeoutStr == "" {
		return fallback
	}

	dur, err := time.ParseDuration(timeoutStr)
	if err != nil {
		if logger.Logger != nil {
			logger.Logger.Warn("Invalid timeout, using default",
				"timeout", timeoutStr,
				"default", fallback,
				"error", err)
		}
		return fallback
	}
	if dur <= 0 {
		return fallback
	}
	return dur
}

// ValidateInputFile rejects paths the loaders cannot use, before any test
// executes.
func ValidateInputFile(path string) error {
	if path == "" {
		return fmt.Errorf("input file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}

	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" && ext != ".prompts" {
		return fmt.Errorf("unexpected file extension: %s (expected .yaml, .yml, .prompts)", ext)
	}

	return nil
}
