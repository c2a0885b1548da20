package model

import (
	"fmt"
	"time"

	"github.com/mykhaliev/skilltest/logger"
	"github.com/yalp/jsonpath"
)

// ============================================================================
// PROMPT SPEC
// ============================================================================

// PromptSpec is one test case: a natural-language prompt for the agent plus
// the declarative expectations its transcript must satisfy. Specs are
// immutable once parsed.
type PromptSpec struct {
	ID       string       `yaml:"id,omitempty"`
	Name     string       `yaml:"name,omitempty"`
	Prompt   string       `yaml:"prompt"`
	Expect   Expectations `yaml:"expect,omitempty"`
	Timeout  string       `yaml:"timeout,omitempty"`   // Go duration string, overrides the run default
	MaxTurns int          `yaml:"max_turns,omitempty"` // agent-internal turn cap override
	Extract  []Extractor  `yaml:"extract,omitempty"`

	// Index is the 0-based position among successfully parsed specs of the
	// source file, assigned by the parser.
	Index int `yaml:"-"`
}

// ============================================================================
// EXPECTATIONS
// ============================================================================

type MatchMode string

const (
	MatchAll MatchMode = "all"
	MatchAny MatchMode = "any"
)

type ToolExpectations struct {
	MustCall    []string  `yaml:"must_call,omitempty"`
	MustNotCall []string  `yaml:"must_not_call,omitempty"`
	MatchMode   MatchMode `yaml:"match_mode,omitempty"`
}

type TextExpectations struct {
	MustContain    []string `yaml:"must_contain,omitempty"`
	MustNotContain []string `yaml:"must_not_contain,omitempty"`
}

// Expectations bundles the assertion groups for one spec. An empty value
// passes vacuously: a test with no expectations only fails on timeout or
// process error.
type Expectations struct {
	Tools ToolExpectations `yaml:"tools,omitempty"`
	Text  TextExpectations `yaml:"text,omitempty"`
	// Semantic is a free-text rubric for the optional LLM-judged scoring
	// pass. Advisory only, never part of the pass/fail contract.
	Semantic string `yaml:"semantic,omitempty"`
}

// Empty reports whether no deterministic assertion is configured.
func (e Expectations) Empty() bool {
	return len(e.Tools.MustCall) == 0 &&
		len(e.Tools.MustNotCall) == 0 &&
		len(e.Text.MustContain) == 0 &&
		len(e.Text.MustNotContain) == 0
}

// ============================================================================
// TRANSCRIPT
// ============================================================================

// ToolCall is one observed tool invocation, captured from the agent's
// streaming event protocol. Owned by the PromptResult that recorded it.
type ToolCall struct {
	Name   string                 `json:"name"`
	Input  map[string]interface{} `json:"input"`
	Output string                 `json:"output,omitempty"`
}

// RunRequest carries the per-prompt parameters into the driver.
type RunRequest struct {
	Prompt   string
	TestID   string
	Timeout  time.Duration
	MaxTurns int
}

// Transcript is the combined record of one prompt execution. Timeouts and
// launch failures are represented as data here (ExitCode -1 plus Error), not
// as Go errors: the driver never crashes the orchestrator.
type Transcript struct {
	ResponseText string        `json:"responseText"`
	ToolsCalled  []ToolCall    `json:"toolsCalled"`
	ExitCode     int           `json:"exitCode"`
	Stderr       string        `json:"stderr,omitempty"`
	Duration     time.Duration `json:"duration"`
	TimedOut     bool          `json:"timedOut,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ToolNames returns the observed tool names in call order.
func (t Transcript) ToolNames() []string {
	names := make([]string, len(t.ToolsCalled))
	for i, tc := range t.ToolsCalled {
		names[i] = tc.Name
	}
	return names
}

// ============================================================================
// RESULTS
// ============================================================================

// Status is the terminal state of one spec execution. Timeout and error are
// deliberately distinct from failed: a failed test ran the agent and merely
// missed its expectations.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// AssertionCheck is one assertion row. Each expected tool or text pattern
// produces its own row so failure reports can pinpoint exactly which
// expectation broke.
type AssertionCheck struct {
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Detail      string `json:"detail,omitempty"`
}

// PromptResult is the outcome of running one PromptSpec. Immutable after the
// orchestrator assembles it.
type PromptResult struct {
	Spec           PromptSpec       `json:"spec"`
	ResponseText   string           `json:"responseText"`
	ToolsCalled    []ToolCall       `json:"toolsCalled"`
	ExitCode       int              `json:"exitCode"`
	Stderr         string           `json:"stderr,omitempty"`
	Duration       time.Duration    `json:"duration"`
	ToolAssertions []AssertionCheck `json:"toolAssertions"`
	TextAssertions []AssertionCheck `json:"textAssertions"`
	Status         Status           `json:"status"`

	// Advisory fields from the optional semantic judge pass.
	Quality   string `json:"quality,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Passed reports whether every assertion row in both groups passed.
func (r PromptResult) Passed() bool {
	for _, a := range r.ToolAssertions {
		if !a.Passed {
			return false
		}
	}
	for _, a := range r.TextAssertions {
		if !a.Passed {
			return false
		}
	}
	return true
}

// FailedChecks returns the assertion rows that did not pass.
func (r PromptResult) FailedChecks() []AssertionCheck {
	failed := make([]AssertionCheck, 0)
	for _, a := range r.ToolAssertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}
	for _, a := range r.TextAssertions {
		if !a.Passed {
			failed = append(failed, a)
		}
	}
	return failed
}

// SuiteResult groups the PromptResults of one suite. Counts are derived,
// never stored.
type SuiteResult struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tests       []PromptResult `json:"tests"`
}

func (s SuiteResult) Passed() int {
	n := 0
	for _, t := range s.Tests {
		if t.Status == StatusPassed {
			n++
		}
	}
	return n
}

func (s SuiteResult) Failed() int {
	return s.Total() - s.Passed()
}

func (s SuiteResult) Total() int {
	return len(s.Tests)
}

// RunSummary is the top-level aggregate handed to reporters.
type RunSummary struct {
	RunID     string        `json:"runId"`
	Model     string        `json:"model"`
	Timestamp time.Time     `json:"timestamp"`
	Suites    []SuiteResult `json:"suites"`
	Total     int           `json:"total"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
}

// NewRunSummary derives the aggregate counts from per-suite results.
func NewRunSummary(runID, model string, suites []SuiteResult) RunSummary {
	summary := RunSummary{
		RunID:     runID,
		Model:     model,
		Timestamp: time.Now(),
		Suites:    suites,
	}
	for _, s := range suites {
		summary.Total += s.Total()
		summary.Passed += s.Passed()
		summary.Failed += s.Failed()
	}
	return summary
}

// ============================================================================
// SUITE DEFINITION
// ============================================================================

// Suite is a named group of prompt specs sharing a description, loaded from a
// suite definition file or synthesized from a single prompts file.
type Suite struct {
	Name        string
	Description string
	Tests       []PromptSpec
}

// ============================================================================
// DATA EXTRACTOR
// ============================================================================

// Extractor pulls a value out of an observed tool-call input and stores it in
// the template context, making it available to later prompts in the same
// suite.
type Extractor struct {
	Type     string `yaml:"type"`
	Tool     string `yaml:"tool,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Variable string `yaml:"variable"`
}

func (e *Extractor) Extract(transcript *Transcript, templateContext map[string]string) {
	if transcript == nil || e.Variable == "" {
		return
	}
	for _, tc := range transcript.ToolsCalled {
		if e.Tool != "" && tc.Name != e.Tool {
			continue
		}
		switch e.Type {
		case "jsonpath", "":
			var data interface{} = map[string]interface{}(tc.Input)
			res, err := jsonpath.Read(data, e.Path)
			if err != nil {
				if logger.Logger != nil {
					logger.Logger.Warn("Invalid JSONPath", "path", e.Path, "error", err)
				}
				continue
			}
			if logger.Logger != nil {
				logger.Logger.Debug("Extracted", "variable", e.Variable, "value", fmt.Sprint(res))
			}
			templateContext[e.Variable] = normalize(res)
		default:
			continue
		}
	}
}

// normalize renders extracted values the way they would appear in a prompt:
// whole floats without the trailing ".0" that JSON decoding introduces.
func normalize(v interface{}) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
