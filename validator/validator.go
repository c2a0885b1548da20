// Package validator evaluates captured transcripts against declarative
// expectations. Everything here is a pure function over its inputs: no I/O,
// no side effects, one AssertionCheck row per pattern so partial failures
// stay visible in reports.
package validator

import (
	"fmt"
	"strings"

	"github.com/life4/genesis/slices"
	"github.com/mykhaliev/skilltest/model"
)

// EvaluateTools checks the observed tool-call names against the tool
// expectations. Under match_mode=all every must_call name produces its own
// row; under match_mode=any a single aggregate row is produced when must_call
// is non-empty. Every must_not_call name independently asserts absence.
func EvaluateTools(toolsCalled []model.ToolCall, exp model.ToolExpectations) []model.AssertionCheck {
	checks := make([]model.AssertionCheck, 0)
	calledNames := make([]string, len(toolsCalled))
	for i, tc := range toolsCalled {
		calledNames[i] = tc.Name
	}

	mode := exp.MatchMode
	if mode == "" {
		mode = model.MatchAll
	}

	switch mode {
	case model.MatchAll:
		for _, tool := range exp.MustCall {
			passed := slices.Contains(calledNames, tool)
			detail := ""
			if !passed {
				detail = fmt.Sprintf("called: %s", formatNames(calledNames))
			}
			checks = append(checks, model.AssertionCheck{
				Description: fmt.Sprintf("must_call: %s", tool),
				Passed:      passed,
				Detail:      detail,
			})
		}
	case model.MatchAny:
		if len(exp.MustCall) > 0 {
			anyCalled := slices.Any(exp.MustCall, func(tool string) bool {
				return slices.Contains(calledNames, tool)
			})
			detail := ""
			if !anyCalled {
				detail = fmt.Sprintf("called: %s", formatNames(calledNames))
			}
			checks = append(checks, model.AssertionCheck{
				Description: fmt.Sprintf("must_call (any): %s", formatNames(exp.MustCall)),
				Passed:      anyCalled,
				Detail:      detail,
			})
		}
	}

	for _, tool := range exp.MustNotCall {
		passed := !slices.Contains(calledNames, tool)
		detail := ""
		if !passed {
			detail = "but was called"
		}
		checks = append(checks, model.AssertionCheck{
			Description: fmt.Sprintf("must_not_call: %s", tool),
			Passed:      passed,
			Detail:      detail,
		})
	}

	return checks
}

// EvaluateText checks case-insensitive substring containment against the full
// concatenated response text.
func EvaluateText(responseText string, exp model.TextExpectations) []model.AssertionCheck {
	checks := make([]model.AssertionCheck, 0)
	textLower := strings.ToLower(responseText)

	for _, pattern := range exp.MustContain {
		passed := strings.Contains(textLower, strings.ToLower(pattern))
		detail := ""
		if !passed {
			detail = "not found in response"
		}
		checks = append(checks, model.AssertionCheck{
			Description: fmt.Sprintf("must_contain: '%s'", pattern),
			Passed:      passed,
			Detail:      detail,
		})
	}

	for _, pattern := range exp.MustNotContain {
		passed := !strings.Contains(textLower, strings.ToLower(pattern))
		detail := ""
		if !passed {
			detail = "found in response"
		}
		checks = append(checks, model.AssertionCheck{
			Description: fmt.Sprintf("must_not_contain: '%s'", pattern),
			Passed:      passed,
			Detail:      detail,
		})
	}

	return checks
}

// Evaluate runs both assertion groups for one transcript.
func Evaluate(transcript model.Transcript, exp model.Expectations) (tools, text []model.AssertionCheck) {
	return EvaluateTools(transcript.ToolsCalled, exp.Tools),
		EvaluateText(transcript.ResponseText, exp.Text)
}

func formatNames(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}
