package tests

import (
	"context"
	"testing"
	"time"

	"github.com/mykhaliev/skilltest/engine"
	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"github.com/mykhaliev/skilltest/specs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func init() {
	logger.SetupLogger(NewDummyWriter(), false)
}

func newRunner(driver engine.AgentDriver) *engine.Runner {
	return engine.NewRunner(driver, engine.RunnerConfig{
		Model:          "test-model",
		DefaultTimeout: 5 * time.Second,
	})
}

// ============================================================================
// End-to-End Scenarios (mocked driver)
// ============================================================================

func TestScenario_PassingRun(t *testing.T) {
	content := `id: list-and-confirm
prompt: List the files in the project
expect:
  tools:
    must_call: ["list_files"]
  text:
    must_contain: ["files"]`

	parsed := specs.ParsePrompts(content, "scenario.prompts")
	require.Len(t, parsed, 1)

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"list-and-confirm": {
			ResponseText: "Here are the Files I found.",
			ToolsCalled:  []model.ToolCall{{Name: "list_files"}},
			ExitCode:     0,
			Duration:     time.Second,
		},
	}}

	suite := specs.SuiteFromPrompts("scenario.prompts", parsed)
	result := newRunner(driver).RunSuite(context.Background(), suite)

	require.Len(t, result.Tests, 1)
	test := result.Tests[0]
	assert.Equal(t, model.StatusPassed, test.Status)
	require.Len(t, test.ToolAssertions, 1)
	assert.True(t, test.ToolAssertions[0].Passed)
	require.Len(t, test.TextAssertions, 1)
	assert.True(t, test.TextAssertions[0].Passed)
	assert.Equal(t, 1, result.Passed())
}

func TestScenario_FailingToolAssertion(t *testing.T) {
	content := `id: must-list
prompt: Show me the files
expect:
  tools:
    must_call: ["list_files"]`

	parsed := specs.ParsePrompts(content, "scenario.prompts")
	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"must-list": {
			ResponseText: "I cannot do that.",
			ExitCode:     0,
		},
	}}

	suite := specs.SuiteFromPrompts("scenario.prompts", parsed)
	result := newRunner(driver).RunSuite(context.Background(), suite)

	require.Len(t, result.Tests, 1)
	test := result.Tests[0]
	assert.Equal(t, model.StatusFailed, test.Status)

	failed := test.FailedChecks()
	require.Len(t, failed, 1)
	assert.Equal(t, "must_call: list_files", failed[0].Description)
	assert.False(t, failed[0].Passed)
	assert.Equal(t, "called: []", failed[0].Detail)
}

func TestScenario_TimeoutIsolation(t *testing.T) {
	suite := model.Suite{
		Name: "mixed",
		Tests: []model.PromptSpec{
			{ID: "slow", Prompt: "do something slow", Index: 0},
			{ID: "fast", Prompt: "do something fast", Index: 1,
				Expect: model.Expectations{Text: model.TextExpectations{MustContain: []string{"done"}}}},
		},
	}

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"slow": {
			ExitCode: -1,
			TimedOut: true,
			Error:    "command timed out after 5s",
			Duration: 5 * time.Second,
		},
		"fast": {
			ResponseText: "done",
			ExitCode:     0,
		},
	}}

	result := newRunner(driver).RunSuite(context.Background(), suite)

	require.Len(t, result.Tests, 2)
	assert.Equal(t, model.StatusTimeout, result.Tests[0].Status)
	// A timed-out test never prevents the next one from running.
	assert.Equal(t, model.StatusPassed, result.Tests[1].Status)
	assert.Equal(t, 1, result.Passed())
	assert.Equal(t, 1, result.Failed())
}

func TestScenario_AbnormalExitIsError(t *testing.T) {
	suite := model.Suite{
		Name: "errors",
		Tests: []model.PromptSpec{
			{ID: "crash", Prompt: "crash now",
				Expect: model.Expectations{Text: model.TextExpectations{MustContain: []string{"ok"}}}},
		},
	}

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"crash": {ExitCode: 2, Stderr: "panic: boom"},
	}}

	result := newRunner(driver).RunSuite(context.Background(), suite)

	require.Len(t, result.Tests, 1)
	assert.Equal(t, model.StatusError, result.Tests[0].Status)
	// Expectations are not evaluated on abnormal exit.
	assert.Empty(t, result.Tests[0].TextAssertions)
}

func TestScenario_DeclarationOrderPreserved(t *testing.T) {
	suite := model.Suite{
		Name: "ordered",
		Tests: []model.PromptSpec{
			{ID: "third-alphabetically-z", Prompt: "z"},
			{ID: "first-alphabetically-a", Prompt: "a"},
			{ID: "second-alphabetically-m", Prompt: "m"},
		},
	}

	driver := &ScriptedDriver{}
	newRunner(driver).RunSuite(context.Background(), suite)

	require.Len(t, driver.Calls, 3)
	assert.Equal(t, "third-alphabetically-z", driver.Calls[0].TestID)
	assert.Equal(t, "first-alphabetically-a", driver.Calls[1].TestID)
	assert.Equal(t, "second-alphabetically-m", driver.Calls[2].TestID)
}

func TestScenario_VacuousPass(t *testing.T) {
	suite := model.Suite{
		Name:  "vacuous",
		Tests: []model.PromptSpec{{ID: "no-expect", Prompt: "just run"}},
	}

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"no-expect": {ResponseText: "anything at all", ExitCode: 0},
	}}

	result := newRunner(driver).RunSuite(context.Background(), suite)
	assert.Equal(t, model.StatusPassed, result.Tests[0].Status)
	assert.Empty(t, result.Tests[0].ToolAssertions)
	assert.Empty(t, result.Tests[0].TextAssertions)
}

func TestRunAll_AggregateCounts(t *testing.T) {
	suites := []model.Suite{
		{Name: "s1", Tests: []model.PromptSpec{
			{ID: "p1", Prompt: "x", Expect: model.Expectations{Text: model.TextExpectations{MustContain: []string{"yes"}}}},
			{ID: "p2", Prompt: "y", Expect: model.Expectations{Text: model.TextExpectations{MustContain: []string{"yes"}}}},
		}},
		{Name: "s2", Tests: []model.PromptSpec{
			{ID: "p3", Prompt: "z"},
		}},
	}

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"p1": {ResponseText: "yes", ExitCode: 0},
		"p2": {ResponseText: "no", ExitCode: 0},
		"p3": {ExitCode: 0},
	}}

	results := newRunner(driver).RunAll(context.Background(), suites, nil, nil)
	require.Len(t, results, 2)

	summary := engine.Summarize("test-model", results)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, engine.HasFailures(results))
}

func TestRunAll_Filters(t *testing.T) {
	suites := []model.Suite{
		{Name: "keep", Tests: []model.PromptSpec{{ID: "k1", Prompt: "x"}}},
		{Name: "drop", Tests: []model.PromptSpec{{ID: "d1", Prompt: "y"}}},
	}

	driver := &ScriptedDriver{}
	results := newRunner(driver).RunAll(context.Background(), suites, []string{"keep"}, nil)

	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Name)
	require.Len(t, driver.Calls, 1)
	assert.Equal(t, "k1", driver.Calls[0].TestID)
}

func TestRunSpec_TemplateRendering(t *testing.T) {
	driver := &ScriptedDriver{}
	runner := engine.NewRunner(driver, engine.RunnerConfig{
		Model:          "test-model",
		DefaultTimeout: 5 * time.Second,
		TemplateCtx:    map[string]string{"project": "demo"},
	})

	runner.RunSpec(context.Background(), model.PromptSpec{
		ID:     "templated",
		Prompt: "scaffold {{project}} now",
	})

	require.Len(t, driver.Calls, 1)
	assert.Equal(t, "scaffold demo now", driver.Calls[0].Prompt)
}

func TestRunSpec_TimeoutOverride(t *testing.T) {
	driver := &ScriptedDriver{}
	runner := engine.NewRunner(driver, engine.RunnerConfig{DefaultTimeout: 10 * time.Second})

	runner.RunSpec(context.Background(), model.PromptSpec{ID: "a", Prompt: "x", Timeout: "30s"})
	runner.RunSpec(context.Background(), model.PromptSpec{ID: "b", Prompt: "y"})
	runner.RunSpec(context.Background(), model.PromptSpec{ID: "c", Prompt: "z", Timeout: "garbage"})

	require.Len(t, driver.Calls, 3)
	assert.Equal(t, 30*time.Second, driver.Calls[0].Timeout)
	assert.Equal(t, 10*time.Second, driver.Calls[1].Timeout)
	assert.Equal(t, 10*time.Second, driver.Calls[2].Timeout)
}

func TestRunSpec_DriverInvocation(t *testing.T) {
	driver := &MockAgentDriver{}
	driver.On("Run", mock.Anything, mock.MatchedBy(func(req model.RunRequest) bool {
		return req.TestID == "wired" && req.MaxTurns == 7 && req.Prompt == "run the checks"
	})).Return(model.Transcript{ResponseText: "ok", ExitCode: 0}).Once()

	result := newRunner(driver).RunSpec(context.Background(), model.PromptSpec{
		ID:       "wired",
		Prompt:   "run the checks",
		MaxTurns: 7,
	})

	assert.Equal(t, model.StatusPassed, result.Status)
	driver.AssertExpectations(t)
}

func TestRunSpec_SemanticJudgeAdvisory(t *testing.T) {
	judgeLLM := &MockLLMModel{}
	judgeLLM.On("GenerateContent", mock.Anything, mock.Anything).
		Return(&llms.ContentResponse{Choices: []*llms.ContentChoice{
			{Content: "QUALITY: poor\nREASONING: terse but technically correct"},
		}}, nil).Once()

	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"graded": {ResponseText: "done", ExitCode: 0},
	}}
	runner := engine.NewRunner(driver, engine.RunnerConfig{
		DefaultTimeout: 5 * time.Second,
		JudgeLLM:       judgeLLM,
	})

	result := runner.RunSpec(context.Background(), model.PromptSpec{
		ID:     "graded",
		Prompt: "summarize the project",
		Expect: model.Expectations{Semantic: "response should be concise and accurate"},
	})

	// The verdict is advisory: a poor grade never changes the status.
	assert.Equal(t, model.StatusPassed, result.Status)
	assert.Equal(t, "poor", result.Quality)
	assert.Equal(t, "terse but technically correct", result.Reasoning)
	judgeLLM.AssertExpectations(t)
}

func TestRunSpec_JudgeSkippedWithoutRubric(t *testing.T) {
	judgeLLM := &MockLLMModel{}

	driver := &ScriptedDriver{}
	runner := engine.NewRunner(driver, engine.RunnerConfig{
		DefaultTimeout: 5 * time.Second,
		JudgeLLM:       judgeLLM,
	})

	result := runner.RunSpec(context.Background(), model.PromptSpec{
		ID:     "ungraded",
		Prompt: "just run",
	})

	assert.Equal(t, model.StatusPassed, result.Status)
	assert.Empty(t, result.Quality)
	judgeLLM.AssertNotCalled(t, "GenerateContent")
}

func TestRunSpec_ExtractorFeedsLaterPrompts(t *testing.T) {
	driver := &ScriptedDriver{Transcripts: map[string]model.Transcript{
		"create": {
			ExitCode: 0,
			ToolsCalled: []model.ToolCall{
				{Name: "create_issue", Input: map[string]interface{}{"key": "DEMO-7"}},
			},
		},
	}}

	templateCtx := map[string]string{}
	runner := engine.NewRunner(driver, engine.RunnerConfig{
		DefaultTimeout: 5 * time.Second,
		TemplateCtx:    templateCtx,
	})

	runner.RunSpec(context.Background(), model.PromptSpec{
		ID:     "create",
		Prompt: "create an issue",
		Extract: []model.Extractor{
			{Tool: "create_issue", Path: "$.key", Variable: "issue_key"},
		},
	})
	runner.RunSpec(context.Background(), model.PromptSpec{
		ID:     "update",
		Prompt: "update issue {{issue_key}}",
	})

	require.Len(t, driver.Calls, 2)
	assert.Equal(t, "DEMO-7", templateCtx["issue_key"])
	assert.Equal(t, "update issue DEMO-7", driver.Calls[1].Prompt)
}
