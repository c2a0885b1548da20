// Package judge runs the optional semantic scoring pass: an LLM grades a
// captured response against the free-text rubric of a spec. Verdicts are
// advisory only and never feed into the deterministic pass/fail contract.
package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	evaluationTimeout = 60 * time.Second
)

// Verdict is the advisory outcome of one semantic evaluation.
type Verdict struct {
	Quality   string `json:"quality"`
	Reasoning string `json:"reasoning,omitempty"`
	Err       string `json:"error,omitempty"`
}

// NewProvider constructs the judge LLM for the given provider type.
func NewProvider(providerType, modelName, token string) (llms.Model, error) {
	if token == "" {
		return nil, fmt.Errorf("judge provider token is empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("judge provider model is empty")
	}

	switch strings.ToLower(providerType) {
	case ProviderAnthropic:
		return anthropic.New(
			anthropic.WithModel(modelName),
			anthropic.WithToken(token),
		)
	case ProviderOpenAI:
		return openai.New(
			openai.WithToken(token),
			openai.WithModel(modelName),
		)
	default:
		return nil, fmt.Errorf("unsupported judge provider: %s", providerType)
	}
}

const judgePromptTemplate = `You are evaluating an AI coding agent's response against a rubric.

Rubric:
%s

Original prompt:
%s

Agent response:
%s

Tools the agent invoked: %s

Reply with exactly two lines:
QUALITY: one of excellent, good, acceptable, poor
REASONING: one sentence explaining the grade`

// Evaluate grades one response against the spec's semantic rubric. Failures
// come back inside the Verdict: a broken judge must never fail a test run.
func Evaluate(ctx context.Context, llm llms.Model, rubric string, spec model.PromptSpec, transcript model.Transcript) Verdict {
	if llm == nil || rubric == "" {
		return Verdict{}
	}

	ctx, cancel := context.WithTimeout(ctx, evaluationTimeout)
	defer cancel()

	toolNames := transcript.ToolNames()
	toolList := "(none)"
	if len(toolNames) > 0 {
		toolList = strings.Join(toolNames, ", ")
	}

	prompt := fmt.Sprintf(judgePromptTemplate, rubric, spec.Prompt, transcript.ResponseText, toolList)

	completion, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt)
	if err != nil {
		if logger.Logger != nil {
			logger.Logger.Warn("Semantic evaluation failed", "test_id", spec.ID, "error", err)
		}
		return Verdict{Err: err.Error()}
	}

	return parseVerdict(completion)
}

// parseVerdict extracts the QUALITY/REASONING lines, tolerating extra prose
// around them. An unparseable completion is kept verbatim as reasoning.
func parseVerdict(completion string) Verdict {
	verdict := Verdict{}
	for _, line := range strings.Split(completion, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "QUALITY:"):
			verdict.Quality = strings.ToLower(strings.TrimSpace(line[len("QUALITY:"):]))
		case strings.HasPrefix(upper, "REASONING:"):
			verdict.Reasoning = strings.TrimSpace(line[len("REASONING:"):])
		}
	}
	if verdict.Quality == "" && verdict.Reasoning == "" {
		verdict.Reasoning = strings.TrimSpace(completion)
	}
	return verdict
}
