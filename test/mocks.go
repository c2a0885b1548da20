package tests

import (
	"context"

	"github.com/mykhaliev/skilltest/model"
	"github.com/stretchr/testify/mock"
	"github.com/tmc/langchaingo/llms"
)

// dummy writer for logger
type DummyWriter struct{}

// NewDummyWriter creates a new DummyWriter instance
func NewDummyWriter() *DummyWriter {
	return &DummyWriter{}
}

// Write implements io.Writer interface and discards all data
func (d *DummyWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// MockAgentDriver scripts transcripts per prompt and records invocation order.
type MockAgentDriver struct {
	mock.Mock

	// Calls records every RunRequest in arrival order.
	Calls []model.RunRequest
}

func (m *MockAgentDriver) Run(ctx context.Context, req model.RunRequest) model.Transcript {
	m.Calls = append(m.Calls, req)
	args := m.Called(ctx, req)
	return args.Get(0).(model.Transcript)
}

// ScriptedDriver returns canned transcripts keyed by test ID, falling back to
// an empty successful transcript. Simpler than testify expectations when a
// scenario only cares about transcript content.
type ScriptedDriver struct {
	Transcripts map[string]model.Transcript
	Calls       []model.RunRequest
}

func (s *ScriptedDriver) Run(ctx context.Context, req model.RunRequest) model.Transcript {
	s.Calls = append(s.Calls, req)
	if transcript, ok := s.Transcripts[req.TestID]; ok {
		return transcript
	}
	return model.Transcript{ExitCode: 0}
}

// MockLLMModel mocks the langchaingo judge model.
type MockLLMModel struct {
	mock.Mock
}

func (m *MockLLMModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llms.ContentResponse), args.Error(1)
}

func (m *MockLLMModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}
