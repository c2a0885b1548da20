package driver

import (
	"bufio"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
)

// Stream events arrive one JSON object per stdout line. Only three shapes
// matter: assistant messages carrying text and tool_use content blocks, and
// the final result summary. Everything else is ignored.
type streamEvent struct {
	Type    string         `json:"type"`
	Message *streamMessage `json:"message,omitempty"`
	Result  string         `json:"result,omitempty"`
}

type streamMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string                 `json:"type"`
	Text  string                 `json:"text,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`
}

// Agent responses can carry large single-line events (full file contents in
// tool inputs), well past bufio's default line limit.
const maxStreamLineSize = 4 * 1024 * 1024

// parseStream decodes the line-delimited event stream into accumulated
// response text and the ordered tool-call list. Malformed lines are skipped,
// not fatal: a partial transcript is still worth validating. The result
// event's text is used only as a fallback when no assistant text accumulated.
func parseStream(output string) (string, []model.ToolCall) {
	var responseText strings.Builder
	toolsCalled := make([]model.ToolCall, 0)
	fallbackText := ""

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var event streamEvent
		if err := sonic.UnmarshalString(line, &event); err != nil {
			continue
		}

		switch event.Type {
		case "assistant":
			if event.Message == nil {
				continue
			}
			for _, block := range event.Message.Content {
				switch block.Type {
				case "text":
					responseText.WriteString(block.Text)
				case "tool_use":
					toolsCalled = append(toolsCalled, model.ToolCall{
						Name:  block.Name,
						Input: block.Input,
					})
				}
			}
		case "result":
			fallbackText = event.Result
		}
	}

	// A line past the buffer limit aborts the scan; keep what was decoded
	// but say so, the transcript may be missing its tail.
	if err := scanner.Err(); err != nil && logger.Logger != nil {
		logger.Logger.Warn("Stream scan aborted, transcript may be truncated", "error", err)
	}

	text := responseText.String()
	if text == "" {
		text = fallbackText
	}
	return text, toolsCalled
}
