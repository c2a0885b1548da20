// Package specs parses prompt-spec files and suite definitions into the
// model types consumed by the engine.
package specs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mykhaliev/skilltest/logger"
	"github.com/mykhaliev/skilltest/model"
	"gopkg.in/yaml.v3"
)

// DocumentDelimiter separates prompt documents inside a .prompts file.
const DocumentDelimiter = "\n---\n"

// ParsePromptsFile reads a prompts file and parses it into specs. An empty or
// all-comment file yields zero specs without error; deciding whether that is
// acceptable is the caller's job.
func ParsePromptsFile(path string) ([]model.PromptSpec, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(string(content), filepath.Base(path)), nil
}

// ParsePrompts splits content on the document delimiter and YAML-decodes each
// document into a PromptSpec. Documents without a prompt key are silently
// skipped; documents that fail to decode are skipped with a warning. Index is
// assigned over successfully parsed specs, so skips renumber automatically.
func ParsePrompts(content, source string) []model.PromptSpec {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	documents := strings.Split(content, DocumentDelimiter)

	specs := make([]model.PromptSpec, 0, len(documents))
	for i, doc := range documents {
		doc = strings.TrimSpace(doc)
		if doc == "" || doc == "---" {
			continue
		}
		doc = strings.TrimPrefix(doc, "---\n")

		var spec model.PromptSpec
		if err := yaml.Unmarshal([]byte(doc), &spec); err != nil {
			if logger.Logger != nil {
				logger.Logger.Warn("Failed to parse prompt document, skipping",
					"source", source,
					"document", i,
					"error", err)
			}
			continue
		}

		if strings.TrimSpace(spec.Prompt) == "" {
			// Not an error: documents without a prompt are comments or
			// separators.
			continue
		}

		spec.Prompt = strings.TrimSpace(spec.Prompt)
		spec.Index = len(specs)
		if spec.ID == "" {
			spec.ID = fmt.Sprintf("prompt-%d", spec.Index)
		}
		specs = append(specs, spec)
	}

	return specs
}

// SuiteDefinition mirrors one entry under the suites mapping.
type SuiteDefinition struct {
	Description string             `yaml:"description,omitempty"`
	Tests       []model.PromptSpec `yaml:"tests"`
}

type suiteFile struct {
	Variables map[string]string `yaml:"variables,omitempty"`
	Suites    yaml.Node         `yaml:"suites"`
}

// ParseSuiteFile loads a multi-suite definition. Suites run in declaration
// order, which Go maps would not preserve, so the suites mapping is walked
// through the yaml.Node document tree instead.
func ParseSuiteFile(path string) ([]model.Suite, map[string]string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	var file suiteFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, nil, fmt.Errorf("failed to parse suite file %s: %w", path, err)
	}

	if file.Suites.Kind == 0 {
		return nil, file.Variables, nil
	}
	if file.Suites.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("suites must be a mapping of name to definition in %s", path)
	}

	suites := make([]model.Suite, 0, len(file.Suites.Content)/2)
	for i := 0; i+1 < len(file.Suites.Content); i += 2 {
		nameNode := file.Suites.Content[i]
		defNode := file.Suites.Content[i+1]

		var def SuiteDefinition
		if err := defNode.Decode(&def); err != nil {
			return nil, nil, fmt.Errorf("failed to parse suite %q: %w", nameNode.Value, err)
		}

		tests := make([]model.PromptSpec, 0, len(def.Tests))
		for _, spec := range def.Tests {
			if strings.TrimSpace(spec.Prompt) == "" {
				if logger.Logger != nil {
					logger.Logger.Warn("Test has no prompt, skipping",
						"suite", nameNode.Value,
						"id", spec.ID)
				}
				continue
			}
			spec.Prompt = strings.TrimSpace(spec.Prompt)
			spec.Index = len(tests)
			if spec.ID == "" {
				spec.ID = fmt.Sprintf("%s-%d", nameNode.Value, spec.Index)
			}
			tests = append(tests, spec)
		}

		suites = append(suites, model.Suite{
			Name:        nameNode.Value,
			Description: def.Description,
			Tests:       tests,
		})
	}

	return suites, file.Variables, nil
}

// SuiteFromPrompts wraps the specs of a single prompts file in an anonymous
// suite named after the file stem.
func SuiteFromPrompts(path string, specsList []model.PromptSpec) model.Suite {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return model.Suite{
		Name:  stem,
		Tests: specsList,
	}
}
