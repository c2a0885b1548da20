// Package skill loads and structurally validates Assistant Skills plugin
// projects: SKILL.md frontmatter per skill and the plugin manifest at the
// project root.
package skill

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mykhaliev/skilltest/logger"
	"gopkg.in/yaml.v3"
)

const (
	SkillFileName   = "SKILL.md"
	MaxNameLength   = 64
	MaxDescLength   = 1024
	MaxCompatLength = 500
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// SkillMetadata represents the frontmatter of a SKILL.md file
// following the Agent Skills specification (agentskills.io/specification)
type SkillMetadata struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	License       string            `yaml:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
	AllowedTools  string            `yaml:"allowed-tools,omitempty"`
	Version       string            `yaml:"version,omitempty"`
	WhenToUse     string            `yaml:"when_to_use,omitempty"`
	Tags          []string          `yaml:"tags,omitempty"`
}

// Skill is one loaded skill directory.
type Skill struct {
	Path     string        // absolute path to the skill directory
	Metadata SkillMetadata // parsed frontmatter
	Body     string        // body content after the frontmatter
}

// LoadSkill loads and validates a skill from the given directory path.
// The path should point to a directory containing a SKILL.md file.
func LoadSkill(skillPath string) (*Skill, error) {
	absPath, err := filepath.Abs(skillPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve skill path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("skill directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skill path must be a directory: %s", absPath)
	}

	skillFile := filepath.Join(absPath, SkillFileName)
	content, err := os.ReadFile(skillFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", SkillFileName, err)
	}

	metadata, body, err := ParseFrontmatter(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SkillFileName, err)
	}

	if err := ValidateMetadata(metadata); err != nil {
		return nil, fmt.Errorf("invalid skill metadata: %w", err)
	}

	skill := &Skill{
		Path:     absPath,
		Metadata: *metadata,
		Body:     body,
	}

	if logger.Logger != nil {
		logger.Logger.Debug("Loaded skill",
			"name", metadata.Name,
			"path", absPath,
			"description_length", len(metadata.Description),
		)
	}

	return skill, nil
}

// ParseFrontmatter extracts YAML frontmatter and body from a SKILL.md file.
// Frontmatter must be delimited by --- at the start and end.
func ParseFrontmatter(content string) (*SkillMetadata, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	if !strings.HasPrefix(content, "---") {
		return nil, "", fmt.Errorf("SKILL.md must start with YAML frontmatter (---)")
	}

	endIndex := strings.Index(content[3:], "\n---")
	if endIndex == -1 {
		return nil, "", fmt.Errorf("SKILL.md frontmatter not properly closed (missing ---)")
	}

	// A closing delimiter on the very next line leaves no frontmatter at all.
	if endIndex+3 <= 4 {
		return nil, "", fmt.Errorf("SKILL.md frontmatter is empty")
	}

	frontmatterYAML := content[4 : endIndex+3]

	bodyStart := endIndex + 3 + 4 // skip past "\n---"
	body := ""
	if bodyStart < len(content) {
		body = strings.TrimPrefix(content[bodyStart:], "\n")
	}

	var metadata SkillMetadata
	if err := yaml.Unmarshal([]byte(frontmatterYAML), &metadata); err != nil {
		return nil, "", fmt.Errorf("invalid YAML frontmatter: %w", err)
	}

	return &metadata, body, nil
}

// ValidateMetadata validates skill metadata according to the Agent Skills spec
func ValidateMetadata(m *SkillMetadata) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	// Name: 1-64 chars, lowercase alphanumeric and hyphens
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("name must be 1-%d characters, got %d", MaxNameLength, len(m.Name))
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name must be lowercase alphanumeric with hyphens, no leading/trailing/consecutive hyphens: %s", m.Name)
	}

	if m.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(m.Description) > MaxDescLength {
		return fmt.Errorf("description must be 1-%d characters, got %d", MaxDescLength, len(m.Description))
	}

	if len(m.Compatibility) > MaxCompatLength {
		return fmt.Errorf("compatibility must be 1-%d characters, got %d", MaxCompatLength, len(m.Compatibility))
	}

	return nil
}
