package skill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	PluginDirName      = ".claude-plugin"
	PluginManifestName = "plugin.json"
	SkillsDirName      = "skills"
	sharedSkillDirName = "shared"
)

// Issue severity levels. Errors invalidate the project, warnings do so only in
// strict mode, infos never.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
)

// Issue is one finding of the structural validation pass.
type Issue struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// PluginManifest is the .claude-plugin/plugin.json descriptor.
type PluginManifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Author      any    `json:"author,omitempty"`
}

// ProjectReport is the full outcome of validating one plugin project.
type ProjectReport struct {
	Path     string             `json:"path"`
	Valid    bool               `json:"valid"`
	Issues   []Issue            `json:"issues"`
	Skills   map[string][]Issue `json:"skills"`
	Manifest *PluginManifest    `json:"manifest,omitempty"`
}

func (r *ProjectReport) add(level, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{Level: level, Message: fmt.Sprintf(format, args...)})
}

func countLevel(issues []Issue, level string) int {
	n := 0
	for _, issue := range issues {
		if issue.Level == level {
			n++
		}
	}
	return n
}

// ValidateProject checks a plugin project's directory layout, manifest, and
// every skill's SKILL.md. In strict mode warnings also invalidate the project.
func ValidateProject(projectPath string, strict bool) (*ProjectReport, error) {
	absPath, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve project path")
	}

	report := &ProjectReport{
		Path:   absPath,
		Valid:  true,
		Issues: make([]Issue, 0),
		Skills: make(map[string][]Issue),
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "project directory not found: %s", projectPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path must be a directory: %s", absPath)
	}

	validateManifest(absPath, report)
	validateSkillsDir(absPath, report)

	errorCount := countLevel(report.Issues, LevelError)
	warningCount := countLevel(report.Issues, LevelWarning)
	for _, issues := range report.Skills {
		errorCount += countLevel(issues, LevelError)
		warningCount += countLevel(issues, LevelWarning)
	}

	report.Valid = errorCount == 0
	if strict && warningCount > 0 {
		report.Valid = false
	}

	return report, nil
}

// validateManifest checks .claude-plugin/plugin.json against the plugin
// descriptor contract.
func validateManifest(projectPath string, report *ProjectReport) {
	manifestPath := filepath.Join(projectPath, PluginDirName, PluginManifestName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		report.add(LevelError, "missing %s/%s", PluginDirName, PluginManifestName)
		return
	}

	var manifest PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		report.add(LevelError, "%s is not valid JSON: %v", PluginManifestName, err)
		return
	}

	if manifest.Name == "" {
		report.add(LevelError, "%s missing required field: name", PluginManifestName)
	} else if !namePattern.MatchString(manifest.Name) {
		report.add(LevelWarning, "plugin name should be lowercase alphanumeric with hyphens: %s", manifest.Name)
	}
	if manifest.Version == "" {
		report.add(LevelWarning, "%s missing field: version", PluginManifestName)
	}
	if manifest.Description == "" {
		report.add(LevelWarning, "%s missing field: description", PluginManifestName)
	}

	report.Manifest = &manifest
}

// validateSkillsDir walks skills/ and validates each skill directory. The
// shared/ directory holds the common library, not a skill.
func validateSkillsDir(projectPath string, report *ProjectReport) {
	skillsDir := filepath.Join(projectPath, SkillsDirName)

	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		report.add(LevelError, "missing %s directory", SkillsDirName)
		return
	}

	found := 0
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == sharedSkillDirName {
			continue
		}
		found++
		report.Skills[entry.Name()] = validateSkill(filepath.Join(skillsDir, entry.Name()))
	}

	if found == 0 {
		report.add(LevelWarning, "no skills found under %s", SkillsDirName)
	}
}

// validateSkill checks one skill directory: SKILL.md with valid frontmatter
// and the directory name matching the declared skill name.
func validateSkill(skillPath string) []Issue {
	issues := make([]Issue, 0)

	loaded, err := LoadSkill(skillPath)
	if err != nil {
		issues = append(issues, Issue{Level: LevelError, Message: err.Error()})
		return issues
	}

	if loaded.Metadata.Name != filepath.Base(skillPath) {
		issues = append(issues, Issue{
			Level:   LevelWarning,
			Message: fmt.Sprintf("skill name %q does not match directory name %q", loaded.Metadata.Name, filepath.Base(skillPath)),
		})
	}
	if loaded.Metadata.WhenToUse == "" {
		issues = append(issues, Issue{Level: LevelWarning, Message: "SKILL.md frontmatter missing \"when_to_use\""})
	}
	if strings.TrimSpace(loaded.Body) == "" {
		issues = append(issues, Issue{Level: LevelWarning, Message: "SKILL.md has no body content"})
	}

	return issues
}

// PrintReport writes the human-readable validation summary to stdout.
func PrintReport(report *ProjectReport) {
	fmt.Printf("Validation: %s\n\n", report.Path)

	if report.Valid {
		fmt.Println("Project structure is valid")
	} else {
		fmt.Println("Project has validation errors")
	}

	for _, level := range []string{LevelError, LevelWarning, LevelInfo} {
		printLevel(report.Issues, level)
	}

	if len(report.Skills) > 0 {
		fmt.Println("\nSkill Validation:")
		fmt.Println(strings.Repeat("-", 40))

		names := make([]string, 0, len(report.Skills))
		for name := range report.Skills {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			issues := report.Skills[name]
			if len(issues) == 0 {
				fmt.Printf("  %s: ok\n", name)
				continue
			}
			fmt.Printf("  %s (%d issues)\n", name, len(issues))
			for _, issue := range issues {
				fmt.Printf("    [%s] %s\n", issue.Level, issue.Message)
			}
		}
	}
}

func printLevel(issues []Issue, level string) {
	matching := make([]Issue, 0)
	for _, issue := range issues {
		if issue.Level == level {
			matching = append(matching, issue)
		}
	}
	if len(matching) == 0 {
		return
	}

	fmt.Printf("\n%ss (%d):\n", strings.ToUpper(level[:1])+level[1:], len(matching))
	for _, issue := range matching {
		fmt.Printf("  %s\n", issue.Message)
	}
}
