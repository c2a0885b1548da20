package skill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSkillMD = `---
name: issue-manager
description: Manage issues through the tracker CLI
when_to_use: When the user asks about issues
version: 1.0.0
---

## What This Skill Does

Lists, creates, and updates issues.
`

func writeSkill(t *testing.T, dir, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, SkillFileName), []byte(content), 0644))
	return dir
}

func TestLoadSkill(t *testing.T) {
	t.Run("Valid skill", func(t *testing.T) {
		dir := writeSkill(t, filepath.Join(t.TempDir(), "issue-manager"), validSkillMD)

		loaded, err := LoadSkill(dir)
		require.NoError(t, err)
		assert.Equal(t, "issue-manager", loaded.Metadata.Name)
		assert.Equal(t, "When the user asks about issues", loaded.Metadata.WhenToUse)
		assert.Contains(t, loaded.Body, "## What This Skill Does")
	})

	t.Run("Missing SKILL.md", func(t *testing.T) {
		dir := t.TempDir()
		_, err := LoadSkill(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), SkillFileName)
	})

	t.Run("Missing directory", func(t *testing.T) {
		_, err := LoadSkill("/nonexistent/skill")
		assert.Error(t, err)
	})

	t.Run("File instead of directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
		_, err := LoadSkill(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be a directory")
	})
}

func TestParseFrontmatter(t *testing.T) {
	t.Run("Splits frontmatter and body", func(t *testing.T) {
		meta, body, err := ParseFrontmatter(validSkillMD)
		require.NoError(t, err)
		assert.Equal(t, "issue-manager", meta.Name)
		assert.NotContains(t, body, "name:")
	})

	t.Run("Missing opening delimiter", func(t *testing.T) {
		_, _, err := ParseFrontmatter("name: x\ndescription: y")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "frontmatter")
	})

	t.Run("Unclosed frontmatter", func(t *testing.T) {
		_, _, err := ParseFrontmatter("---\nname: x\ndescription: y")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not properly closed")
	})

	t.Run("Empty frontmatter block", func(t *testing.T) {
		_, _, err := ParseFrontmatter("---\n---\nSome body")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("Blank line as frontmatter", func(t *testing.T) {
		_, _, err := ParseFrontmatter("---\n\n---\nSome body")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("Invalid YAML in frontmatter", func(t *testing.T) {
		_, _, err := ParseFrontmatter("---\nname: [unclosed\n---\nbody")
		assert.Error(t, err)
	})

	t.Run("CRLF content", func(t *testing.T) {
		meta, _, err := ParseFrontmatter("---\r\nname: a\r\ndescription: b\r\n---\r\nbody\r\n")
		require.NoError(t, err)
		assert.Equal(t, "a", meta.Name)
	})
}

func TestValidateMetadata(t *testing.T) {
	valid := func() *SkillMetadata {
		return &SkillMetadata{Name: "my-skill", Description: "does things"}
	}

	t.Run("Valid metadata", func(t *testing.T) {
		assert.NoError(t, ValidateMetadata(valid()))
	})

	t.Run("Name required", func(t *testing.T) {
		m := valid()
		m.Name = ""
		assert.Error(t, ValidateMetadata(m))
	})

	t.Run("Name pattern enforced", func(t *testing.T) {
		for _, bad := range []string{"My-Skill", "skill_x", "-leading", "trailing-", "double--hyphen"} {
			m := valid()
			m.Name = bad
			assert.Error(t, ValidateMetadata(m), "name %q should be rejected", bad)
		}
	})

	t.Run("Name length capped", func(t *testing.T) {
		m := valid()
		for len(m.Name) <= MaxNameLength {
			m.Name += "x"
		}
		assert.Error(t, ValidateMetadata(m))
	})

	t.Run("Description required", func(t *testing.T) {
		m := valid()
		m.Description = ""
		assert.Error(t, ValidateMetadata(m))
	})
}
