package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// SkillFilename is the expected filename for skill definitions.
	SkillFilename = "SKILL.md"

	// FrontmatterDelimiter marks the beginning and end of YAML frontmatter.
	FrontmatterDelimiter = "---"

	// MaxNameLength is the maximum length of a skill name.
	MaxNameLength = 64

	// MaxDescriptionLength is the maximum length of a skill description.
	MaxDescriptionLength = 1024
)

var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidName reports whether name is a legal skill name: lowercase
// alphanumerics and hyphens, no leading hyphen, at most 64 characters.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// ParseSkillFile parses a SKILL.md file into a Skill.
func ParseSkillFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoaderError{Path: path, Reason: err.Error()}
	}
	return ParseSkill(data, filepath.Dir(path))
}

// ParseSkill parses SKILL.md bytes into a Skill. skillPath is the directory
// the skill lives in and is recorded on the result.
func ParseSkill(data []byte, skillPath string) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, &LoaderError{Path: skillPath, Reason: err.Error()}
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, &LoaderError{Path: skillPath, Reason: fmt.Sprintf("parse frontmatter: %v", err)}
	}

	if err := validateSkill(&skill); err != nil {
		return nil, &LoaderError{Path: skillPath, Reason: err.Error()}
	}

	skill.Content = strings.TrimSpace(string(body))
	skill.Path = skillPath
	if skill.Context == "" {
		skill.Context = ContextInline
	}

	return &skill, nil
}

// splitFrontmatter separates YAML frontmatter from the markdown body.
// The opening delimiter must be on line 1.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan: %w", err)
	}

	frontmatter := []byte(strings.Join(frontmatterLines, "\n"))
	body := []byte(strings.Join(bodyLines, "\n"))
	return frontmatter, body, nil
}

func validateSkill(s *Skill) error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if !ValidName(s.Name) {
		return fmt.Errorf("invalid skill name %q: must match %s", s.Name, nameRe.String())
	}
	if s.Description == "" {
		return fmt.Errorf("skill description is required")
	}
	if len(s.Description) > MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxDescriptionLength)
	}
	switch s.Context {
	case "", ContextInline, ContextFork:
	default:
		return fmt.Errorf("invalid context %q: must be inline or fork", s.Context)
	}
	for name, action := range s.Actions {
		if strings.TrimSpace(action.Script) == "" {
			return fmt.Errorf("action %q: script is required", name)
		}
	}
	return nil
}
