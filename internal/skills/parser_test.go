package skills

import (
	"strings"
	"testing"
)

func skillDoc(front, body string) []byte {
	return []byte("---\n" + front + "\n---\n" + body)
}

func TestParseSkillBasic(t *testing.T) {
	data := skillDoc(
		"name: git-helper\ndescription: Helps with git workflows\nuser-invocable: true",
		"Use `git status` before anything else.")

	skill, err := ParseSkill(data, "/skills/git-helper")
	if err != nil {
		t.Fatalf("ParseSkill failed: %v", err)
	}
	if skill.Name != "git-helper" {
		t.Errorf("expected name git-helper, got %q", skill.Name)
	}
	if skill.Description != "Helps with git workflows" {
		t.Errorf("unexpected description: %q", skill.Description)
	}
	if !skill.UserInvocable {
		t.Error("expected user-invocable")
	}
	if skill.Context != ContextInline {
		t.Errorf("expected default context inline, got %q", skill.Context)
	}
	if skill.Content != "Use `git status` before anything else." {
		t.Errorf("unexpected content: %q", skill.Content)
	}
	if skill.Path != "/skills/git-helper" {
		t.Errorf("unexpected path: %q", skill.Path)
	}
}

func TestParseSkillMetadata(t *testing.T) {
	data := skillDoc(strings.Join([]string{
		"name: deploy",
		"description: Deploys the service",
		"model: gpt-4o",
		"context: fork",
		"allowed-tools:",
		"  - execute",
		"metadata:",
		"  emoji: 🚀",
		"  primary_env: DEPLOY_TOKEN",
		"  requires:",
		"    bins: [kubectl]",
		"    env: [DEPLOY_TOKEN]",
		"    os: [linux, darwin]",
	}, "\n"), "Run the deploy action.")

	skill, err := ParseSkill(data, "/skills/deploy")
	if err != nil {
		t.Fatalf("ParseSkill failed: %v", err)
	}
	if skill.Model != "gpt-4o" {
		t.Errorf("unexpected model: %q", skill.Model)
	}
	if skill.Context != ContextFork {
		t.Errorf("expected fork context, got %q", skill.Context)
	}
	if len(skill.AllowedTools) != 1 || skill.AllowedTools[0] != "execute" {
		t.Errorf("unexpected allowed tools: %v", skill.AllowedTools)
	}
	if skill.Metadata == nil || skill.Metadata.Requires == nil {
		t.Fatal("expected metadata.requires")
	}
	if skill.PrimaryEnv() != "DEPLOY_TOKEN" {
		t.Errorf("unexpected primary env: %q", skill.PrimaryEnv())
	}
	if got := skill.Metadata.Requires.Bins; len(got) != 1 || got[0] != "kubectl" {
		t.Errorf("unexpected bins: %v", got)
	}
	if skill.Emoji() != "🚀" {
		t.Errorf("unexpected emoji: %q", skill.Emoji())
	}
}

func TestParseSkillValidation(t *testing.T) {
	cases := []struct {
		name  string
		front string
	}{
		{"missing name", "description: something"},
		{"missing description", "name: valid-name"},
		{"uppercase name", "name: NotValid\ndescription: x"},
		{"leading hyphen", "name: -bad\ndescription: x"},
		{"bad context", "name: ok\ndescription: x\ncontext: nested"},
		{"long description", "name: ok\ndescription: " + strings.Repeat("a", MaxDescriptionLength+1)},
		{"long name", "name: " + strings.Repeat("a", MaxNameLength+1) + "\ndescription: x"},
		{"action without script", "name: ok\ndescription: x\nactions:\n  run:\n    output: text"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseSkill(skillDoc(tc.front, "body"), "/tmp/s"); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseSkillBoundaryLengths(t *testing.T) {
	name := strings.Repeat("a", MaxNameLength)
	desc := strings.Repeat("d", MaxDescriptionLength)
	data := skillDoc("name: "+name+"\ndescription: "+desc, "")
	skill, err := ParseSkill(data, "/tmp/s")
	if err != nil {
		t.Fatalf("boundary-length skill should parse: %v", err)
	}
	if len(skill.Name) != MaxNameLength {
		t.Errorf("expected %d-char name, got %d", MaxNameLength, len(skill.Name))
	}
}

func TestParseSkillMissingFrontmatter(t *testing.T) {
	if _, err := ParseSkill([]byte("just a body, no frontmatter"), "/tmp/s"); err == nil {
		t.Error("expected error for missing frontmatter")
	}
	if _, err := ParseSkill([]byte("---\nname: x\ndescription: y"), "/tmp/s"); err == nil {
		t.Error("expected error for unterminated frontmatter")
	}
	if _, err := ParseSkill(nil, "/tmp/s"); err == nil {
		t.Error("expected error for empty file")
	}
}

func TestValidName(t *testing.T) {
	valid := []string{"a", "abc", "a-b-c", "skill2", "0start", strings.Repeat("x", 64)}
	for _, name := range valid {
		if !ValidName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	invalid := []string{"", "-lead", "UPPER", "has space", "has_underscore", strings.Repeat("x", 65)}
	for _, name := range invalid {
		if ValidName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
