package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PromptFormat selects how a snapshot renders its skills into prompt text.
type PromptFormat string

const (
	// FormatTag renders delimited skill blocks (the default).
	FormatTag PromptFormat = "tag"

	// FormatMarkdown renders heading-prefixed markdown.
	FormatMarkdown PromptFormat = "markdown"

	// FormatJSON renders a machine-readable array.
	FormatJSON PromptFormat = "json"
)

// DefaultDescriptionBudget caps the metadata-only prompt projection.
const DefaultDescriptionBudget = 16000

// Snapshot is an immutable, versioned view of the eligible skill set with a
// pre-rendered prompt. Hot reload produces a fresh snapshot with Version+1;
// an old snapshot remains valid for any in-flight turn that captured it.
type Snapshot struct {
	skills    []*Skill
	byName    map[string]*Skill
	prompt    string
	version   int
	createdAt time.Time
	hash      string
}

// BuildSnapshot creates a snapshot from the eligible skills. Skills are
// ordered by name; skills with DisableModelInvocation are retained in the
// set but excluded from the rendered prompt.
func BuildSnapshot(eligible []*Skill, format PromptFormat, version int) *Snapshot {
	ordered := make([]*Skill, len(eligible))
	copy(ordered, eligible)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Name < ordered[j].Name
	})

	byName := make(map[string]*Skill, len(ordered))
	for _, skill := range ordered {
		byName[skill.Name] = skill
	}

	visible := make([]*Skill, 0, len(ordered))
	for _, skill := range ordered {
		if !skill.DisableModelInvocation {
			visible = append(visible, skill)
		}
	}

	return &Snapshot{
		skills:    ordered,
		byName:    byName,
		prompt:    FormatPrompt(visible, format),
		version:   version,
		createdAt: time.Now(),
		hash:      contentHash(ordered),
	}
}

// Skills returns the eligible skills in stable order. The returned slice is
// a copy; the snapshot itself never mutates.
func (s *Snapshot) Skills() []*Skill {
	out := make([]*Skill, len(s.skills))
	copy(out, s.skills)
	return out
}

// Get returns a skill by name.
func (s *Snapshot) Get(name string) (*Skill, bool) {
	skill, ok := s.byName[name]
	return skill, ok
}

// Prompt returns the pre-rendered prompt text.
func (s *Snapshot) Prompt() string { return s.prompt }

// Version returns the monotonic snapshot version.
func (s *Snapshot) Version() int { return s.version }

// CreatedAt returns the snapshot creation time.
func (s *Snapshot) CreatedAt() time.Time { return s.createdAt }

// Hash returns the content hash over all member skills. It is stable across
// runs for identical skill sets.
func (s *Snapshot) Hash() string { return s.hash }

// MetadataPrompt renders the budget-capped name and description
// projection of the snapshot, for system prompts that rely on the skill
// tool for on-demand content loading.
func (s *Snapshot) MetadataPrompt(budget int) string {
	visible := make([]*Skill, 0, len(s.skills))
	for _, skill := range s.skills {
		if !skill.DisableModelInvocation {
			visible = append(visible, skill)
		}
	}
	return FormatMetadataPrompt(visible, budget)
}

// UserInvocable returns the skills usable as slash commands.
func (s *Snapshot) UserInvocable() []*Skill {
	var out []*Skill
	for _, skill := range s.skills {
		if skill.UserInvocable {
			out = append(out, skill)
		}
	}
	return out
}

// contentHash digests the sorted serialized skills.
func contentHash(ordered []*Skill) string {
	h := sha256.New()
	for _, skill := range ordered {
		payload, _ := json.Marshal(skill)
		h.Write(payload)
		h.Write([]byte(skill.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FormatPrompt renders skills into prompt text in the given format.
func FormatPrompt(visible []*Skill, format PromptFormat) string {
	switch format {
	case FormatMarkdown:
		return formatMarkdown(visible)
	case FormatJSON:
		return formatJSON(visible)
	default:
		return formatTag(visible)
	}
}

// FormatMetadataPrompt renders the metadata-only projection (name and
// description per skill) used when the system prompt is optimised for
// on-demand loading via the skill tool. Output is capped at budget
// characters; skills that would overflow the budget are omitted.
func FormatMetadataPrompt(visible []*Skill, budget int) string {
	if len(visible) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = DefaultDescriptionBudget
	}

	var b strings.Builder
	b.WriteString("<skills>\n")
	for _, skill := range visible {
		fragment := fmt.Sprintf("  <skill name=%q>%s</skill>\n",
			skill.Name, escapeTag(skill.Description))
		if b.Len()+len(fragment)+len("</skills>") > budget {
			break
		}
		b.WriteString(fragment)
	}
	b.WriteString("</skills>")
	return b.String()
}

func formatTag(visible []*Skill) string {
	if len(visible) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<skills>\n")
	for _, skill := range visible {
		b.WriteString("  <skill>\n")
		fmt.Fprintf(&b, "    <name>%s</name>\n", escapeTag(skill.Name))
		fmt.Fprintf(&b, "    <emoji>%s</emoji>\n", escapeTag(skill.Emoji()))
		fmt.Fprintf(&b, "    <description>%s</description>\n", escapeTag(skill.Description))
		if skill.Content != "" {
			fmt.Fprintf(&b, "    <content>%s</content>\n", escapeTag(skill.Content))
		}
		b.WriteString("  </skill>\n")
	}
	b.WriteString("</skills>")
	return b.String()
}

func formatMarkdown(visible []*Skill) string {
	if len(visible) == 0 {
		return ""
	}
	var b strings.Builder
	for i, skill := range visible {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s %s\n\n%s", skill.Emoji(), skill.Name, skill.Description)
		if skill.Content != "" {
			b.WriteString("\n\n")
			b.WriteString(skill.Content)
		}
	}
	return b.String()
}

func formatJSON(visible []*Skill) string {
	type entry struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Emoji       string `json:"emoji,omitempty"`
	}
	entries := make([]entry, 0, len(visible))
	for _, skill := range visible {
		entries = append(entries, entry{
			Name:        skill.Name,
			Description: skill.Description,
			Emoji:       skill.Emoji(),
		})
	}
	payload, _ := json.MarshalIndent(entries, "", "  ")
	return string(payload)
}

func escapeTag(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
