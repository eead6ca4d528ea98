// Package skills provides the skill pipeline: loading SKILL.md documents,
// filtering them for eligibility, and rendering immutable snapshots into
// system-prompt text.
package skills

import (
	"time"
)

// Skill is a named capability loaded from a SKILL.md document.
// Skills are immutable after load; identity is by Name.
type Skill struct {
	// Name is the unique skill identifier (lowercase, hyphens allowed,
	// at most 64 characters).
	Name string `json:"name" yaml:"name"`

	// Description explains what the skill does and when to use it.
	// At most 1024 characters.
	Description string `json:"description" yaml:"description"`

	// Model optionally overrides the model id while this skill is invoked.
	Model string `json:"model,omitempty" yaml:"model"`

	// Context selects inline or fork execution for invocations.
	Context ContextMode `json:"context,omitempty" yaml:"context"`

	// AllowedTools restricts which tools the model may call during this
	// skill's invocation. Empty means no restriction.
	AllowedTools []string `json:"allowedTools,omitempty" yaml:"allowed-tools"`

	// ArgumentHint is shown to users next to the slash command.
	ArgumentHint string `json:"argumentHint,omitempty" yaml:"argument-hint"`

	// UserInvocable marks the skill as a slash command.
	UserInvocable bool `json:"userInvocable,omitempty" yaml:"user-invocable"`

	// DisableModelInvocation hides the skill from the model-facing prompt.
	DisableModelInvocation bool `json:"disableModelInvocation,omitempty" yaml:"disable-model-invocation"`

	// Metadata contains gating, install, and UI hints.
	Metadata *Metadata `json:"metadata,omitempty" yaml:"metadata"`

	// Actions are deterministic named scripts shipped with the skill.
	Actions map[string]Action `json:"actions,omitempty" yaml:"actions"`

	// Content is the markdown prompt body.
	Content string `json:"-" yaml:"-"`

	// Path is the directory the skill was loaded from.
	Path string `json:"path" yaml:"-"`

	// Source indicates which root the skill came from.
	Source Source `json:"source" yaml:"-"`
}

// ContextMode selects how a skill invocation runs.
type ContextMode string

const (
	// ContextInline injects the skill content into the current conversation.
	ContextInline ContextMode = "inline"

	// ContextFork runs the skill in a child runner with isolated history.
	ContextFork ContextMode = "fork"
)

// Source indicates which root directory a skill was loaded from.
// Later sources override earlier ones on name collision.
type Source string

const (
	SourceBundled   Source = "bundled"   // Shipped with the binary
	SourceManaged   Source = "managed"   // ~/.skillet/skills
	SourceWorkspace Source = "workspace" // <workspace>/skills
	SourcePlugin    Source = "plugin"    // Installed plugin packages
	SourceExtra     Source = "extra"     // Configured extra directories
)

// sourcePriority orders roots for collision resolution (higher wins).
var sourcePriority = map[Source]int{
	SourceBundled:   0,
	SourceManaged:   1,
	SourceWorkspace: 2,
	SourcePlugin:    3,
	SourceExtra:     4,
}

// Priority returns the collision-resolution rank for the source.
func (s Source) Priority() int {
	return sourcePriority[s]
}

// Metadata contains gating rules, environment hints, and lifecycle hooks.
type Metadata struct {
	// Emoji is displayed next to the skill name in prompts and UIs.
	Emoji string `json:"emoji,omitempty" yaml:"emoji"`

	// Always skips all eligibility checks if true.
	Always bool `json:"always,omitempty" yaml:"always"`

	// PrimaryEnv names the environment variable injected as the skill's
	// API credential into subprocess environments.
	PrimaryEnv string `json:"primaryEnv,omitempty" yaml:"primary_env"`

	// Requires defines eligibility requirements.
	Requires *Requires `json:"requires,omitempty" yaml:"requires"`

	// Install provides installation hints for missing dependencies.
	Install []InstallSpec `json:"install,omitempty" yaml:"install"`

	// Hooks maps lifecycle point names to shell commands.
	Hooks map[string]string `json:"hooks,omitempty" yaml:"hooks"`
}

// Requires defines eligibility requirements for a skill.
type Requires struct {
	// Bins requires all listed binaries to exist on PATH.
	Bins []string `json:"bins,omitempty" yaml:"bins"`

	// AnyBins requires at least one of the listed binaries to exist.
	AnyBins []string `json:"anyBins,omitempty" yaml:"any_bins"`

	// Env requires all listed environment variables to be non-empty.
	Env []string `json:"env,omitempty" yaml:"env"`

	// OS restricts the skill to specific platforms (darwin, linux, windows).
	OS []string `json:"os,omitempty" yaml:"os"`
}

// InstallSpec describes how to install a skill dependency.
type InstallSpec struct {
	// ID is a unique identifier for this install option.
	ID string `json:"id,omitempty" yaml:"id"`

	// Kind is the installer type: brew, apt, npm, go, download.
	Kind string `json:"kind" yaml:"kind"`

	// Package is the package, formula, or module name.
	Package string `json:"package,omitempty" yaml:"package"`

	// URL is the download URL for the download kind.
	URL string `json:"url,omitempty" yaml:"url"`

	// Bins lists the binaries provided by this installer.
	Bins []string `json:"bins,omitempty" yaml:"bins"`

	// Label is a human-readable description.
	Label string `json:"label,omitempty" yaml:"label"`
}

// Action is a deterministic named script shipped with a skill.
type Action struct {
	// Script is the path of the script, relative to the skill directory.
	Script string `json:"script" yaml:"script"`

	// Output declares how the script's stdout should be interpreted.
	Output ActionOutput `json:"output,omitempty" yaml:"output"`

	// Params documents the parameters the script accepts.
	Params []ActionParam `json:"params,omitempty" yaml:"params"`
}

// ActionOutput declares the interpretation of an action's stdout.
type ActionOutput string

const (
	ActionOutputText ActionOutput = "text"
	ActionOutputJSON ActionOutput = "json"
)

// ActionParam documents a single action parameter.
type ActionParam struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Required    bool   `json:"required,omitempty" yaml:"required"`
}

// Config provides per-skill configuration overrides.
type Config struct {
	// Enabled controls whether the skill is eligible. Nil means enabled.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`

	// APIKey is a convenience for skills declaring a primary_env.
	APIKey string `json:"apiKey,omitempty" yaml:"api_key"`

	// Env provides environment variable overrides for subprocesses.
	Env map[string]string `json:"env,omitempty" yaml:"env"`
}

// Emoji returns the skill's emoji or a neutral default.
func (s *Skill) Emoji() string {
	if s.Metadata != nil && s.Metadata.Emoji != "" {
		return s.Metadata.Emoji
	}
	return "🔧"
}

// PrimaryEnv returns the skill's primary credential variable, if declared.
func (s *Skill) PrimaryEnv() string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata.PrimaryEnv
}

// IsEnabled checks per-skill configuration. Skills are enabled by default.
func (s *Skill) IsEnabled(overrides map[string]*Config) bool {
	cfg, ok := overrides[s.Name]
	if !ok || cfg.Enabled == nil {
		return true
	}
	return *cfg.Enabled
}

// LoaderError reports a skill that failed to load. The offending skill is
// skipped; other skills load normally.
type LoaderError struct {
	Path   string
	Reason string
}

func (e *LoaderError) Error() string {
	return "load skill " + e.Path + ": " + e.Reason
}

// LoadReport summarizes one loader pass.
type LoadReport struct {
	Skills   []*Skill
	Errors   []*LoaderError
	Warnings []string
	LoadedAt time.Time
}
