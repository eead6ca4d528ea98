// Package config loads the engine's YAML configuration with environment
// variable expansion and per-key defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/skilletlabs/skillet/internal/skills"
)

// Config is the main configuration structure for Skillet.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Agent    AgentConfig    `yaml:"agent"`
	Skills   SkillsConfig   `yaml:"skills"`
	Context  ContextConfig  `yaml:"context"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig selects the LLM endpoint.
type ProviderConfig struct {
	// Name is "anthropic" or "openai". Empty selects by model prefix.
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	MaxTurns      int     `yaml:"max_turns"`
	Temperature   float32 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	ThinkingLevel string  `yaml:"thinking_level"`
	EnableTools   *bool   `yaml:"enable_tools"`
	SystemPrompt  string  `yaml:"system_prompt"`

	// LoadContextFiles discovers AGENTS.md in the working directory and
	// its ancestors and appends them to the system prompt.
	LoadContextFiles bool `yaml:"load_context_files"`
}

// SkillsConfig controls skill discovery and rendering.
type SkillsConfig struct {
	// Dirs are extra skill root directories, searched after the managed
	// and workspace roots.
	Dirs []string `yaml:"dirs"`

	Watch             bool          `yaml:"watch"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
	DescriptionBudget int           `yaml:"description_budget"`
	PromptFormat      string        `yaml:"prompt_format"`

	// BundledAllow restricts bundled skills to the listed names.
	BundledAllow []string `yaml:"bundled_allow"`

	// Entries carries per-skill overrides keyed by skill name.
	Entries map[string]*skills.Config `yaml:"entries"`
}

// ContextConfig bounds the model context budget.
type ContextConfig struct {
	Window    int     `yaml:"window"`
	Reserve   int     `yaml:"reserve"`
	Threshold float64 `yaml:"threshold"`

	// Strategy is "sliding_window" or "summarize".
	Strategy string `yaml:"strategy"`
}

// SessionConfig identifies a resumable conversation.
type SessionConfig struct {
	ID string `yaml:"id"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EnvFile is loaded before configuration so ${VAR} expansion sees it.
const EnvFile = ".env"

// Load reads and parses the configuration file. An empty path yields the
// defaults; a present but unreadable or malformed file is fatal.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is normal.
	_ = godotenv.Load(EnvFile)

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = "claude-sonnet-4-5"
	}
	if cfg.Agent.MaxTurns == 0 {
		cfg.Agent.MaxTurns = 50
	}
	if cfg.Agent.ThinkingLevel == "" {
		cfg.Agent.ThinkingLevel = "off"
	}
	if cfg.Skills.WatchDebounce == 0 {
		cfg.Skills.WatchDebounce = 250 * time.Millisecond
	}
	if cfg.Skills.DescriptionBudget == 0 {
		cfg.Skills.DescriptionBudget = skills.DefaultDescriptionBudget
	}
	if cfg.Skills.PromptFormat == "" {
		cfg.Skills.PromptFormat = string(skills.FormatTag)
	}
	if cfg.Context.Window == 0 {
		cfg.Context.Window = 200000
	}
	if cfg.Context.Reserve == 0 {
		cfg.Context.Reserve = 4096
	}
	if cfg.Context.Threshold == 0 {
		cfg.Context.Threshold = 0.9
	}
	if cfg.Context.Strategy == "" {
		cfg.Context.Strategy = "sliding_window"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnvOverrides fills credentials from the conventional provider
// variables when the file leaves them blank.
func applyEnvOverrides(cfg *Config) {
	if cfg.Provider.APIKey == "" {
		switch cfg.ProviderName() {
		case "anthropic":
			cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// ProviderName resolves the adapter to use: an explicit name wins,
// otherwise the model id decides.
func (c *Config) ProviderName() string {
	if c.Provider.Name != "" {
		return c.Provider.Name
	}
	if strings.HasPrefix(c.Provider.Model, "claude") {
		return "anthropic"
	}
	return "openai"
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.ProviderName() {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider.Name)
	}
	switch c.Agent.ThinkingLevel {
	case "off", "short", "long", "extended":
	default:
		return fmt.Errorf("invalid thinking_level %q", c.Agent.ThinkingLevel)
	}
	switch skills.PromptFormat(c.Skills.PromptFormat) {
	case skills.FormatTag, skills.FormatMarkdown, skills.FormatJSON:
	default:
		return fmt.Errorf("invalid prompt_format %q", c.Skills.PromptFormat)
	}
	switch c.Context.Strategy {
	case "sliding_window", "summarize":
	default:
		return fmt.Errorf("invalid context strategy %q", c.Context.Strategy)
	}
	if c.Context.Threshold < 0 || c.Context.Threshold > 1 {
		return fmt.Errorf("context threshold %v out of range", c.Context.Threshold)
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("max_turns must be positive, got %d", c.Agent.MaxTurns)
	}
	return nil
}

// ToolsEnabled reports whether tool dispatch is active. Defaults to true.
func (c *Config) ToolsEnabled() bool {
	return c.Agent.EnableTools == nil || *c.Agent.EnableTools
}

// SkillRoots assembles the ordered root list: managed, workspace, then any
// configured extra directories.
func (c *Config) SkillRoots(workDir string) []skills.Root {
	roots := make([]skills.Root, 0, 2+len(c.Skills.Dirs))
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, skills.Root{
			Path:   filepath.Join(home, ".skillet", "skills"),
			Source: skills.SourceManaged,
		})
	}
	if workDir != "" {
		roots = append(roots, skills.Root{
			Path:   filepath.Join(workDir, "skills"),
			Source: skills.SourceWorkspace,
		})
	}
	for _, dir := range c.Skills.Dirs {
		roots = append(roots, skills.Root{Path: dir, Source: skills.SourceExtra})
	}
	return roots
}
