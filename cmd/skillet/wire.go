package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/skilletlabs/skillet/internal/adapters/anthropic"
	"github.com/skilletlabs/skillet/internal/adapters/openai"
	"github.com/skilletlabs/skillet/internal/agent"
	"github.com/skilletlabs/skillet/internal/config"
	"github.com/skilletlabs/skillet/internal/exec"
	"github.com/skilletlabs/skillet/internal/skills"
	"github.com/skilletlabs/skillet/internal/tokens"
)

func buildEngine(cfg *config.Config, workDir string) *skills.Engine {
	return skills.NewEngine(skills.EngineConfig{
		Roots:         cfg.SkillRoots(workDir),
		Format:        skills.PromptFormat(cfg.Skills.PromptFormat),
		Configs:       cfg.Skills.Entries,
		BundledAllow:  cfg.Skills.BundledAllow,
		WatchDebounce: cfg.Skills.WatchDebounce,
	})
}

func buildAdapter(cfg *config.Config) (agent.Adapter, error) {
	if cfg.Provider.APIKey == "" && cfg.Provider.BaseURL == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.ProviderName())
	}
	switch cfg.ProviderName() {
	case "anthropic":
		return anthropic.New(cfg.Provider.APIKey, cfg.Provider.BaseURL), nil
	default:
		return openai.New(cfg.Provider.APIKey, cfg.Provider.BaseURL), nil
	}
}

// buildContextManager assembles the compaction pipeline. The summarize
// strategy reuses the chat adapter for the summarization call.
func buildContextManager(cfg *config.Config, adapter agent.Adapter) *agent.ContextManager {
	estimator := tokens.NewEstimator(cfg.Provider.Model)

	var compactor agent.Compactor
	if cfg.Context.Strategy == "summarize" {
		compactor = &agent.SummarizingCompactor{
			Summarize: newSummarizer(adapter, cfg.Provider.Model),
		}
	}
	return agent.NewContextManager(
		cfg.Context.Window,
		cfg.Context.Reserve,
		cfg.Context.Threshold,
		estimator,
		compactor,
	)
}

// newSummarizer condenses dropped history through a single model call.
func newSummarizer(adapter agent.Adapter, model string) agent.Summarizer {
	return func(ctx context.Context, dropped []agent.Message) (string, error) {
		var transcript strings.Builder
		for _, m := range dropped {
			fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
		}

		req := agent.StreamRequest{
			Model: model,
			Messages: []agent.LLMMessage{
				{Role: agent.RoleSystem, Content: "Summarize the following conversation fragment in a compact paragraph. Preserve decisions, facts, and open tasks."},
				{Role: agent.RoleUser, Content: transcript.String()},
			},
		}
		ch, err := adapter.Stream(ctx, req)
		if err != nil {
			return "", err
		}
		var summary strings.Builder
		for ev := range ch {
			switch ev.Type {
			case agent.StreamTextDelta:
				summary.WriteString(ev.Content)
			case agent.StreamError:
				return "", fmt.Errorf("summarization failed: %s", ev.Error)
			}
		}
		return summary.String(), nil
	}
}

func buildTools(runtime *exec.Runtime, workDir string) *agent.Registry {
	registry := agent.NewRegistry()
	registry.Register(&agent.ExecuteTool{Runtime: runtime})
	registry.Register(&agent.ExecuteScriptTool{Runtime: runtime})
	registry.Register(&agent.ReadTool{Root: workDir})
	registry.Register(&agent.WriteTool{Root: workDir})
	return registry
}

func buildRunner(cfg *config.Config, workDir string) (*agent.Runner, *agent.Bus, *skills.Engine, error) {
	adapter, err := buildAdapter(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	engine := buildEngine(cfg, workDir)
	runtime := exec.NewRuntime(workDir)
	bus := agent.NewBus()

	systemPrompt := cfg.Agent.SystemPrompt
	if cfg.Agent.LoadContextFiles {
		if contextText := config.LoadContextFiles(workDir); contextText != "" {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += contextText
		}
	}

	runner := agent.NewRunner(engine, adapter, bus, buildContextManager(cfg, adapter), buildTools(runtime, workDir), runtime, agent.RunnerConfig{
		Model:             cfg.Provider.Model,
		MaxTurns:          cfg.Agent.MaxTurns,
		Temperature:       cfg.Agent.Temperature,
		MaxTokens:         cfg.Agent.MaxTokens,
		ThinkingLevel:     agent.ThinkingLevel(cfg.Agent.ThinkingLevel),
		DisableTools:      !cfg.ToolsEnabled(),
		SkillPromptBudget: cfg.Skills.DescriptionBudget,
		SystemPrompt:      systemPrompt,
	})
	return runner, bus, engine, nil
}

func workingDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return dir
}
