// Package main provides the CLI entry point for Skillet, a skill-driven
// LLM agent engine.
//
// Skills are Markdown documents with YAML front-matter discovered from
// ~/.skillet/skills, <workspace>/skills, and any configured extra
// directories. Eligible skills are rendered into the model's system
// prompt; the model loads full skill content on demand through the skill
// tool, and users invoke skills directly as slash commands.
//
// # Basic Usage
//
// Start an interactive session:
//
//	skillet chat --config skillet.yaml
//
// Inspect discovered skills:
//
//	skillet skills list
//	skillet skills show pdf-render --content
//
// # Environment Variables
//
//   - SKILLET_CONFIG: Path to configuration file (default: skillet.yaml)
//   - ANTHROPIC_API_KEY: API key for Claude models
//   - OPENAI_API_KEY: API key for GPT and compatible models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "skillet",
		Short: "Skillet - skill-driven LLM agent engine",
		Long: `Skillet runs an agent loop against Anthropic or OpenAI-compatible
models, augmented with skills: Markdown capabilities loaded into the
system prompt and invocable as slash commands.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildSkillsCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skillet %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// resolveConfigPath honors the flag, then SKILLET_CONFIG, then the
// default file if it exists.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("SKILLET_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat("skillet.yaml"); err == nil {
		return "skillet.yaml"
	}
	return ""
}

func configureLogging(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
