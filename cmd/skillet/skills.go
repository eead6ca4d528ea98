package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skilletlabs/skillet/internal/config"
	"github.com/skilletlabs/skillet/internal/skills"
)

func buildSkillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Manage skills (SKILL.md-based)",
		Long: `Inspect skills that extend agent capabilities.

Skills are discovered from:
  - ~/.skillet/skills (managed skills)
  - <workspace>/skills
  - Extra directories (skills.dirs)

Each skill is a directory containing a SKILL.md file with YAML front-matter.`,
	}
	cmd.AddCommand(
		buildSkillsListCmd(),
		buildSkillsShowCmd(),
	)
	return cmd
}

func buildSkillsListCmd() *cobra.Command {
	var configPath string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		Long: `List discovered skills and their eligibility.

By default only eligible skills are shown. Use --all to include
ineligible skills with their rejection reasons.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsList(cmd.Context(), configPath, all)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Show ineligible skills too")
	return cmd
}

func buildSkillsShowCmd() *cobra.Command {
	var configPath string
	var showContent bool
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show skill details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillsShow(cmd.Context(), configPath, args[0], showContent)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVar(&showContent, "content", false, "Show full skill content")
	return cmd
}

func runSkillsList(ctx context.Context, configPath string, all bool) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return err
	}
	engine := buildEngine(cfg, workingDir())
	defer engine.Close()

	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tINVOCABLE\tDESCRIPTION")
	for _, s := range snap.Skills() {
		invocable := "-"
		if s.UserInvocable {
			invocable = "/" + s.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Source, invocable, truncate(s.Description, 60))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if all {
		report := engine.Report()
		probe := skills.NewProbe(cfg.Skills.Entries, cfg.Skills.BundledAllow)
		shown := false
		for _, s := range report.Skills {
			if _, ok := snap.Get(s.Name); ok {
				continue
			}
			if !shown {
				fmt.Println("\nIneligible:")
				shown = true
			}
			elig := skills.CheckEligibility(s, probe)
			fmt.Printf("  %s: %s\n", s.Name, elig.Reason)
		}
		for _, loadErr := range report.Errors {
			fmt.Printf("  load error %s: %s\n", loadErr.Path, loadErr.Reason)
		}
	}
	return nil
}

func runSkillsShow(ctx context.Context, configPath, name string, showContent bool) error {
	cfg, err := config.Load(resolveConfigPath(configPath))
	if err != nil {
		return err
	}
	engine := buildEngine(cfg, workingDir())
	defer engine.Close()

	snap, err := engine.Snapshot(ctx)
	if err != nil {
		return err
	}
	skill, ok := snap.Get(name)
	if !ok {
		return fmt.Errorf("skill %q not found or not eligible", name)
	}

	fmt.Printf("Name:        %s\n", skill.Name)
	fmt.Printf("Description: %s\n", skill.Description)
	fmt.Printf("Source:      %s\n", skill.Source)
	fmt.Printf("Path:        %s\n", skill.Path)
	if skill.Model != "" {
		fmt.Printf("Model:       %s\n", skill.Model)
	}
	if skill.Context != "" {
		fmt.Printf("Context:     %s\n", skill.Context)
	}
	if len(skill.AllowedTools) > 0 {
		fmt.Printf("Tools:       %v\n", skill.AllowedTools)
	}
	if skill.ArgumentHint != "" {
		fmt.Printf("Usage:       /%s %s\n", skill.Name, skill.ArgumentHint)
	}
	if showContent {
		fmt.Println("\n" + skill.Content)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func printInvocable(ctx context.Context, engine *skills.Engine) {
	snap, err := engine.Snapshot(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "skills unavailable:", err)
		return
	}
	invocable := snap.UserInvocable()
	if len(invocable) == 0 {
		fmt.Println("no invocable skills")
		return
	}
	for _, s := range invocable {
		hint := ""
		if s.ArgumentHint != "" {
			hint = " " + s.ArgumentHint
		}
		fmt.Printf("  /%s%s  %s\n", s.Name, hint, s.Description)
	}
}
