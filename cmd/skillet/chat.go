package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/skilletlabs/skillet/internal/agent"
	"github.com/skilletlabs/skillet/internal/config"
)

func buildChatCmd() *cobra.Command {
	var configPath string
	var model string
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive agent session",
		Long: `Start a REPL against the configured model.

Session commands:
  /skills          list invocable skills
  /clear           reset the conversation
  /quit            exit
  /<skill> [args]  invoke a skill as a slash command

Ctrl-C aborts the in-flight turn; a second Ctrl-C exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Provider.Model = model
			}
			if systemPrompt != "" {
				cfg.Agent.SystemPrompt = systemPrompt
			}
			configureLogging(cfg.Logging.Level, cfg.Logging.Format)
			return runChat(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model id override")
	cmd.Flags().StringVar(&systemPrompt, "system", "", "System prompt override")
	return cmd
}

func runChat(ctx context.Context, cfg *config.Config) error {
	runner, bus, engine, err := buildRunner(cfg, workingDir())
	if err != nil {
		return err
	}
	defer engine.Close()

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	if cfg.Skills.Watch {
		if err := engine.StartWatching(watchCtx); err != nil {
			fmt.Fprintln(os.Stderr, "skill watching disabled:", err)
		}
	}

	runner.OnStream(printStreamEvent)

	bus.Emit(ctx, &agent.Event{
		Name: agent.EventSessionStart,
		Data: map[string]any{"session_id": cfg.Session.ID, "model": cfg.Provider.Model},
	})
	defer bus.Emit(context.Background(), &agent.Event{Name: agent.EventSessionEnd})

	// First Ctrl-C aborts the active turn, a second one exits.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		runner.Abort()
		<-sigCh
		os.Exit(130)
	}()

	fmt.Printf("skillet %s on %s (/quit to exit)\n", version, cfg.Provider.Model)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil
		case "/clear":
			if err := runner.Reset(); err != nil {
				fmt.Fprintln(os.Stderr, "cannot clear:", err)
				continue
			}
			fmt.Println("conversation cleared")
			continue
		case "/skills":
			printInvocable(ctx, engine)
			continue
		}

		if _, err := runner.Chat(ctx, line); err != nil {
			switch {
			case errors.Is(err, agent.ErrAborted):
				fmt.Println("\n[aborted]")
			case errors.Is(err, agent.ErrSkillNotFound):
				fmt.Fprintln(os.Stderr, err)
			default:
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			continue
		}
		fmt.Println()
	}
	return scanner.Err()
}

func printStreamEvent(ev agent.StreamEvent) {
	switch ev.Type {
	case agent.StreamTextDelta:
		fmt.Print(ev.Content)
	case agent.StreamToolCallStart:
		fmt.Printf("\n[tool %s]\n", ev.ToolName)
	case agent.StreamToolExecution:
		fmt.Print(ev.Content)
	case agent.StreamError:
		fmt.Fprintln(os.Stderr, "\nstream error:", ev.Error)
	}
}
