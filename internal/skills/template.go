package skills

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	// commandBudget caps each inline !`cmd` expansion.
	commandBudget = 10 * time.Second

	// maxInlineCommands caps the number of !`cmd` expansions per content.
	maxInlineCommands = 8
)

// CommandRunner executes an inline command and returns its stdout.
// The implementation must honour the context deadline.
type CommandRunner func(ctx context.Context, command string) (string, error)

var (
	envVarRe     = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)
	positionalRe = regexp.MustCompile(`\$([1-9])`)
	inlineCmdRe  = regexp.MustCompile("!`([^`]+)`")
)

// ExpandPlaceholders applies the pure placeholder substitutions to skill
// content: $ARGUMENTS becomes the entire argument string, $1..$9 the
// whitespace-split positionals (empty when absent), and ${ENV_VAR} the
// environment lookup (empty when missing).
func ExpandPlaceholders(content, arguments string, lookupEnv func(string) (string, bool)) string {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	positionals := strings.Fields(arguments)

	out := strings.ReplaceAll(content, "$ARGUMENTS", arguments)

	out = positionalRe.ReplaceAllStringFunc(out, func(m string) string {
		idx := int(m[1] - '1')
		if idx < len(positionals) {
			return positionals[idx]
		}
		return ""
	})

	out = envVarRe.ReplaceAllStringFunc(out, func(m string) string {
		name := envVarRe.FindStringSubmatch(m)[1]
		if v, ok := lookupEnv(name); ok {
			return v
		}
		return ""
	})

	return out
}

// ExpandInlineCommands replaces each !`cmd` occurrence with the command's
// stdout, trimmed of trailing newlines. Each command gets a 10 second
// budget and at most 8 commands are executed; anything beyond that, and any
// command that fails or times out, is replaced by a deterministic error
// marker so the model receives stable text. A substitution failure never
// fails the expansion.
func ExpandInlineCommands(ctx context.Context, content string, run CommandRunner) string {
	if run == nil {
		return content
	}

	executed := 0
	return inlineCmdRe.ReplaceAllStringFunc(content, func(m string) string {
		command := inlineCmdRe.FindStringSubmatch(m)[1]
		if executed >= maxInlineCommands {
			return fmt.Sprintf("[command skipped: limit of %d inline commands reached]", maxInlineCommands)
		}
		executed++

		cmdCtx, cancel := context.WithTimeout(ctx, commandBudget)
		defer cancel()

		out, err := run(cmdCtx, command)
		if err != nil {
			return fmt.Sprintf("[command failed: %s]", command)
		}
		return strings.TrimRight(out, "\n")
	})
}

// ResolveContent fully resolves a skill's content for an invocation:
// placeholder substitution followed by inline command expansion.
func ResolveContent(ctx context.Context, skill *Skill, arguments string, run CommandRunner) string {
	out := ExpandPlaceholders(skill.Content, arguments, nil)
	return ExpandInlineCommands(ctx, out, run)
}
