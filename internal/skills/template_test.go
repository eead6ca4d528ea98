package skills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func staticEnv(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestExpandPlaceholdersArguments(t *testing.T) {
	out := ExpandPlaceholders("review: $ARGUMENTS", "src/main.go --fast", staticEnv(nil))
	if out != "review: src/main.go --fast" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandPlaceholdersPositionals(t *testing.T) {
	out := ExpandPlaceholders("first=$1 second=$2 third=$3", "alpha beta", staticEnv(nil))
	if out != "first=alpha second=beta third=" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandPlaceholdersEnv(t *testing.T) {
	env := staticEnv(map[string]string{"REGION": "us-east-1"})
	out := ExpandPlaceholders("deploy to ${REGION}, key ${MISSING_KEY}", "", env)
	if out != "deploy to us-east-1, key " {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandInlineCommands(t *testing.T) {
	run := func(ctx context.Context, command string) (string, error) {
		if command == "fail" {
			return "", errors.New("boom")
		}
		return "out:" + command + "\n", nil
	}

	out := ExpandInlineCommands(context.Background(), "a=!`echo a` b=!`fail` done", run)
	if out != "a=out:echo a b=[command failed: fail] done" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandInlineCommandsLimit(t *testing.T) {
	var calls int
	run := func(ctx context.Context, command string) (string, error) {
		calls++
		return "x", nil
	}

	var b strings.Builder
	for i := 0; i < maxInlineCommands+2; i++ {
		fmt.Fprintf(&b, "!`cmd%d` ", i)
	}

	out := ExpandInlineCommands(context.Background(), b.String(), run)
	if calls != maxInlineCommands {
		t.Errorf("expected %d executions, got %d", maxInlineCommands, calls)
	}
	if strings.Count(out, "command skipped") != 2 {
		t.Errorf("expected 2 skip markers: %q", out)
	}
}

func TestExpandInlineCommandsNilRunner(t *testing.T) {
	content := "untouched !`cmd`"
	if out := ExpandInlineCommands(context.Background(), content, nil); out != content {
		t.Errorf("nil runner should leave content intact, got %q", out)
	}
}

func TestResolveContent(t *testing.T) {
	skill := &Skill{
		Name:    "combo",
		Content: "args=$ARGUMENTS first=$1 cmd=!`date`",
	}
	run := func(ctx context.Context, command string) (string, error) {
		return "2026-08-24", nil
	}

	out := ResolveContent(context.Background(), skill, "one two", run)
	if out != "args=one two first=one cmd=2026-08-24" {
		t.Errorf("unexpected output: %q", out)
	}
}
