package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/skilletlabs/skillet/internal/exec"
)

// ExecuteTool runs a shell command through the subprocess runtime.
type ExecuteTool struct {
	Runtime *exec.Runtime

	// Env, when set, supplies the subprocess environment per call.
	Env func() []string
}

type executeParams struct {
	Command string  `json:"command" jsonschema:"description=Shell command to execute"`
	Timeout float64 `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds"`
	Cwd     string  `json:"cwd,omitempty" jsonschema:"description=Working directory"`
}

func (t *ExecuteTool) Name() string { return "execute" }

func (t *ExecuteTool) Description() string {
	return "Run a shell command and return its combined output."
}

func (t *ExecuteTool) Schema() json.RawMessage {
	return reflectSchema(&executeParams{})
}

func (t *ExecuteTool) Execute(ctx context.Context, args json.RawMessage, onOutput func(string)) (string, error) {
	var p executeParams
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.Command) == "" {
		return "", fmt.Errorf("command is required")
	}

	opts := exec.Options{
		WorkDir:  p.Cwd,
		Timeout:  time.Duration(p.Timeout * float64(time.Second)),
		OnOutput: onOutput,
	}
	if t.Env != nil {
		opts.Env = t.Env()
	}

	result, err := t.Runtime.Execute(ctx, p.Command, opts)
	if err != nil {
		return "", err
	}
	return renderExecResult(result), nil
}

// ExecuteScriptTool runs a multi-line script through a temp file.
type ExecuteScriptTool struct {
	Runtime *exec.Runtime
	Env     func() []string
}

type executeScriptParams struct {
	Script  string  `json:"script" jsonschema:"description=Shell script source to execute"`
	Timeout float64 `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds"`
	Cwd     string  `json:"cwd,omitempty" jsonschema:"description=Working directory"`
}

func (t *ExecuteScriptTool) Name() string { return "execute_script" }

func (t *ExecuteScriptTool) Description() string {
	return "Run a multi-line shell script and return its combined output."
}

func (t *ExecuteScriptTool) Schema() json.RawMessage {
	return reflectSchema(&executeScriptParams{})
}

func (t *ExecuteScriptTool) Execute(ctx context.Context, args json.RawMessage, onOutput func(string)) (string, error) {
	var p executeScriptParams
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if strings.TrimSpace(p.Script) == "" {
		return "", fmt.Errorf("script is required")
	}

	opts := exec.Options{
		WorkDir:  p.Cwd,
		Timeout:  time.Duration(p.Timeout * float64(time.Second)),
		OnOutput: onOutput,
	}
	if t.Env != nil {
		opts.Env = t.Env()
	}

	result, err := t.Runtime.ExecuteScript(ctx, p.Script, opts)
	if err != nil {
		return "", err
	}
	return renderExecResult(result), nil
}

func renderExecResult(result *exec.Result) string {
	if result.Success {
		return result.Output
	}
	detail := result.Error
	if detail == "" {
		detail = fmt.Sprintf("exit code %d", result.ExitCode)
	}
	if result.Output == "" {
		return fmt.Sprintf("command failed: %s", detail)
	}
	return fmt.Sprintf("%s\ncommand failed: %s", result.Output, detail)
}

// imageExtensions are read back as base64 rather than text.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// ReadTool reads a file, optionally a line range.
type ReadTool struct {
	// Root, when set, resolves relative paths.
	Root string
}

type readParams struct {
	Path   string `json:"path" jsonschema:"description=File path to read"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=First line to return (1-based)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines"`
}

func (t *ReadTool) Name() string { return "read" }

func (t *ReadTool) Description() string {
	return "Read a file. Returns text, or base64 for images."
}

func (t *ReadTool) Schema() json.RawMessage {
	return reflectSchema(&readParams{})
}

func (t *ReadTool) Execute(ctx context.Context, args json.RawMessage, _ func(string)) (string, error) {
	var p readParams
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	path := t.resolve(p.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p.Path, err)
	}

	if imageExtensions[strings.ToLower(filepath.Ext(path))] {
		return base64.StdEncoding.EncodeToString(data), nil
	}

	text := string(data)
	if p.Offset <= 0 && p.Limit <= 0 {
		return text, nil
	}

	lines := strings.Split(text, "\n")
	start := 0
	if p.Offset > 0 {
		start = p.Offset - 1
	}
	if start >= len(lines) {
		return "", nil
	}
	end := len(lines)
	if p.Limit > 0 && start+p.Limit < end {
		end = start + p.Limit
	}
	return strings.Join(lines[start:end], "\n"), nil
}

func (t *ReadTool) resolve(path string) string {
	if filepath.IsAbs(path) || t.Root == "" {
		return path
	}
	return filepath.Join(t.Root, path)
}

// WriteTool writes a file, creating parent directories as needed.
type WriteTool struct {
	Root string
}

type writeParams struct {
	Path    string `json:"path" jsonschema:"description=File path to write"`
	Content string `json:"content" jsonschema:"description=Content to write"`
}

func (t *WriteTool) Name() string { return "write" }

func (t *WriteTool) Description() string {
	return "Write content to a file, replacing any existing content."
}

func (t *WriteTool) Schema() json.RawMessage {
	return reflectSchema(&writeParams{})
}

func (t *WriteTool) Execute(ctx context.Context, args json.RawMessage, _ func(string)) (string, error) {
	var p writeParams
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Path == "" {
		return "", fmt.Errorf("path is required")
	}

	path := p.Path
	if !filepath.IsAbs(path) && t.Root != "" {
		path = filepath.Join(t.Root, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", p.Path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path), nil
}

// SkillResolver loads a skill's resolved content, or runs it in a fork
// when the skill declares fork context. Provided by the runner.
type SkillResolver func(ctx context.Context, name, arguments string) (string, error)

// SkillTool loads skill content on demand.
type SkillTool struct {
	Resolve SkillResolver
}

type skillParams struct {
	Name      string `json:"name" jsonschema:"description=Skill name"`
	Arguments string `json:"arguments,omitempty" jsonschema:"description=Argument string for placeholder substitution"`
}

func (t *SkillTool) Name() string { return "skill" }

func (t *SkillTool) Description() string {
	return "Load a skill's full instructions, with arguments substituted."
}

func (t *SkillTool) Schema() json.RawMessage {
	return reflectSchema(&skillParams{})
}

func (t *SkillTool) Execute(ctx context.Context, args json.RawMessage, _ func(string)) (string, error) {
	var p skillParams
	if err := json.Unmarshal(args, &p); err != nil {
		return "", fmt.Errorf("invalid parameters: %w", err)
	}
	if p.Name == "" {
		return "", fmt.Errorf("name is required")
	}
	return t.Resolve(ctx, p.Name, p.Arguments)
}
