// Package exec runs tool subprocesses with streaming output, bounded
// capture, and graceful termination.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	osexec "os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxOutputChars caps captured subprocess output.
	MaxOutputChars = 100000

	// DefaultTimeout bounds a command when the caller sets none.
	DefaultTimeout = 120 * time.Second

	// killGrace is how long a process gets between SIGTERM and SIGKILL.
	killGrace = 2 * time.Second

	// TruncationMarker is appended when output exceeds MaxOutputChars.
	TruncationMarker = "\n... [output truncated]"
)

// Result is the outcome of a subprocess run.
type Result struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	ExitCode   int    `json:"exit_code"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// Options configures a single run.
type Options struct {
	// WorkDir is the working directory. Empty means the runtime default.
	WorkDir string

	// Env is the full subprocess environment in os.Environ form.
	// Nil inherits the host environment.
	Env []string

	// Timeout bounds the run. Zero means DefaultTimeout.
	Timeout time.Duration

	// OnOutput, when set, receives combined stdout and stderr as it
	// arrives, flushed per line or every 4KiB, whichever comes first.
	OnOutput func(chunk string)
}

// Runtime executes shell commands and script files. All commands run under
// /bin/sh -c in their own process group so termination reaches children.
type Runtime struct {
	workDir string
	logger  *slog.Logger

	mu     sync.Mutex
	active map[string]*osexec.Cmd
}

// NewRuntime creates a runtime rooted at workDir.
func NewRuntime(workDir string) *Runtime {
	return &Runtime{
		workDir: workDir,
		logger:  slog.Default().With("component", "exec"),
		active:  make(map[string]*osexec.Cmd),
	}
}

// Execute runs a shell command and captures its combined output. The
// command is terminated with SIGTERM on timeout or context cancellation
// and killed if it has not exited after a short grace period. Execute
// returns an error only for setup failures; command failures are reported
// in the Result.
func (r *Runtime) Execute(ctx context.Context, command string, opts Options) (*Result, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	return r.run(ctx, []string{"-c", command}, opts)
}

// ExecuteScript writes source to a private temp file and runs it with
// /bin/sh. The file is removed when the run completes.
func (r *Runtime) ExecuteScript(ctx context.Context, source string, opts Options) (*Result, error) {
	if source == "" {
		return nil, fmt.Errorf("script source is required")
	}

	file, err := os.CreateTemp("", "skillet-script-*.sh")
	if err != nil {
		return nil, fmt.Errorf("create script file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.WriteString(source); err != nil {
		file.Close()
		return nil, fmt.Errorf("write script file: %w", err)
	}
	if err := file.Chmod(0o700); err != nil {
		file.Close()
		return nil, fmt.Errorf("chmod script file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close script file: %w", err)
	}

	return r.run(ctx, []string{file.Name()}, opts)
}

// ActiveCount returns the number of running subprocesses.
func (r *Runtime) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// KillAll terminates every active subprocess. Used when a chat is aborted.
func (r *Runtime) KillAll() {
	r.mu.Lock()
	cmds := make([]*osexec.Cmd, 0, len(r.active))
	for _, cmd := range r.active {
		cmds = append(cmds, cmd)
	}
	r.mu.Unlock()

	for _, cmd := range cmds {
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
	}
}

func (r *Runtime) run(ctx context.Context, args []string, opts Options) (*Result, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(runCtx, "/bin/sh", args...)
	cmd.Dir = opts.WorkDir
	if cmd.Dir == "" {
		cmd.Dir = r.workDir
	}
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// SIGTERM first, the whole process group; WaitDelay escalates to
	// SIGKILL if the group ignores it.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	out := newStreamBuffer(MaxOutputChars, opts.OnOutput)
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start command: %w", err)
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.active[id] = cmd
	r.mu.Unlock()

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()

	out.Flush()

	result := &Result{
		Success:    err == nil,
		Output:     out.String(),
		ExitCode:   exitCode(err),
		DurationMs: time.Since(start).Milliseconds(),
		Truncated:  out.Truncated(),
	}
	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		result.Error = fmt.Sprintf("timed out after %s", timeout)
	case ctx.Err() == context.Canceled:
		result.Error = "aborted"
	case err != nil:
		result.Error = err.Error()
	}

	if result.Error != "" {
		r.logger.Debug("command finished with error",
			"exit_code", result.ExitCode, "error", result.Error)
	}
	return result, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*osexec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
