package toolexec

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Command describes one external tool invocation.
type Command struct {
	Path string
	Args []string
	Env  []string // appended to the inherited environment
	Dir  string
}

// Result captures whatever the process wrote before exiting.
type Result struct {
	Stdout string
	Stderr string
}

// StderrLine returns the first non-empty stderr line, for error
// messages that quote the tool.
func (r Result) StderrLine() string {
	s := strings.TrimSpace(r.Stderr)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return "(no output)"
	}
	return s
}

// Runner executes external tools. The production implementation
// spawns real processes; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type runner struct {
	waitDelay time.Duration
}

// New returns a Runner that puts every command in its own process
// group and kills the whole group when the context ends.
func New() Runner {
	return &runner{waitDelay: 3 * time.Second}
}

func (r *runner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// The office suite forks helper processes; signalling only the
	// direct child leaves them running and holding workspace files
	// open. Setpgid gives the invocation its own group, and cancel
	// kills the group as a unit.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = r.waitDelay

	err := cmd.Run()
	return Result{Stdout: stdout.String(), Stderr: stderr.String()}, err
}
