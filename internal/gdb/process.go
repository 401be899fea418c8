package gdb

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// SpawnConfig describes how to start gdb.
type SpawnConfig struct {
	// Path is the gdb executable. Empty means "gdb" from PATH.
	Path string
	// Args are extra arguments placed before the MI interpreter flags.
	Args []string
	Dir  string
	Env  []string

	Client Config
}

// Spawn starts gdb with the MI interpreter on stdio pipes and returns a client
// driving it. gdb's stderr is passed through to ours.
func Spawn(ctx context.Context, cfg SpawnConfig) (*Client, error) {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}

	args := append([]string{}, cfg.Args...)
	args = append(args, "--interpreter=mi2", "--quiet", "--nx")

	cmd := exec.CommandContext(ctx, path, args...) //nolint:gosec // gdb path comes from trusted configuration
	cmd.Env = os.Environ()
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Env, cfg.Env...)
	}
	cmd.Dir = cfg.Dir

	// Set platform-specific process attributes (process_unix.go / process_windows.go)
	setProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to start gdb: %w", err)
	}

	c := NewClient(stdin, stdout, cfg.Client)
	c.cmd = cmd
	c.exited = make(chan struct{})
	c.log.Info("gdb started", "path", path, "pid", cmd.Process.Pid)

	// Wait must not run before all reads from stdout have completed.
	go func() {
		<-c.done
		if err := cmd.Wait(); err != nil {
			c.log.Info("gdb exited", "pid", cmd.Process.Pid, "err", err.Error())
		} else {
			c.log.Info("gdb exited", "pid", cmd.Process.Pid)
		}
		close(c.exited)
	}()

	return c, nil
}

// PID returns the process id of a spawned gdb, or 0.
func (c *Client) PID() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Shutdown asks gdb to exit, waits up to grace for its output to end and
// kills the process group if it has not. The client is closed afterwards.
func (c *Client) Shutdown(grace time.Duration) error {
	if err := c.Exit(); err != nil {
		c.log.V(1).Info("gdb-exit failed", "err", err.Error())
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	var killErr error
	select {
	case <-c.done:
	case <-timer.C:
		if c.cmd != nil {
			killErr = killProcessGroup(c.PID(), c.cmd)
		}
	}

	closeErr := c.Close()
	if c.exited != nil {
		select {
		case <-c.exited:
		case <-time.After(grace):
		}
	}
	if killErr != nil {
		return fmt.Errorf("failed to kill gdb: %w", killErr)
	}
	return closeErr
}
