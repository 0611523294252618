package jobs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

// RunSpec describes one consolidator invocation.
type RunSpec struct {
	Command []string
	Dir     string
	Env     map[string]string
}

// Runner executes the consolidator and streams its combined output line by
// line to onLine, in order. It returns once the process and the stream are done.
type Runner interface {
	Run(ctx context.Context, spec RunSpec, onLine func(string)) error
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "process exited with code " + strconv.Itoa(e.Code)
}

// ExecRunner runs the consolidator as a child process.
type ExecRunner struct {
	// WaitDelay bounds how long output is drained after the process is killed.
	WaitDelay time.Duration
}

func (r ExecRunner) Run(ctx context.Context, spec RunSpec, onLine func(string)) error {
	if len(spec.Command) == 0 {
		return errors.New("runner: empty command")
	}
	cmd := exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, "PYTHONIOENCODING=utf-8", "PYTHONUTF8=1")
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("runner: start: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, pr)
	}()

	waitErr := cmd.Wait()
	pw.Close()
	<-done

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("runner: wait: %w", waitErr)
	}
	return nil
}
