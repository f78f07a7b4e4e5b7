package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// CmdFactory creates the *exec.Cmd for a transfer. Tests override this to
// run scripted output instead of real rsync.
type CmdFactory func(ctx context.Context, name string, args ...string) *exec.Cmd

// Invoker launches the external transfer process and streams its output
// line-by-line as it arrives, so downstream consumers react in real time
// instead of waiting for the process to exit.
type Invoker struct {
	cmdFactory CmdFactory
}

func NewInvoker() *Invoker {
	return &Invoker{cmdFactory: exec.CommandContext}
}

// Run starts the command and feeds every stdout and stderr line to the
// callbacks. It blocks until the process exits and returns its exit code.
// A nonzero exit is reported through the exit code, not the error; the
// error is reserved for failures to start or stream the process.
func (inv *Invoker) Run(ctx context.Context, cmd *TransferCommand, onStdout, onStderr func(line string)) (int, error) {
	proc := inv.cmdFactory(ctx, cmd.Path, cmd.Args...)

	stdout, err := proc.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := proc.StderrPipe()
	if err != nil {
		return -1, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	g := &errgroup.Group{}
	g.Go(func() error { return scanLines(stdout, onStdout) })
	g.Go(func() error { return scanLines(stderr, onStderr) })

	streamErr := g.Wait()
	waitErr := proc.Wait()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("wait for %s: %w", cmd.Path, waitErr)
	}
	if streamErr != nil {
		return -1, fmt.Errorf("stream %s output: %w", cmd.Path, streamErr)
	}
	return 0, nil
}

func scanLines(r interface{ Read([]byte) (int, error) }, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	// Long paths can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	return scanner.Err()
}
