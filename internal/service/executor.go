package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/synadia-labs/cli-harness/internal/harness"
)

const (
	defaultShell = "sh"
	// waitDelay bounds how long output is drained after a process was
	// killed while a backgrounded child still holds its pipes.
	waitDelay = 2 * time.Second
)

type Executor interface {
	// pong
	Ping() string

	// get the environment variables for the host
	GetEnvironment() map[string]string

	// run a command on the host
	RunCommand(ctx context.Context, req harness.Request) *harness.Envelope
}

type ExecutorOptions struct {
	// Binary is prepended to non-raw commands.
	Binary string
	// Shell runs raw commands with "-c".
	Shell   string
	Timeout time.Duration
}

func NewExecutor(opts ExecutorOptions) Executor {
	if opts.Shell == "" {
		opts.Shell = defaultShell
	}
	return &executor{opts: opts}
}

type executor struct {
	opts ExecutorOptions
}

func (e *executor) Ping() string {
	return "PONG"
}

func (e *executor) GetEnvironment() map[string]string {
	environ := map[string]string{}
	for _, env := range os.Environ() {
		key, val, _ := strings.Cut(env, "=")
		environ[key] = val
	}
	return environ
}

// RunCommand always answers with an envelope. Status is OK when the command
// was started, whatever its exit code, and ERROR when it could not be
// parsed, started or finished in time.
func (e *executor) RunCommand(ctx context.Context, req harness.Request) *harness.Envelope {
	if strings.TrimSpace(req.Command) == "" {
		return errorEnvelope(fmt.Errorf("command is required"), "")
	}

	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	var commands []*exec.Cmd
	if req.Raw {
		commands = []*exec.Cmd{exec.CommandContext(ctx, e.opts.Shell, "-c", req.Command)}
	} else {
		var err error
		commands, err = e.parse(ctx, req.Command)
		if err != nil {
			return errorEnvelope(err, "")
		}
	}

	if len(req.Inputs) > 0 {
		commands[0].Stdin = strings.NewReader(strings.Join(req.Inputs, "\n") + "\n")
	}

	output := &outputBuffer{}
	code, err := pipeCommands(commands, output)
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && e.opts.Timeout > 0 {
			return errorEnvelope(fmt.Errorf("command timed out after %s", e.opts.Timeout), output.String())
		}
		return errorEnvelope(fmt.Errorf("command aborted: %s", ctxErr), output.String())
	}
	if err != nil {
		return errorEnvelope(err, output.String())
	}

	return &harness.Envelope{
		Status:   harness.StatusOK,
		ExitCode: code,
		Message:  output.String(),
	}
}

func errorEnvelope(err error, output string) *harness.Envelope {
	message := err.Error()
	if output != "" {
		message = output + "\n" + message
	}
	return &harness.Envelope{
		Status:   harness.StatusError,
		ExitCode: -1,
		Message:  message,
	}
}

// parse splits a non-raw command into a pipeline of processes. The first
// process runs the configured binary.
func (e *executor) parse(ctx context.Context, command string) ([]*exec.Cmd, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("error parsing command \"%s\": %s", command, err)
	}

	if e.opts.Binary != "" {
		args = append([]string{e.opts.Binary}, args...)
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("no command provided")
	}

	// Split the command into piped commands
	commands := []*exec.Cmd{}
	for {
		idx := slices.Index(args, "|")
		segment := args
		if idx != -1 {
			segment = args[:idx]
		}
		if len(segment) == 0 {
			return nil, fmt.Errorf("error parsing command \"%s\": empty pipeline stage", command)
		}
		commands = append(commands, exec.CommandContext(ctx, segment[0], segment[1:]...))
		if idx == -1 {
			break
		}
		args = args[idx+1:]
	}

	return commands, nil
}

// Run a series of piped commands and return the exit code of the last one.
func pipeCommands(commands []*exec.Cmd, output io.Writer) (int, error) {
	var pipes []*os.File
	closePipes := func() {
		for _, f := range pipes {
			f.Close()
		}
		pipes = nil
	}
	defer closePipes()

	started := 0
	abort := func(err error) (int, error) {
		closePipes()
		for _, cmd := range commands[:started] {
			cmd.Process.Kill()
			cmd.Wait()
		}
		return -1, err
	}

	for i, cmd := range commands {
		// always send stderr to the combined output
		cmd.Stderr = output
		cmd.WaitDelay = waitDelay

		// the last command writes to the output, the others to the next command
		if i == len(commands)-1 {
			cmd.Stdout = output
		} else {
			r, w, err := os.Pipe()
			if err != nil {
				return abort(fmt.Errorf("error creating pipe: %s", err))
			}
			pipes = append(pipes, r, w)
			cmd.Stdout = w
			commands[i+1].Stdin = r
		}

		if err := cmd.Start(); err != nil {
			return abort(fmt.Errorf("error starting command \"%s\": %s", strings.Join(cmd.Args, " "), err))
		}
		started++
	}

	// the children hold their own copies of the pipe ends
	closePipes()

	code := 0
	var waitErr error
	for i, cmd := range commands {
		err := cmd.Wait()
		// a background child still holding the output after the process
		// exited is not a failure of the command itself
		if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
			err = nil
		}
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) && waitErr == nil {
			waitErr = fmt.Errorf("error running command \"%s\": %s", strings.Join(cmd.Args, " "), err)
		}
		if i == len(commands)-1 && cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
	}
	return code, waitErr
}

// outputBuffer collects stdout and stderr of every process in a pipeline.
type outputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *outputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *outputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
