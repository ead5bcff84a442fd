package encoder

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"

	"mediajob/logger"
)

// stderrTail bounds how much encoder stderr is kept for error messages.
const stderrTail = 8 << 10

// RunResult holds the outcome of a single encoder invocation.
type RunResult struct {
	ExitCode int
	Stderr   string
	// Err is set when the process could not be started or was interrupted,
	// i.e. when no meaningful exit code exists.
	Err error
}

// Runner runs an argument vector (binary first) to completion.
type Runner interface {
	Run(ctx context.Context, args []string) RunResult
}

// ExecRunner runs the encoder as a child process without a shell.
type ExecRunner struct {
	// Verbose streams stderr into the debug log as it arrives.
	Verbose bool
}

func (r ExecRunner) Run(ctx context.Context, args []string) RunResult {
	if len(args) == 0 {
		return RunResult{ExitCode: -1, Err: errors.New("empty command")}
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	tail := &tailBuffer{max: stderrTail}
	if r.Verbose {
		cmd.Stderr = io.MultiWriter(tail, logger.Writer(logger.DEBUG, "encoder: "))
	} else {
		cmd.Stderr = tail
	}

	err := cmd.Run()
	res := RunResult{Stderr: tail.String()}
	if err == nil {
		return res
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		res.Err = ctxErr
		return res
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res
	}
	res.ExitCode = -1
	res.Err = err
	return res
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
