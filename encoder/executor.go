package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"mediajob/filtergraph"
	"mediajob/logger"
	"mediajob/metrics"
)

const (
	// recoverableExitCode is the only exit status that earns a fallback attempt.
	recoverableExitCode = 1
	maxFallbacks        = 1
)

// EncodeError is a terminal encoder failure.
type EncodeError struct {
	ExitCode  int
	Container Container
	Stderr    string
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("encoder exited with code %d (container %s)", e.ExitCode, e.Container)
	if line := lastLine(e.Stderr); line != "" {
		msg += ": " + line
	}
	return msg
}

// Attempt records one encoder invocation.
type Attempt struct {
	Container Container
	ExitCode  int
	Args      []string
}

// Outcome summarizes an Execute call.
type Outcome struct {
	Attempts []Attempt
}

// Container returns the container used by the last attempt.
func (o Outcome) Container() Container {
	if len(o.Attempts) == 0 {
		return ContainerDefault
	}
	return o.Attempts[len(o.Attempts)-1].Container
}

// Executor runs encode requests and applies the container fallback.
type Executor struct {
	Binary string
	Assets filtergraph.Assets
	Runner Runner
}

// NewExecutor returns an Executor backed by a child-process runner.
func NewExecutor(binary string, assets filtergraph.Assets, verbose bool) *Executor {
	return &Executor{Binary: binary, Assets: assets, Runner: ExecRunner{Verbose: verbose}}
}

// Execute runs req starting with the default container. Exit code 1 on the
// default container removes any partial output and retries once with the
// fallback container; the fallback attempt is final whatever its result.
// Any other non-zero exit is returned as *EncodeError without retrying.
//
// A nil error does not guarantee an output file; callers check VerifyOutput.
func (e *Executor) Execute(ctx context.Context, req EncodeRequest) (Outcome, error) {
	var out Outcome
	req.Container = ContainerDefault
	fallbacks := 0

	for {
		args, err := BuildEncodeArgs(e.Binary, req, e.Assets)
		if err != nil {
			return out, err
		}

		logger.Infof("encode attempt %d (container %s): %s", len(out.Attempts)+1, req.Container, FormatCommand(args))
		metrics.EncodeAttempts.WithLabelValues(req.Container.String()).Inc()

		res := e.Runner.Run(ctx, args)
		out.Attempts = append(out.Attempts, Attempt{Container: req.Container, ExitCode: res.ExitCode, Args: args})

		if res.Err != nil {
			return out, fmt.Errorf("run encoder: %w", res.Err)
		}
		if res.ExitCode == 0 {
			return out, nil
		}

		if res.ExitCode == recoverableExitCode && req.Container == ContainerDefault && fallbacks < maxFallbacks {
			fallbacks++
			logger.Warnf("encoder exited with code %d, retrying with %s container", res.ExitCode, fallbackFormat)
			metrics.EncodeFallbacks.Inc()
			if err := removePartial(req.Output); err != nil {
				return out, err
			}
			req.Container = ContainerFallback
			continue
		}

		return out, &EncodeError{ExitCode: res.ExitCode, Container: req.Container, Stderr: res.Stderr}
	}
}

// RunOnce runs a prebuilt command with no retry.
func (e *Executor) RunOnce(ctx context.Context, args []string) error {
	logger.Infof("encoder command: %s", FormatCommand(args))
	metrics.EncodeAttempts.WithLabelValues(ContainerDefault.String()).Inc()

	res := e.Runner.Run(ctx, args)
	if res.Err != nil {
		return fmt.Errorf("run encoder: %w", res.Err)
	}
	if res.ExitCode != 0 {
		return &EncodeError{ExitCode: res.ExitCode, Container: ContainerDefault, Stderr: res.Stderr}
	}
	return nil
}

// VerifyOutput returns ErrNoOutput unless path is an existing regular file.
func VerifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNoOutput
		}
		return fmt.Errorf("stat output %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrNoOutput, path)
	}
	return nil
}

func removePartial(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove partial output %s: %w", path, err)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
