package encoder

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"

	"mediajob/filtergraph"
	"mediajob/logger"
)

// Fixed codec selection. Not configurable per job.
const (
	hwaccel             = "cuvid"
	hwaccelOutputFormat = "cuda"
	videoCodec          = "h264_nvenc"
	audioCodec          = "aac"
	fallbackFormat      = "matroska"
)

var (
	ErrInvalidRequest = errors.New("invalid encode request")
	// ErrNoOutput means the encoder exited without leaving an output file.
	ErrNoOutput = errors.New("video was unable to encode")
)

// Container selects the output wrapper.
type Container int

const (
	// ContainerDefault lets the encoder infer the format from the output extension.
	ContainerDefault Container = iota
	// ContainerFallback forces matroska.
	ContainerFallback
)

func (c Container) String() string {
	switch c {
	case ContainerDefault:
		return "default"
	case ContainerFallback:
		return fallbackFormat
	default:
		return "unknown"
	}
}

// EncodeRequest is everything needed to synthesize one encode command.
type EncodeRequest struct {
	InputVideo string
	InputAudio string
	Subtitles  string // set iff Features.Subtitles
	Output     string
	Features   filtergraph.Features
	Container  Container
}

// Validate enforces the request invariants before any command is built.
func (r EncodeRequest) Validate() error {
	switch {
	case r.InputVideo == "":
		return fmt.Errorf("%w: missing input video", ErrInvalidRequest)
	case r.InputAudio == "":
		return fmt.Errorf("%w: missing input audio", ErrInvalidRequest)
	case r.Output == "":
		return fmt.Errorf("%w: missing output path", ErrInvalidRequest)
	case r.Features.Subtitles && r.Subtitles == "":
		return fmt.Errorf("%w: subtitles enabled without a subtitle file", ErrInvalidRequest)
	case !r.Features.Subtitles && r.Subtitles != "":
		return fmt.Errorf("%w: subtitle file given but subtitles disabled", ErrInvalidRequest)
	}
	return nil
}

// CheckBinary verifies the encoder binary can be executed. Absolute paths are
// checked in place; bare names are resolved through PATH.
func CheckBinary(path string) (string, error) {
	resolved, err := exec.LookPath(path)
	if err != nil {
		logger.Warnf("encoder binary %s not found: %v", path, err)
		return "", fmt.Errorf("encoder binary %s: %w", path, err)
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	logger.Debugf("encoder binary resolved to %s", resolved)
	return resolved, nil
}
