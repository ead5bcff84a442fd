package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"mediajob/filtergraph"
)

// DeclareInputs decides the input order for a request: primary video, audio,
// then the image of each enabled watermark in compositing order. It returns
// the paths in -i order and the index layout the graph builder must use.
func DeclareInputs(req EncodeRequest, assets filtergraph.Assets) ([]string, filtergraph.Inputs) {
	paths := []string{req.InputVideo, req.InputAudio}
	layout := filtergraph.Inputs{
		Video:      0,
		Audio:      1,
		Watermarks: make(map[filtergraph.WatermarkKind]int),
	}
	for _, kind := range req.Features.Watermarks() {
		layout.Watermarks[kind] = len(paths)
		paths = append(paths, assets.Watermarks[kind].Source)
	}
	return paths, layout
}

// BuildEncodeArgs synthesizes the full argument vector (binary first) for an
// encode request. The result is a pure function of its arguments.
func BuildEncodeArgs(binary string, req EncodeRequest, assets filtergraph.Assets) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inputs, layout := DeclareInputs(req, assets)
	graph, err := filtergraph.Build(req.Features, layout, assets, req.Subtitles)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	args := make([]string, 0, 24)
	args = append(args, binary)
	args = append(args, hwaccelArgs()...)
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	if graph.UsesFilterGraph {
		args = append(args, "-filter_complex", graph.String())
	}
	args = append(args, "-map", graph.VideoMap)

	if req.Container == ContainerFallback {
		args = append(args, "-f", fallbackFormat)
	}

	args = append(args,
		"-map", graph.AudioMap,
		"-c:v", videoCodec,
		"-c:a", audioCodec,
		req.Output,
	)
	return args, nil
}

// DownsampleSpec is the target resolution of a downsample job. The width is
// always derived for 16:9, whatever the source aspect ratio.
type DownsampleSpec struct {
	Height int
}

// MaxHeight is the tallest downsample target accepted (8K).
const MaxHeight = 8640

// Width returns floor(Height*16/9).
func (s DownsampleSpec) Width() int {
	return s.Height * 16 / 9
}

// ParseResolution accepts "480", "480p" or an empty string (240).
func ParseResolution(s string) (DownsampleSpec, error) {
	s = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "p")
	if s == "" {
		return DownsampleSpec{Height: 240}, nil
	}
	h, err := strconv.Atoi(s)
	if err != nil || h <= 0 || h > MaxHeight {
		return DownsampleSpec{}, fmt.Errorf("%w: resolution %q", ErrInvalidRequest, s)
	}
	return DownsampleSpec{Height: h}, nil
}

// BuildDownsampleArgs synthesizes a single-scale re-encode.
func BuildDownsampleArgs(binary, input, output string, spec DownsampleSpec) ([]string, error) {
	if input == "" || output == "" {
		return nil, fmt.Errorf("%w: downsample needs input and output paths", ErrInvalidRequest)
	}
	if spec.Height <= 0 || spec.Height > MaxHeight {
		return nil, fmt.Errorf("%w: height %d", ErrInvalidRequest, spec.Height)
	}

	args := []string{binary}
	args = append(args, hwaccelArgs()...)
	args = append(args,
		"-i", input,
		"-vcodec", videoCodec,
		"-vf", fmt.Sprintf("scale=%d:%d", spec.Width(), spec.Height),
		"-crf", "28",
		output,
	)
	return args, nil
}

func hwaccelArgs() []string {
	return []string{"-hwaccel", hwaccel, "-hwaccel_output_format", hwaccelOutputFormat}
}

// FormatCommand renders args as a shell-quoted line for logging. Commands are
// never executed through a shell.
func FormatCommand(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = shellQuote(a)
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("@%+=:,./-_", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
