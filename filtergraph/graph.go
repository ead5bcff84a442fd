package filtergraph

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMissingInput is returned when a stage is enabled but its input was not declared.
var ErrMissingInput = errors.New("filtergraph: input not declared")

// rawStream matches input stream specifiers such as "0:v", "1:a" or "2".
var rawStream = regexp.MustCompile(`^\d+(:[vas](:\d+)?)?$`)

// Graph is the result of Build.
type Graph struct {
	Fragments       []Fragment
	VideoMap        string // -map argument for video
	AudioMap        string // -map argument for audio
	UsesFilterGraph bool
}

// String joins the fragments into a single -filter_complex expression.
func (g Graph) String() string {
	parts := make([]string, len(g.Fragments))
	for i, f := range g.Fragments {
		parts[i] = f.String()
	}
	return strings.Join(parts, ";")
}

// Terminal returns the output label of the last fragment, or "" when the graph is empty.
func (g Graph) Terminal() string {
	if len(g.Fragments) == 0 {
		return ""
	}
	return g.Fragments[len(g.Fragments)-1].Output
}

// Count returns how many fragments use the named filter.
func (g Graph) Count(filter string) int {
	n := 0
	for _, f := range g.Fragments {
		if f.Filter == filter {
			n++
		}
	}
	return n
}

// labeler hands out labels from a per-build counter so no label repeats.
type labeler struct{ n int }

func (l *labeler) next(prefix string) string {
	l.n++
	return fmt.Sprintf("%s%d", prefix, l.n)
}

// Build assembles the graph for the enabled features. subtitlePath is only
// read when f.Subtitles is set.
func Build(f Features, in Inputs, assets Assets, subtitlePath string) (Graph, error) {
	g := Graph{
		VideoMap: fmt.Sprintf("%d:v", in.Video),
		AudioMap: fmt.Sprintf("%d:a", in.Audio),
	}
	if !f.UsesFilterGraph() {
		return g, nil
	}

	var lb labeler
	running := fmt.Sprintf("%d:v", in.Video)

	for _, kind := range f.Watermarks() {
		idx, ok := in.Watermarks[kind]
		if !ok {
			return Graph{}, fmt.Errorf("%w: %s watermark", ErrMissingInput, kind)
		}
		wm, ok := assets.Watermarks[kind]
		if !ok {
			return Graph{}, fmt.Errorf("filtergraph: %s watermark not registered", kind)
		}

		scaled := lb.next("wm")
		g.Fragments = append(g.Fragments, Fragment{
			Inputs: []string{fmt.Sprintf("%d:v", idx)},
			Filter: "scale",
			Params: wm.Scale,
			Output: scaled,
		})

		out := lb.next("v")
		g.Fragments = append(g.Fragments, Fragment{
			Inputs: []string{running, scaled},
			Filter: "overlay",
			Params: wm.Position,
			Output: out,
		})
		running = out
	}

	if f.Subtitles {
		if subtitlePath == "" {
			return Graph{}, fmt.Errorf("%w: subtitles", ErrMissingInput)
		}
		g.Fragments = append(g.Fragments, Fragment{
			Inputs: []string{running},
			Filter: "ass",
			Params: EscapeValue(subtitlePath) + ":fontsdir=" + EscapeValue(assets.FontsDir),
			Output: lb.next("sub"),
		})
	}

	g.UsesFilterGraph = true
	g.VideoMap = "[" + g.Terminal() + "]"
	return g, nil
}

// Validate checks the label invariants: every consumed label is raw or was
// produced earlier, no label is produced twice, and exactly one produced label
// is left unconsumed and mapped.
func (g Graph) Validate() error {
	if len(g.Fragments) == 0 {
		if g.UsesFilterGraph {
			return errors.New("filtergraph: empty graph marked as used")
		}
		if !rawStream.MatchString(g.VideoMap) {
			return fmt.Errorf("filtergraph: video map %q is not a raw stream", g.VideoMap)
		}
		return nil
	}

	produced := make(map[string]int, len(g.Fragments))
	consumed := make(map[string]bool)
	for i, f := range g.Fragments {
		for _, label := range f.Inputs {
			if rawStream.MatchString(label) {
				continue
			}
			at, ok := produced[label]
			if !ok || at >= i {
				return fmt.Errorf("filtergraph: fragment %d consumes %q before it is produced", i, label)
			}
			consumed[label] = true
		}
		if f.Output == "" || rawStream.MatchString(f.Output) {
			return fmt.Errorf("filtergraph: fragment %d has invalid output %q", i, f.Output)
		}
		if _, dup := produced[f.Output]; dup {
			return fmt.Errorf("filtergraph: label %q produced twice", f.Output)
		}
		produced[f.Output] = i
	}

	var dangling []string
	for label := range produced {
		if !consumed[label] {
			dangling = append(dangling, label)
		}
	}
	if len(dangling) != 1 {
		return fmt.Errorf("filtergraph: expected one terminal label, found %v", dangling)
	}
	if want := "[" + dangling[0] + "]"; g.VideoMap != want {
		return fmt.Errorf("filtergraph: video map %q does not target terminal %s", g.VideoMap, want)
	}
	return nil
}
