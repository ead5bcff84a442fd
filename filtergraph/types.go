package filtergraph

import (
	"path/filepath"
	"strings"
)

// Features is the set of independent toggles for one encode job.
type Features struct {
	Subtitles bool
	Watermark bool
	// Sub-flags; ignored unless Watermark is set.
	PrimaryWatermark   bool
	SecondaryWatermark bool
}

// Watermarks returns the enabled overlays in compositing order.
func (f Features) Watermarks() []WatermarkKind {
	if !f.Watermark {
		return nil
	}
	var kinds []WatermarkKind
	if f.PrimaryWatermark {
		kinds = append(kinds, Logo)
	}
	if f.SecondaryWatermark {
		kinds = append(kinds, Notice)
	}
	return kinds
}

// UsesFilterGraph reports whether any fragment will be emitted.
func (f Features) UsesFilterGraph() bool {
	return f.Subtitles || len(f.Watermarks()) > 0
}

// WatermarkKind identifies one of the pre-registered overlays.
type WatermarkKind int

const (
	Logo   WatermarkKind = iota // primary
	Notice                      // secondary
)

func (k WatermarkKind) String() string {
	switch k {
	case Logo:
		return "logo"
	case Notice:
		return "notice"
	default:
		return "unknown"
	}
}

// Watermark describes an overlay image and where it lands on the frame.
type Watermark struct {
	Kind     WatermarkKind
	Source   string
	Scale    string // scale filter arguments applied to the image
	Position string // overlay x:y expression
}

// Assets are the read-only resources shared by every job: the two watermark
// images and the fonts directory used by subtitle burn-in.
type Assets struct {
	Watermarks map[WatermarkKind]Watermark
	FontsDir   string
}

// DefaultAssets registers the fixed watermark set under dir.
func DefaultAssets(dir string) Assets {
	fonts := dir
	if !strings.HasSuffix(fonts, "/") {
		fonts += "/"
	}
	return Assets{
		Watermarks: map[WatermarkKind]Watermark{
			Logo: {
				Kind:     Logo,
				Source:   filepath.Join(dir, "logo.png"),
				Scale:    "-1:96",
				Position: "main_w-overlay_w-32:32",
			},
			Notice: {
				Kind:     Notice,
				Source:   filepath.Join(dir, "notice.png"),
				Scale:    "-1:56",
				Position: "(main_w-overlay_w)/2:main_h-overlay_h-48",
			},
		},
		FontsDir: fonts,
	}
}

// Inputs is the input index layout decided by the command synthesizer.
type Inputs struct {
	Video      int
	Audio      int
	Watermarks map[WatermarkKind]int
}

// Fragment is one node of the graph.
type Fragment struct {
	Inputs []string
	Filter string
	Params string
	Output string
}

// String renders the fragment as "[in]...filter=params[out]".
func (f Fragment) String() string {
	var b strings.Builder
	for _, in := range f.Inputs {
		b.WriteString("[" + in + "]")
	}
	b.WriteString(f.Filter)
	if f.Params != "" {
		b.WriteString("=" + f.Params)
	}
	b.WriteString("[" + f.Output + "]")
	return b.String()
}
