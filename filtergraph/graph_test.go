package filtergraph

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// layoutFor mirrors the encoder's declaration order: video, audio, then enabled watermarks.
func layoutFor(f Features) Inputs {
	in := Inputs{Video: 0, Audio: 1, Watermarks: map[WatermarkKind]int{}}
	next := 2
	for _, k := range f.Watermarks() {
		in.Watermarks[k] = next
		next++
	}
	return in
}

func TestBuildAllFeatureCombinations(t *testing.T) {
	assets := DefaultAssets("/assets")
	for mask := 0; mask < 16; mask++ {
		f := Features{
			Subtitles:          mask&1 != 0,
			Watermark:          mask&2 != 0,
			PrimaryWatermark:   mask&4 != 0,
			SecondaryWatermark: mask&8 != 0,
		}
		t.Run(fmt.Sprintf("%+v", f), func(t *testing.T) {
			g, err := Build(f, layoutFor(f), assets, "/work/subtitles_en.ass")
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if err := g.Validate(); err != nil {
				t.Fatalf("Validate: %v (graph %q)", err, g.String())
			}
			if g.UsesFilterGraph != f.UsesFilterGraph() {
				t.Errorf("UsesFilterGraph = %v, want %v", g.UsesFilterGraph, f.UsesFilterGraph())
			}
			if g.AudioMap != "1:a" {
				t.Errorf("AudioMap = %q, want 1:a", g.AudioMap)
			}

			wantOverlays := len(f.Watermarks())
			if got := g.Count("overlay"); got != wantOverlays {
				t.Errorf("overlay count = %d, want %d", got, wantOverlays)
			}
			if got := g.Count("scale"); got != wantOverlays {
				t.Errorf("scale count = %d, want %d", got, wantOverlays)
			}
			wantAss := 0
			if f.Subtitles {
				wantAss = 1
			}
			if got := g.Count("ass"); got != wantAss {
				t.Errorf("ass count = %d, want %d", got, wantAss)
			}
		})
	}
}

func TestBuildNoFeaturesMapsRawVideo(t *testing.T) {
	g, err := Build(Features{Watermark: false, PrimaryWatermark: true}, layoutFor(Features{}), DefaultAssets("/assets"), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if g.UsesFilterGraph {
		t.Error("expected no filter graph")
	}
	if len(g.Fragments) != 0 {
		t.Errorf("expected no fragments, got %d", len(g.Fragments))
	}
	if g.VideoMap != "0:v" {
		t.Errorf("VideoMap = %q, want 0:v", g.VideoMap)
	}
}

func TestBuildChainsOverlaysPrimaryFirst(t *testing.T) {
	f := Features{Watermark: true, PrimaryWatermark: true, SecondaryWatermark: true}
	g, err := Build(f, layoutFor(f), DefaultAssets("/assets"), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	want := "[2:v]scale=-1:96[wm1];" +
		"[0:v][wm1]overlay=main_w-overlay_w-32:32[v2];" +
		"[3:v]scale=-1:56[wm3];" +
		"[v2][wm3]overlay=(main_w-overlay_w)/2:main_h-overlay_h-48[v4]"
	if got := g.String(); got != want {
		t.Errorf("graph mismatch\n got: %s\nwant: %s", got, want)
	}

	var overlays []Fragment
	for _, fr := range g.Fragments {
		if fr.Filter == "overlay" {
			overlays = append(overlays, fr)
		}
	}
	if len(overlays) != 2 {
		t.Fatalf("expected 2 overlays, got %d", len(overlays))
	}
	if overlays[1].Inputs[0] != overlays[0].Output {
		t.Errorf("second overlay consumes %q, want first overlay output %q", overlays[1].Inputs[0], overlays[0].Output)
	}
	if g.VideoMap != "[v4]" {
		t.Errorf("VideoMap = %q, want [v4]", g.VideoMap)
	}
}

func TestBuildSecondaryOnlyUsesFirstWatermarkInput(t *testing.T) {
	f := Features{Watermark: true, SecondaryWatermark: true}
	g, err := Build(f, layoutFor(f), DefaultAssets("/assets"), "")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Fragments) != 2 {
		t.Fatalf("expected scale+overlay, got %d fragments", len(g.Fragments))
	}
	if g.Fragments[0].Inputs[0] != "2:v" {
		t.Errorf("notice scale reads %q, want 2:v", g.Fragments[0].Inputs[0])
	}
	if g.VideoMap != "["+g.Fragments[1].Output+"]" {
		t.Errorf("overlay output should be terminal, map is %q", g.VideoMap)
	}
}

func TestBuildSubtitlesOnly(t *testing.T) {
	f := Features{Subtitles: true}
	g, err := Build(f, layoutFor(f), DefaultAssets("/assets"), "/tmp/job/subtitles_en.ass")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Fragments) != 1 {
		t.Fatalf("expected exactly one fragment, got %d", len(g.Fragments))
	}
	fr := g.Fragments[0]
	if fr.Filter != "ass" {
		t.Errorf("filter = %q, want ass", fr.Filter)
	}
	if len(fr.Inputs) != 1 || fr.Inputs[0] != "0:v" {
		t.Errorf("subtitle inputs = %v, want [0:v]", fr.Inputs)
	}
	if g.Terminal() != fr.Output {
		t.Errorf("terminal = %q, want %q", g.Terminal(), fr.Output)
	}
	if g.VideoMap != "["+fr.Output+"]" {
		t.Errorf("VideoMap = %q", g.VideoMap)
	}
	if got, want := g.String(), "[0:v]ass=/tmp/job/subtitles_en.ass:fontsdir=/assets/[sub1]"; got != want {
		t.Errorf("graph = %q, want %q", got, want)
	}
}

func TestBuildSubtitlesAfterWatermark(t *testing.T) {
	f := Features{Subtitles: true, Watermark: true, PrimaryWatermark: true}
	g, err := Build(f, layoutFor(f), DefaultAssets("/assets"), "/tmp/s.ass")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := g.Fragments[len(g.Fragments)-1]
	prev := g.Fragments[len(g.Fragments)-2]
	if last.Filter != "ass" || prev.Filter != "overlay" {
		t.Fatalf("unexpected order: %s", g.String())
	}
	if last.Inputs[0] != prev.Output {
		t.Errorf("subtitles consume %q, want overlay output %q", last.Inputs[0], prev.Output)
	}
}

func TestBuildMissingInputs(t *testing.T) {
	f := Features{Watermark: true, PrimaryWatermark: true}
	_, err := Build(f, Inputs{Video: 0, Audio: 1}, DefaultAssets("/assets"), "")
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput for undeclared watermark, got %v", err)
	}

	_, err = Build(Features{Subtitles: true}, Inputs{Video: 0, Audio: 1}, DefaultAssets("/assets"), "")
	if !errors.Is(err, ErrMissingInput) {
		t.Errorf("expected ErrMissingInput for missing subtitle path, got %v", err)
	}
}

func TestValidateRejectsBrokenGraphs(t *testing.T) {
	cases := map[string]Graph{
		"forward reference": {
			UsesFilterGraph: true,
			VideoMap:        "[b]",
			Fragments: []Fragment{
				{Inputs: []string{"a"}, Filter: "null", Output: "b"},
				{Inputs: []string{"0:v"}, Filter: "null", Output: "a"},
			},
		},
		"dangling intermediate": {
			UsesFilterGraph: true,
			VideoMap:        "[b]",
			Fragments: []Fragment{
				{Inputs: []string{"0:v"}, Filter: "null", Output: "a"},
				{Inputs: []string{"0:v"}, Filter: "null", Output: "b"},
			},
		},
		"duplicate label": {
			UsesFilterGraph: true,
			VideoMap:        "[a]",
			Fragments: []Fragment{
				{Inputs: []string{"0:v"}, Filter: "null", Output: "a"},
				{Inputs: []string{"a"}, Filter: "null", Output: "a"},
			},
		},
		"map not terminal": {
			UsesFilterGraph: true,
			VideoMap:        "0:v",
			Fragments: []Fragment{
				{Inputs: []string{"0:v"}, Filter: "null", Output: "a"},
			},
		},
	}
	for name, g := range cases {
		if err := g.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEscapeValue(t *testing.T) {
	cases := map[string]string{
		"/tmp/job/subtitles_en.ass": "/tmp/job/subtitles_en.ass",
		"C:/subs.ass":               `C\\:/subs.ass`,
		"it's.ass":                  `it\\\'s.ass`,
		"a[1],b;c.ass":              `a\[1\]\,b\;c.ass`,
	}
	for in, want := range cases {
		if got := EscapeValue(in); got != want {
			t.Errorf("EscapeValue(%q) = %q, want %q", in, got, want)
		}
	}
	if strings.Contains(EscapeValue("x:y"), "x:y") {
		t.Error("colon left unescaped")
	}
}
