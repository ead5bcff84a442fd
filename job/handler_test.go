package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediajob/encoder"
	"mediajob/failures"
	"mediajob/filtergraph"
	"mediajob/models"
	"mediajob/storage"
	"mediajob/success"
)

// fakeRunner plays the encoder: it writes the output path (last argument)
// unless noOutput is set and returns scripted exit codes.
type fakeRunner struct {
	codes    []int
	calls    [][]string
	noOutput bool
	onCall   func(args []string)
}

func (r *fakeRunner) Run(_ context.Context, args []string) encoder.RunResult {
	n := len(r.calls)
	r.calls = append(r.calls, args)
	if r.onCall != nil {
		r.onCall(args)
	}
	code := 0
	if n < len(r.codes) {
		code = r.codes[n]
	}
	if !r.noOutput {
		os.WriteFile(args[len(args)-1], []byte("encoded"), 0644)
	}
	return encoder.RunResult{ExitCode: code}
}

type testEnv struct {
	h    *Handler
	root string
	r    *fakeRunner
}

func newTestEnv(t *testing.T, r *fakeRunner) *testEnv {
	t.Helper()
	root := t.TempDir()
	router := storage.NewRouter(storage.NewLocal(root))

	fs, err := failures.Open(filepath.Join(t.TempDir(), "failures.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fs.Close() })
	ss, err := success.Open(filepath.Join(t.TempDir(), "success.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ss.Close() })

	h := &Handler{
		Storage: router,
		Executor: &encoder.Executor{
			Binary: "/ffmpeg",
			Assets: filtergraph.DefaultAssets("/assets"),
			Runner: r,
		},
		DefaultBucket:       "media",
		DefaultBucketPrefix: "projects",
		WorkDir:             t.TempDir(),
		Tracker:             NewTracker(),
		Failures:            fs,
		Successes:           ss,
	}
	return &testEnv{h: h, root: root, r: r}
}

func (e *testEnv) put(t *testing.T, key, content string) {
	t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) putEncodeAssets(t *testing.T, id string, subtitles bool) {
	e.put(t, "media/projects/"+id+"/video.mp4", "video")
	e.put(t, "media/projects/"+id+"/exported_with_music.wav", "audio")
	if subtitles {
		e.put(t, "media/projects/"+id+"/subtitles_en.ass", "[Script Info]")
	}
}

func (e *testEnv) assertWorkspaceRemoved(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.h.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("workspace not cleaned up: %d entries left", len(entries))
	}
}

func argAfter(args []string, flag string) []string {
	var vals []string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			vals = append(vals, args[i+1])
		}
	}
	return vals
}

func encodingJob(params map[string]any) models.Job {
	return models.Job{Task: models.TaskEncoding, Parameters: params}
}

func TestEncodeSubtitlesOnly(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.putEncodeAssets(t, "job-1", true)

	res, err := env.h.Handle(context.Background(), encodingJob(map[string]any{
		"id":        "job-1",
		"language":  "en",
		"subtitles": "true",
		"watermark": false,
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.ID != "job-1" || res.StatusCode != 200 || res.Body != "Video re-encoding and upload completed!" {
		t.Errorf("unexpected result %+v", res)
	}

	if len(env.r.calls) != 1 {
		t.Fatalf("expected 1 encoder call, got %d", len(env.r.calls))
	}
	args := env.r.calls[0]
	inputs := argAfter(args, "-i")
	if len(inputs) != 2 {
		t.Fatalf("inputs = %v, want video and audio only", inputs)
	}
	ws := filepath.Dir(inputs[0])
	wantGraph := "[0:v]ass=" + filtergraph.EscapeValue(filepath.Join(ws, "subtitles_en.ass")) + ":fontsdir=" + filtergraph.EscapeValue("/assets/") + "[sub1]"
	if got := argAfter(args, "-filter_complex"); len(got) != 1 || got[0] != wantGraph {
		t.Errorf("filter graph = %v, want %q", got, wantGraph)
	}
	if maps := argAfter(args, "-map"); len(maps) != 2 || maps[0] != "[sub1]" || maps[1] != "1:a" {
		t.Errorf("maps = %v", maps)
	}

	if _, err := os.Stat(filepath.Join(env.root, "media/projects/job-1/exported_video.mp4")); err != nil {
		t.Errorf("output not uploaded: %v", err)
	}
	env.assertWorkspaceRemoved(t)

	st, ok := env.h.Tracker.Get("job-1")
	if !ok || st.State != "completed" {
		t.Errorf("tracker state = %+v", st)
	}
	rec, err := env.h.Successes.Get("job-1")
	if err != nil || rec == nil {
		t.Fatalf("success record missing: %v", err)
	}
	if rec.Output != "media/projects/job-1/exported_video.mp4" || rec.Attempts != 1 || rec.Container != "default" {
		t.Errorf("unexpected success record %+v", rec)
	}
}

func TestEncodePlainSkipsSubtitleDownload(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	// no subtitle file in storage
	env.putEncodeAssets(t, "job-2", false)

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{
		"id":       "job-2",
		"language": "en",
		"name":     "final.mp4",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	args := env.r.calls[0]
	if got := argAfter(args, "-filter_complex"); len(got) != 0 {
		t.Errorf("unexpected filter graph %v", got)
	}
	if maps := argAfter(args, "-map"); maps[0] != "0:v" {
		t.Errorf("video map = %s, want 0:v", maps[0])
	}
	if _, err := os.Stat(filepath.Join(env.root, "media/projects/job-2/final.mp4")); err != nil {
		t.Errorf("output not uploaded under its name: %v", err)
	}
}

func TestEncodeWatermarksAndSubtitles(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.putEncodeAssets(t, "job-3", true)

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{
		"id":                   "job-3",
		"language":             "en",
		"subtitles":            true,
		"watermark":            "yes",
		"logo":                 "true",
		"notice":               "1",
		"bucket":               "media",
		"bucket_parent_folder": "projects",
	}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	args := env.r.calls[0]
	inputs := argAfter(args, "-i")
	if len(inputs) != 4 || inputs[2] != "/assets/logo.png" || inputs[3] != "/assets/notice.png" {
		t.Errorf("inputs = %v", inputs)
	}
	graph := argAfter(args, "-filter_complex")[0]
	if n := strings.Count(graph, "overlay="); n != 2 {
		t.Errorf("expected 2 overlays, got %d in %s", n, graph)
	}
	if maps := argAfter(args, "-map"); maps[0] != "[sub5]" {
		t.Errorf("video map = %s, want [sub5]", maps[0])
	}
}

func TestEncodeFallbackRecorded(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{codes: []int{1, 0}})
	env.putEncodeAssets(t, "job-4", false)

	if _, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "job-4"})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(env.r.calls) != 2 {
		t.Fatalf("expected 2 encoder calls, got %d", len(env.r.calls))
	}
	if got := argAfter(env.r.calls[1], "-f"); len(got) != 1 || got[0] != "matroska" {
		t.Errorf("second attempt format = %v", got)
	}
	rec, _ := env.h.Successes.Get("job-4")
	if rec == nil || rec.Container != "matroska" || rec.Attempts != 2 {
		t.Errorf("success record = %+v", rec)
	}
}

func TestEncodeFatalExitRecordsFailure(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{codes: []int{2}})
	env.putEncodeAssets(t, "job-5", false)

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "job-5"}))
	var encErr *encoder.EncodeError
	if !errors.As(err, &encErr) || encErr.ExitCode != 2 {
		t.Fatalf("expected EncodeError with code 2, got %v", err)
	}
	if len(env.r.calls) != 1 {
		t.Errorf("expected 1 encoder call, got %d", len(env.r.calls))
	}
	if _, err := os.Stat(filepath.Join(env.root, "media/projects/job-5/exported_video.mp4")); !os.IsNotExist(err) {
		t.Error("nothing should be uploaded after a fatal encode")
	}
	env.assertWorkspaceRemoved(t)

	rec, err := env.h.Failures.Get("job-5")
	if err != nil || rec == nil {
		t.Fatalf("failure record missing: %v", err)
	}
	if rec.ExitCode != 2 || rec.Task != models.TaskEncoding {
		t.Errorf("failure record = %+v", rec)
	}
	if st, _ := env.h.Tracker.Get("job-5"); st.State != "failed" {
		t.Errorf("tracker state = %s", st.State)
	}
}

func TestEncodeNoOutput(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{noOutput: true})
	env.putEncodeAssets(t, "job-6", false)

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "job-6"}))
	if !errors.Is(err, encoder.ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
	if err.Error() != "video was unable to encode" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestEncodeMissingAsset(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.put(t, "media/projects/job-7/video.mp4", "video")

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "job-7"}))
	if !errors.Is(err, ErrAssetMissing) {
		t.Fatalf("expected ErrAssetMissing, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cause should be preserved, got %v", err)
	}
	if len(env.r.calls) != 0 {
		t.Error("encoder must not run without its inputs")
	}
	env.assertWorkspaceRemoved(t)
}

type failingUpload struct {
	Storage
}

func (failingUpload) Upload(context.Context, string, string, string) error {
	return errors.New("403 forbidden")
}

func TestEncodeUploadFailure(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.putEncodeAssets(t, "job-8", false)
	env.h.Storage = failingUpload{env.h.Storage}

	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "job-8"}))
	if !errors.Is(err, ErrUpload) {
		t.Fatalf("expected ErrUpload, got %v", err)
	}
	env.assertWorkspaceRemoved(t)
}

func TestEncodeInvalidParameters(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	cases := map[string]map[string]any{
		"missing id":             {},
		"subtitles w/o language": {"id": "x", "subtitles": "true"},
		"bad toggle":             {"id": "x", "watermark": "maybe"},
		"path traversal in name": {"id": "x", "name": "../escape.mp4"},
		"hostile language":       {"id": "x", "subtitles": true, "language": "en;rm"},
	}
	for name, params := range cases {
		_, err := env.h.Handle(context.Background(), encodingJob(params))
		if !errors.Is(err, ErrInvalidJob) {
			t.Errorf("%s: expected ErrInvalidJob, got %v", name, err)
		}
	}
	if len(env.r.calls) != 0 {
		t.Error("encoder ran for an invalid job")
	}
}

func TestUnknownTask(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	_, err := env.h.Handle(context.Background(), models.Job{Task: "TRANSCRIBE", Parameters: map[string]any{"id": "1"}})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}
}

func TestDownsample(t *testing.T) {
	var inputExisted bool
	r := &fakeRunner{onCall: func(args []string) {
		_, err := os.Stat(argAfter(args, "-i")[0])
		inputExisted = err == nil
	}}
	env := newTestEnv(t, r)
	env.put(t, "media/raw/clip.mp4", "video")

	res, err := env.h.Handle(context.Background(), models.Job{
		Task: models.TaskDownsampling,
		Parameters: map[string]any{
			"original_video_uri": "gs://media/raw/clip.mp4",
			"output_video_uri":   "s3://media/small/clip_480.mp4",
			"resolution":         "480p",
		},
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.ID == "" || res.Body != "Video downsampling successful!" {
		t.Errorf("unexpected result %+v", res)
	}
	if !inputExisted {
		t.Error("encoder input must be the downloaded source file")
	}
	args := r.calls[0]
	if vf := argAfter(args, "-vf"); len(vf) != 1 || vf[0] != "scale=853:480" {
		t.Errorf("-vf = %v", vf)
	}
	if _, err := os.Stat(filepath.Join(env.root, "media/small/clip_480.mp4")); err != nil {
		t.Errorf("output not uploaded: %v", err)
	}
	env.assertWorkspaceRemoved(t)
}

func TestDownsampleDoesNotRetry(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{codes: []int{1}})
	env.put(t, "media/raw/clip.mp4", "video")

	_, err := env.h.Handle(context.Background(), models.Job{
		Task: models.TaskDownsampling,
		Parameters: map[string]any{
			"id":                 "ds-1",
			"original_video_uri": "s3://media/raw/clip.mp4",
			"output_video_uri":   "s3://media/small/clip.mp4",
		},
	})
	var encErr *encoder.EncodeError
	if !errors.As(err, &encErr) || encErr.ExitCode != 1 {
		t.Fatalf("expected EncodeError with code 1, got %v", err)
	}
	if len(env.r.calls) != 1 {
		t.Errorf("expected a single attempt, got %d", len(env.r.calls))
	}
	if rec, _ := env.h.Failures.Get("ds-1"); rec == nil || rec.Task != models.TaskDownsampling {
		t.Errorf("failure record = %+v", rec)
	}
}

func TestDownsampleBadURI(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	_, err := env.h.Handle(context.Background(), models.Job{
		Task:       models.TaskDownsampling,
		Parameters: map[string]any{"original_video_uri": "http://x/y.mp4", "output_video_uri": "s3://a/b.mp4"},
	})
	if !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestRunRejectsDuplicateActiveID(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{})
	env.putEncodeAssets(t, "dup", false)
	if err := env.h.Tracker.Begin("dup", models.TaskEncoding, func() {}); err != nil {
		t.Fatal(err)
	}
	_, err := env.h.Handle(context.Background(), encodingJob(map[string]any{"id": "dup"}))
	if !errors.Is(err, ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
}

func TestRerunReplacesOutcomeRecord(t *testing.T) {
	env := newTestEnv(t, &fakeRunner{codes: []int{2}})
	env.putEncodeAssets(t, "job-r", false)
	j := encodingJob(map[string]any{"id": "job-r"})

	if _, err := env.h.Handle(context.Background(), j); err == nil {
		t.Fatal("first run should fail")
	}
	if rec, _ := env.h.Failures.Get("job-r"); rec == nil {
		t.Fatal("failure not recorded")
	}

	// second call gets exit 0
	if _, err := env.h.Handle(context.Background(), j); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if rec, _ := env.h.Failures.Get("job-r"); rec != nil {
		t.Errorf("stale failure record kept after success: %+v", rec)
	}
	if rec, _ := env.h.Successes.Get("job-r"); rec == nil {
		t.Fatal("success not recorded")
	}

	env.r.codes = append(env.r.codes, 0, 2)
	if _, err := env.h.Handle(context.Background(), j); err == nil {
		t.Fatal("third run should fail")
	}
	if rec, _ := env.h.Successes.Get("job-r"); rec != nil {
		t.Errorf("stale success record kept after failure: %+v", rec)
	}
}
