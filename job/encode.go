package job

import (
	"context"
	"fmt"

	"mediajob/encoder"
	"mediajob/filtergraph"
	"mediajob/locator"
	"mediajob/logger"
	"mediajob/models"
)

const encodeDoneBody = "Video re-encoding and upload completed!"

// features reads the toggles of an ENCODING job.
func features(p models.Params) (filtergraph.Features, error) {
	var f filtergraph.Features
	var err error
	for _, t := range []struct {
		key string
		dst *bool
	}{
		{"subtitles", &f.Subtitles},
		{"watermark", &f.Watermark},
		{"logo", &f.PrimaryWatermark},
		{"notice", &f.SecondaryWatermark},
	} {
		if *t.dst, err = p.Bool(t.key); err != nil {
			return f, fmt.Errorf("%w: %v", ErrInvalidJob, err)
		}
	}
	return f, nil
}

func (h *Handler) encode(ctx context.Context, id string, p models.Params) (models.Result, outcome, error) {
	var out outcome

	feats, err := features(p)
	if err != nil {
		return models.Result{}, out, err
	}
	assets := locator.EncodeAssets{
		JobID:          id,
		Language:       p.String("language", ""),
		Bucket:         p.String("bucket", h.DefaultBucket),
		ParentFolder:   p.String("bucket_parent_folder", h.DefaultBucketPrefix),
		InputVideoName: p.String("input_video_name", locator.DefaultInputVideoName),
		OutputName:     p.String("name", locator.DefaultOutputName),
	}
	if feats.Subtitles && assets.Language == "" {
		return models.Result{}, out, fmt.Errorf("%w: subtitles enabled without a language", ErrInvalidJob)
	}
	if err := assets.Validate(); err != nil {
		return models.Result{}, out, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	dir, cleanup, err := h.workspace(id)
	if err != nil {
		return models.Result{}, out, err
	}
	defer cleanup()

	keys := assets.Keys()
	paths := assets.Paths(dir)

	downloads := [][2]string{
		{keys.Video, paths.Video},
		{keys.Audio, paths.Audio},
	}
	if feats.Subtitles {
		downloads = append(downloads, [2]string{keys.Subtitles, paths.Subtitles})
	}
	for _, d := range downloads {
		if err := h.Storage.Download(ctx, assets.Bucket, d[0], d[1]); err != nil {
			return models.Result{}, out, fmt.Errorf("%w: %s/%s: %w", ErrAssetMissing, assets.Bucket, d[0], err)
		}
	}

	req := encoder.EncodeRequest{
		InputVideo: paths.Video,
		InputAudio: paths.Audio,
		Output:     paths.Output,
		Features:   feats,
	}
	if feats.Subtitles {
		req.Subtitles = paths.Subtitles
	}

	result, err := h.Executor.Execute(ctx, req)
	out.attempts = len(result.Attempts)
	out.container = result.Container().String()
	if err != nil {
		return models.Result{}, out, err
	}
	if err := encoder.VerifyOutput(paths.Output); err != nil {
		return models.Result{}, out, err
	}
	if out.attempts > 1 {
		logger.Infof("job %s: encoded with %s container after %d attempts", id, out.container, out.attempts)
	}

	if err := h.Storage.Upload(ctx, paths.Output, assets.Bucket, keys.Output); err != nil {
		return models.Result{}, out, fmt.Errorf("%w: %s/%s: %w", ErrUpload, assets.Bucket, keys.Output, err)
	}
	out.output = assets.Bucket + "/" + keys.Output

	return models.Result{ID: id, StatusCode: 200, Body: encodeDoneBody}, out, nil
}
