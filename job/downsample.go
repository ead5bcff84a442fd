package job

import (
	"context"
	"fmt"
	"path/filepath"

	"mediajob/encoder"
	"mediajob/locator"
	"mediajob/models"
)

const downsampleDoneBody = "Video downsampling successful!"

func (h *Handler) downsample(ctx context.Context, id string, p models.Params) (models.Result, outcome, error) {
	var out outcome

	src, err := locator.ParseURI(p.String("original_video_uri", ""))
	if err != nil {
		return models.Result{}, out, fmt.Errorf("%w: original_video_uri: %w", ErrInvalidJob, err)
	}
	dst, err := locator.ParseURI(p.String("output_video_uri", ""))
	if err != nil {
		return models.Result{}, out, fmt.Errorf("%w: output_video_uri: %w", ErrInvalidJob, err)
	}
	spec, err := encoder.ParseResolution(p.String("resolution", ""))
	if err != nil {
		return models.Result{}, out, fmt.Errorf("%w: %w", ErrInvalidJob, err)
	}

	dir, cleanup, err := h.workspace(id)
	if err != nil {
		return models.Result{}, out, err
	}
	defer cleanup()

	input := filepath.Join(dir, locator.DefaultInputVideoName)
	output := filepath.Join(dir, "output.mp4")

	if err := h.Storage.DownloadURI(ctx, src, input); err != nil {
		return models.Result{}, out, fmt.Errorf("%w: %s: %w", ErrAssetMissing, src, err)
	}

	args, err := encoder.BuildDownsampleArgs(h.Executor.Binary, input, output, spec)
	if err != nil {
		return models.Result{}, out, err
	}
	// single attempt: the container fallback only applies to ENCODING
	out.attempts = 1
	out.container = encoder.ContainerDefault.String()
	if err := h.Executor.RunOnce(ctx, args); err != nil {
		return models.Result{}, out, err
	}
	if err := encoder.VerifyOutput(output); err != nil {
		return models.Result{}, out, err
	}

	if err := h.Storage.UploadURI(ctx, output, dst); err != nil {
		return models.Result{}, out, fmt.Errorf("%w: %s: %w", ErrUpload, dst, err)
	}
	out.output = dst.String()

	return models.Result{ID: id, StatusCode: 200, Body: downsampleDoneBody}, out, nil
}
