// Package locator maps job identifiers to storage keys and workspace paths.
package locator

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	DefaultOutputName     = "exported_video.mp4"
	DefaultInputVideoName = "video.mp4"
	audioName             = "exported_with_music.wav"
)

var (
	ErrInvalidLocation = errors.New("invalid asset location")

	// language codes end up in file names and filter arguments
	languagePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)
)

// EncodeAssets identifies the assets of one ENCODING job.
type EncodeAssets struct {
	JobID          string
	Language       string
	Bucket         string
	ParentFolder   string
	InputVideoName string
	OutputName     string
}

// Keys are the storage keys of an ENCODING job, all inside Bucket.
type Keys struct {
	Video     string
	Audio     string
	Subtitles string
	Output    string
}

// LocalPaths are the workspace file paths of an ENCODING job.
type LocalPaths struct {
	Video     string
	Audio     string
	Subtitles string
	Output    string
}

// Validate checks every component that becomes part of a key or path.
func (a EncodeAssets) Validate() error {
	if a.Bucket == "" {
		return fmt.Errorf("%w: bucket is required", ErrInvalidLocation)
	}
	if a.ParentFolder == "" {
		return fmt.Errorf("%w: bucket_parent_folder is required", ErrInvalidLocation)
	}
	if err := checkSegment("id", a.JobID); err != nil {
		return err
	}
	if err := checkSegment("input_video_name", a.inputVideoName()); err != nil {
		return err
	}
	if err := checkSegment("name", a.outputName()); err != nil {
		return err
	}
	if a.Language != "" && !languagePattern.MatchString(a.Language) {
		return fmt.Errorf("%w: language %q", ErrInvalidLocation, a.Language)
	}
	return nil
}

// Keys returns {parent}/{id}/... keys for every asset.
func (a EncodeAssets) Keys() Keys {
	prefix := path.Join(strings.Trim(a.ParentFolder, "/"), a.JobID)
	return Keys{
		Video:     path.Join(prefix, a.inputVideoName()),
		Audio:     path.Join(prefix, audioName),
		Subtitles: path.Join(prefix, a.subtitleName()),
		Output:    path.Join(prefix, a.outputName()),
	}
}

// Paths returns the local file layout inside a job workspace. Local names are
// fixed so commands for the same request only differ by workspace.
func (a EncodeAssets) Paths(workspace string) LocalPaths {
	return LocalPaths{
		Video:     filepath.Join(workspace, DefaultInputVideoName),
		Audio:     filepath.Join(workspace, audioName),
		Subtitles: filepath.Join(workspace, a.subtitleName()),
		Output:    filepath.Join(workspace, DefaultOutputName),
	}
}

func (a EncodeAssets) subtitleName() string {
	return fmt.Sprintf("subtitles_%s.ass", a.Language)
}

func (a EncodeAssets) inputVideoName() string {
	if a.InputVideoName == "" {
		return DefaultInputVideoName
	}
	return a.InputVideoName
}

func (a EncodeAssets) outputName() string {
	if a.OutputName == "" {
		return DefaultOutputName
	}
	return a.OutputName
}

func checkSegment(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidLocation, field)
	}
	if v == "." || v == ".." || strings.ContainsAny(v, "/\\\x00") {
		return fmt.Errorf("%w: %s %q", ErrInvalidLocation, field, v)
	}
	return nil
}
