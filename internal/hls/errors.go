package hls

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoVideoStream is returned when the source container holds no decodable video.
var ErrNoVideoStream = errors.New("source has no video stream")

type InputNotFoundError struct {
	Path string
}

func (e *InputNotFoundError) Error() string {
	return fmt.Sprintf("input file '%s' not found", e.Path)
}

type ProbeError struct {
	Path string
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("unable to probe '%s': %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

type NoApplicableRenditionError struct {
	SourceHeight int
}

func (e *NoApplicableRenditionError) Error() string {
	return fmt.Sprintf("no rendition fits a source height of %dpx", e.SourceHeight)
}

// EncodeError is the failure of a single rendition. It does not fail the conversion on its own.
type EncodeError struct {
	Rendition string
	Err       error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("unable to encode rendition '%s': %v", e.Rendition, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

type AllRenditionsFailedError struct {
	Failures []*EncodeError
}

func (e *AllRenditionsFailedError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}

	return fmt.Sprintf("all %d renditions failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap returns the first failure so errors.Is sees a shared cause like context.DeadlineExceeded.
func (e *AllRenditionsFailedError) Unwrap() error {
	if len(e.Failures) == 0 {
		return nil
	}

	return e.Failures[0]
}

type PlaylistWriteError struct {
	Path string
	Err  error
}

func (e *PlaylistWriteError) Error() string {
	return fmt.Sprintf("unable to write playlist '%s': %v", e.Path, e.Err)
}

func (e *PlaylistWriteError) Unwrap() error {
	return e.Err
}

// CleanupError is only ever logged.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("unable to clean up '%s': %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}
