package hls

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ali-d-coded/video-streaming-app/internal/executor"
	"github.com/ali-d-coded/video-streaming-app/internal/ladder"
	"github.com/ali-d-coded/video-streaming-app/internal/transcode"
)

const (
	playlistName    = "playlist.m3u8"
	segmentPattern  = "segment-%03d.ts"
	segmentDuration = "6"
	keyframeFrames  = "48"
	audioBitrate    = "128k"
)

// Variant is a rendition that was produced successfully.
type Variant struct {
	ladder.Rendition
	Playlist string `json:"playlist"`
}

type EncodeRequest struct {
	SourcePath string
	OutputDir  string
	Rendition  ladder.Rendition
	// Duration of the source in seconds, used for progress percentages.
	Duration float64
}

type ProgressFunc func(percent float64)

// Encoder produces the segments and local playlist of one rendition under
// OutputDir/<rendition name>/.
type Encoder interface {
	Encode(ctx context.Context, req EncodeRequest, progress ProgressFunc) (*Variant, error)
}

type FFmpegEncoder struct {
	Binary string
}

func NewFFmpegEncoder(binary string) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}

	return &FFmpegEncoder{Binary: binary}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, req EncodeRequest, progress ProgressFunc) (*Variant, error) {
	dir := filepath.Join(req.OutputDir, req.Rendition.Name)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &EncodeError{Rendition: req.Rendition.Name, Err: errors.Wrapf(err, "unable to create '%s'", dir)}
	}

	trans := transcode.New(e.Binary)
	trans.Initialize(Command(req), req.Duration)

	done := trans.Run(ctx)

	for p := range trans.Output() {
		if progress != nil {
			progress(p.Progress)
		}
	}

	if err := <-done; err != nil {
		return nil, &EncodeError{Rendition: req.Rendition.Name, Err: err}
	}

	return &Variant{
		Rendition: req.Rendition,
		Playlist:  path.Join(req.Rendition.Name, playlistName),
	}, nil
}

// Command builds the ffmpeg arguments for one rendition.
func Command(req EncodeRequest) *executor.Cmd {
	dir := filepath.Join(req.OutputDir, req.Rendition.Name)

	cmd := &executor.Cmd{}
	cmd.Add("-i", req.SourcePath)
	cmd.Add("-codec:v", "libx264")
	cmd.Add("-codec:a", "aac")
	cmd.Add("-profile:v", "main")
	cmd.Add("-preset", "veryfast")
	cmd.Add("-sc_threshold", "0")
	cmd.Add("-g", keyframeFrames)
	cmd.Add("-keyint_min", keyframeFrames)
	cmd.Add("-vf", fmt.Sprintf("scale=w=%d:h=%d", req.Rendition.Width, req.Rendition.Height))
	cmd.Add("-b:v", req.Rendition.Bitrate)
	cmd.Add("-b:a", audioBitrate)
	cmd.Add("-hls_time", segmentDuration)
	cmd.Add("-hls_list_size", "0")
	cmd.Add("-f", "hls")
	cmd.Add("-hls_segment_filename", filepath.Join(dir, segmentPattern))
	cmd.Add(filepath.Join(dir, playlistName))

	return cmd
}
