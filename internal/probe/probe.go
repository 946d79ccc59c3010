package probe

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ali-d-coded/video-streaming-app/internal/executor"
)

// SourceMetadata is what the conversion needs to know about its input.
type SourceMetadata struct {
	DurationSeconds float64 `json:"durationSeconds"`
	VideoHeight     int     `json:"videoHeight"`
	VideoWidth      int     `json:"videoWidth"`
	HasVideoStream  bool    `json:"hasVideoStream"`
}

type Prober struct {
	binary string
	exec   *executor.Executor
}

func NewProber(binary string, exec *executor.Executor) *Prober {
	if binary == "" {
		binary = "ffprobe"
	}

	if exec == nil {
		exec = executor.NewExecutor(nil)
	}

	return &Prober{binary: binary, exec: exec}
}

// Probe runs ffprobe once against path. Unreadable or undecodable input is an error; a valid
// container without video is not (HasVideoStream is false).
func (p *Prober) Probe(ctx context.Context, path string) (*SourceMetadata, error) {
	cmd := &executor.Cmd{Binary: p.binary}
	cmd.Add("-v", "error")
	cmd.Add("-print_format", "json")
	cmd.Add("-show_format", "-show_streams")
	cmd.Add(path)

	out, err := p.exec.Output(ctx, cmd)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to probe '%s'", path)
	}

	metadata, err := ParseJSON(out)

	if err != nil {
		return nil, errors.Wrapf(err, "unable to read probe of '%s'", path)
	}

	return metadata, nil
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	CodecType   string         `json:"codec_type"`
	CodecName   string         `json:"codec_name"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	Duration    string         `json:"duration"`
	Disposition map[string]int `json:"disposition"`
}

// ParseJSON converts ffprobe JSON output. The first video stream that is not an attached picture
// (cover art) is the source video.
func ParseJSON(data []byte) (*SourceMetadata, error) {
	var raw ffprobeOutput

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "invalid ffprobe output")
	}

	if raw.Format.FormatName == "" && len(raw.Streams) == 0 {
		return nil, errors.New("ffprobe found no container")
	}

	metadata := &SourceMetadata{
		DurationSeconds: parseFloat(raw.Format.Duration),
	}

	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}

		metadata.HasVideoStream = true
		metadata.VideoWidth = s.Width
		metadata.VideoHeight = s.Height

		if metadata.DurationSeconds == 0 {
			metadata.DurationSeconds = parseFloat(s.Duration)
		}

		break
	}

	return metadata, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)

	if err != nil || f < 0 {
		return 0
	}

	return f
}
