package probe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample1080 = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mjpeg",
      "codec_type": "video",
      "width": 600,
      "height": 900,
      "disposition": { "default": 0, "attached_pic": 1 }
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "duration": "30.000000",
      "disposition": { "default": 1, "attached_pic": 0 }
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio",
      "disposition": { "default": 1 }
    }
  ],
  "format": {
    "filename": "uploads/1700000000000-clip.mp4",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "30.021000"
  }
}`

const sampleAudioOnly = `{
  "streams": [
    { "index": 0, "codec_name": "mp3", "codec_type": "audio" }
  ],
  "format": { "format_name": "mp3", "duration": "182.5" }
}`

const sampleNoFormatDuration = `{
  "streams": [
    { "index": 0, "codec_name": "vp9", "codec_type": "video", "width": 640, "height": 360, "duration": "12.5" }
  ],
  "format": { "format_name": "matroska,webm", "duration": "N/A" }
}`

func TestParseJSON(t *testing.T) {
	m, err := ParseJSON([]byte(sample1080))
	require.NoError(t, err)

	assert.Equal(t, &SourceMetadata{
		DurationSeconds: 30.021,
		VideoHeight:     1080,
		VideoWidth:      1920,
		HasVideoStream:  true,
	}, m)
}

func TestParseJSON_AudioOnly(t *testing.T) {
	m, err := ParseJSON([]byte(sampleAudioOnly))
	require.NoError(t, err)

	assert.False(t, m.HasVideoStream)
	assert.Zero(t, m.VideoHeight)
	assert.InDelta(t, 182.5, m.DurationSeconds, 1e-9)
}

func TestParseJSON_StreamDurationFallback(t *testing.T) {
	m, err := ParseJSON([]byte(sampleNoFormatDuration))
	require.NoError(t, err)

	assert.True(t, m.HasVideoStream)
	assert.Equal(t, 360, m.VideoHeight)
	assert.InDelta(t, 12.5, m.DurationSeconds, 1e-9)
}

func TestParseJSON_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", "{}", `{"streams":[]}`} {
		_, err := ParseJSON([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestProbe_MissingBinary(t *testing.T) {
	p := NewProber("definitely-not-ffprobe-4242", nil)

	_, err := p.Probe(context.Background(), "in.mp4")
	assert.Error(t, err)
}
