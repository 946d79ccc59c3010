package transcode

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ali-d-coded/video-streaming-app/internal/executor"
)

func TestParseProgress(t *testing.T) {
	line := "frame=  240 fps= 48 q=28.0 size=    1024kB time=00:00:05.00 bitrate=1677.7kbits/s speed=2.01x"

	p, ok := ParseProgress(line, 20)
	require.True(t, ok)
	assert.Equal(t, "240", p.FramesProcessed)
	assert.Equal(t, "00:00:05.00", p.CurrentTime)
	assert.Equal(t, "1677.7kbits/s", p.CurrentBitrate)
	assert.Equal(t, "2.01x", p.Speed)
	assert.InDelta(t, 25.0, p.Progress, 1e-9)
	assert.Equal(t, 5*time.Second, p.CurrentDuration)
	assert.Equal(t, 20*time.Second, p.CompleteDuration)
}

func TestParseProgress_UnknownDuration(t *testing.T) {
	p, ok := ParseProgress("frame=1 time=00:00:01.00 bitrate=N/A speed=1x", 0)
	require.True(t, ok)
	assert.Zero(t, p.Progress)
}

func TestParseProgress_Clamped(t *testing.T) {
	p, ok := ParseProgress("frame=1 time=00:00:11.00 bitrate=1k speed=1x", 10)
	require.True(t, ok)
	assert.Equal(t, 100.0, p.Progress)
}

func TestParseProgress_IgnoresOtherLines(t *testing.T) {
	for _, line := range []string{
		"",
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"[hls @ 0x55] Opening 'out/360p/segment-000.ts' for writing",
		"frame=  10 fps=0.0",
	} {
		_, ok := ParseProgress(line, 10)
		assert.False(t, ok, line)
	}
}

func TestReadLines(t *testing.T) {
	var lines []string
	readLines(strings.NewReader("frame=1\rframe=2\nlast"), func(line string) {
		lines = append(lines, line)
	})

	assert.Equal(t, []string{"frame=1", "frame=2", "last"}, lines)
}

func TestReadLines_Truncated(t *testing.T) {
	var lines []string
	readLines(strings.NewReader(strings.Repeat("x", 3*maxLineLength)+"\nnext\n"), func(line string) {
		lines = append(lines, line)
	})

	require.Len(t, lines, 2)
	assert.Len(t, lines[0], maxLineLength)
	assert.Equal(t, "next", lines[1])
}

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	script := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755))

	return script
}

func TestRun_LongStderrLine(t *testing.T) {
	binary := fakeFFmpeg(t, `head -c 200000 /dev/zero | tr '\0' 'x' >&2
printf '\nframe=24 fps=0.0 time=00:00:01.00 bitrate=1k speed=1x\n' >&2
head -c 200000 /dev/zero | tr '\0' 'x' >&2
exit 0`)

	trans := New(binary)
	trans.Initialize(&executor.Cmd{}, 2)

	finished := make(chan []float64, 1)

	go func() {
		done := trans.Run(context.Background())

		var progress []float64
		for p := range trans.Output() {
			progress = append(progress, p.Progress)
		}

		if err := <-done; err != nil {
			t.Errorf("unexpected error: %v", err)
		}

		finished <- progress
	}()

	select {
	case progress := <-finished:
		assert.Equal(t, []float64{50}, progress)
	case <-time.After(10 * time.Second):
		t.Fatal("transcoder did not finish")
	}
}

func TestRun_NotInitialized(t *testing.T) {
	trans := New("")
	done := trans.Run(context.Background())

	for range trans.Output() {
	}

	assert.Error(t, <-done)
}

func TestRun_MissingBinary(t *testing.T) {
	trans := New("definitely-not-ffmpeg-4242")
	trans.Initialize(&executor.Cmd{}, 0)

	done := trans.Run(context.Background())
	for range trans.Output() {
	}
	assert.Error(t, <-done)
}
