package transcode

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ali-d-coded/video-streaming-app/internal/executor"
	"github.com/ali-d-coded/video-streaming-app/internal/util"
)

const (
	stderrLines   = 20
	maxLineLength = 4096
)

var spacesAfterEqual = regexp.MustCompile(`=\s+`)

// Transcoder Main struct
type Transcoder struct {
	binary   string
	command  *executor.Cmd
	duration float64
	progress chan Progress

	mu   sync.Mutex
	tail []string
}

type Progress struct {
	FramesProcessed  string
	CurrentTime      string
	CurrentDuration  time.Duration
	CompleteDuration time.Duration
	CurrentBitrate   string
	Progress         float64
	Speed            string
}

func New(binary string) *Transcoder {
	if binary == "" {
		binary = "ffmpeg"
	}

	return &Transcoder{binary: binary}
}

// Initialize Init the transcoding process. duration is the source length in seconds used to
// compute the percentage; 0 disables it.
func (t *Transcoder) Initialize(command *executor.Cmd, duration float64) {
	t.command = command
	t.duration = duration
	t.progress = make(chan Progress)
}

// Run Starts the transcoding process. The returned channel yields exactly one value once the
// process exited and Output has been drained. Cancelling ctx kills the process.
func (t *Transcoder) Run(ctx context.Context) <-chan error {
	done := make(chan error, 1)

	if t.command == nil {
		done <- errors.New("transcoder not initialized")
		close(done)
		close(t.ensureProgress())
		return done
	}

	proc := exec.CommandContext(ctx, t.binary, append([]string{"-hide_banner", "-nostdin", "-y"}, t.command.Command()...)...)
	proc.Env = append(os.Environ(), t.command.Envs()...)

	stderr, err := proc.StderrPipe()

	if err != nil {
		done <- errors.Wrap(err, "unable to open ffmpeg stderr")
		close(done)
		close(t.progress)
		return done
	}

	if err = proc.Start(); err != nil {
		done <- errors.Wrapf(err, "failed start %s", t.binary)
		close(done)
		close(t.progress)
		return done
	}

	go func() {
		defer close(done)

		t.scan(stderr)
		close(t.progress)

		err := proc.Wait()

		if ctx.Err() != nil {
			done <- errors.Wrapf(ctx.Err(), "%s interrupted", t.binary)
			return
		}

		if err != nil {
			done <- errors.Wrapf(err, "failed finish %s: %s", t.binary, t.stderrTail())
			return
		}

		done <- nil
	}()

	return done
}

// Output Returns the transcoding progress channel. It is closed when ffmpeg closes stderr and
// must be drained, otherwise the process blocks on its own stats output.
func (t *Transcoder) Output() <-chan Progress {
	return t.ensureProgress()
}

func (t *Transcoder) ensureProgress() chan Progress {
	if t.progress == nil {
		t.progress = make(chan Progress)
	}

	return t.progress
}

func (t *Transcoder) scan(stderr io.Reader) {
	readLines(stderr, func(line string) {
		if p, ok := ParseProgress(line, t.duration); ok {
			t.progress <- p
			return
		}

		t.remember(line)
	})
}

func (t *Transcoder) remember(line string) {
	line = strings.TrimSpace(line)

	if line == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.tail = append(t.tail, line)

	if len(t.tail) > stderrLines {
		t.tail = t.tail[len(t.tail)-stderrLines:]
	}
}

func (t *Transcoder) stderrTail() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.Join(t.tail, " | ")
}

// readLines calls fn for every line of r, split on '\n' and on the bare '\r' ffmpeg uses to redraw
// its stats line. Lines longer than maxLineLength are truncated; r is always read to EOF so the
// writer never blocks on a full pipe.
func readLines(r io.Reader, fn func(line string)) {
	reader := bufio.NewReader(r)
	line := make([]byte, 0, 256)

	for {
		b, err := reader.ReadByte()

		if err != nil {
			if len(line) > 0 {
				fn(string(line))
			}

			return
		}

		if b == '\n' || b == '\r' {
			fn(string(line))
			line = line[:0]
			continue
		}

		if len(line) < maxLineLength {
			line = append(line, b)
		}
	}
}

// ParseProgress reads an ffmpeg stats line ("frame=  48 fps=0.0 q=28.0 size=... time=00:00:02.00
// bitrate=... speed=4x"). Lines without frame, time and bitrate are rejected.
func ParseProgress(line string, duration float64) (Progress, bool) {
	if !strings.Contains(line, "frame=") || !strings.Contains(line, "time=") || !strings.Contains(line, "bitrate=") {
		return Progress{}, false
	}

	var p Progress

	for _, field := range strings.Fields(spacesAfterEqual.ReplaceAllString(line, "=")) {
		kv := strings.SplitN(field, "=", 2)

		if len(kv) != 2 {
			continue
		}

		switch kv[0] {
		case "frame":
			p.FramesProcessed = kv[1]
		case "time":
			p.CurrentTime = kv[1]
		case "bitrate":
			p.CurrentBitrate = kv[1]
		case "speed":
			p.Speed = kv[1]
		}
	}

	current := util.DurationToSec(p.CurrentTime)

	p.CurrentDuration = time.Duration(current * float64(time.Second))
	p.CompleteDuration = time.Duration(duration * float64(time.Second))

	if duration > 0 {
		p.Progress = current * 100 / duration

		if p.Progress > 100 {
			p.Progress = 100
		}
	}

	return p, true
}
