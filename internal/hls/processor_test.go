package hls

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ali-d-coded/video-streaming-app/internal/ladder"
	"github.com/ali-d-coded/video-streaming-app/internal/probe"
)

type fakeProber struct {
	metadata map[string]*probe.SourceMetadata
	err      error
}

func (f *fakeProber) Probe(ctx context.Context, p string) (*probe.SourceMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}

	m, ok := f.metadata[p]

	if !ok {
		return nil, errors.Errorf("no metadata for %s", p)
	}

	return m, nil
}

type fakeEncoder struct {
	delay time.Duration
	fail  map[string]bool

	mu         sync.Mutex
	calls      []string
	running    int
	maxRunning int
}

func (f *fakeEncoder) Encode(ctx context.Context, req EncodeRequest, progress ProgressFunc) (*Variant, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Rendition.Name)
	f.running++
	if f.running > f.maxRunning {
		f.maxRunning = f.running
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	dir := filepath.Join(req.OutputDir, req.Rendition.Name)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	progress(50)

	timer := time.NewTimer(f.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, &EncodeError{Rendition: req.Rendition.Name, Err: ctx.Err()}
	}

	if f.fail[req.Rendition.Name] {
		return nil, errors.New("encoder exploded")
	}

	if err := os.WriteFile(filepath.Join(dir, "playlist.m3u8"), []byte("#EXTM3U\n"), 0644); err != nil {
		return nil, err
	}

	return &Variant{Rendition: req.Rendition, Playlist: path.Join(req.Rendition.Name, "playlist.m3u8")}, nil
}

func (f *fakeEncoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Notify(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s []State
	for _, e := range r.events {
		if e.Type == EventState {
			s = append(s, e.State)
		}
	}
	return s
}

func (r *recorder) renditions(t EventType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for _, e := range r.events {
		if e.Type == t {
			names = append(names, e.Rendition)
		}
	}
	return names
}

type fixture struct {
	dir    string
	source string
	output string
	prober *fakeProber
	enc    *fakeEncoder
}

func newFixture(t *testing.T, height int) *fixture {
	dir := t.TempDir()
	source := filepath.Join(dir, "1700000000000-clip.mp4")
	require.NoError(t, os.WriteFile(source, []byte("not really a video"), 0644))

	return &fixture{
		dir:    dir,
		source: source,
		output: filepath.Join(dir, "hls", "1700000000000"),
		prober: &fakeProber{metadata: map[string]*probe.SourceMetadata{
			source: {DurationSeconds: 30, VideoHeight: height, VideoWidth: height * 16 / 9, HasVideoStream: true},
		}},
		enc: &fakeEncoder{fail: map[string]bool{}},
	}
}

func (f *fixture) processor(t *testing.T, config Config) *Processor {
	config.Prober = f.prober
	config.Encoder = f.enc

	p, err := NewProcessor(config)
	require.NoError(t, err)

	return p
}

func variantNames(variants []Variant) []string {
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = v.Name
	}
	return names
}

func TestConvertToHLS(t *testing.T) {
	f := newFixture(t, 1080)
	p := f.processor(t, Config{})
	rec := &recorder{}

	result, err := p.ConvertToHLS(context.Background(), f.source, f.output, rec)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.output, "master.m3u8"), result.MasterPlaylistPath)
	assert.Equal(t, []string{"240p", "360p", "720p", "1080p"}, variantNames(result.Variants))
	assert.Empty(t, result.Failed)

	content, err := os.ReadFile(result.MasterPlaylistPath)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U\n"+
		"#EXT-X-VERSION:3\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=400000,RESOLUTION=426x240\n"+
		"240p/playlist.m3u8\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n"+
		"360p/playlist.m3u8\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n"+
		"720p/playlist.m3u8\n"+
		"#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080\n"+
		"1080p/playlist.m3u8\n", string(content))

	_, err = os.Stat(f.source)
	assert.True(t, os.IsNotExist(err), "source should be consumed")

	assert.Equal(t, []State{StateProbing, StateSelecting, StateEncoding, StateAggregating, StateComplete}, rec.states())
	assert.ElementsMatch(t, []string{"240p", "360p", "720p", "1080p"}, rec.renditions(EventRenditionDone))
	assert.Len(t, rec.renditions(EventProgress), 4)
	assert.Equal(t, EventComplete, rec.events[len(rec.events)-1].Type)
}

func TestConvertToHLS_KeepSource(t *testing.T) {
	f := newFixture(t, 360)
	p := f.processor(t, Config{KeepSource: true})

	result, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"240p", "360p"}, variantNames(result.Variants))

	_, err = os.Stat(f.source)
	assert.NoError(t, err)
}

func TestConvertToHLS_PartialFailure(t *testing.T) {
	f := newFixture(t, 1080)
	f.enc.fail["720p"] = true
	p := f.processor(t, Config{})
	rec := &recorder{}

	result, err := p.ConvertToHLS(context.Background(), f.source, f.output, rec)
	require.NoError(t, err)

	assert.Equal(t, []string{"240p", "360p", "1080p"}, variantNames(result.Variants))
	assert.Equal(t, []string{"720p"}, result.FailedRenditions())
	assert.Equal(t, []string{"720p"}, rec.renditions(EventRenditionFailed))

	content, err := os.ReadFile(result.MasterPlaylistPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "720p")
	assert.Contains(t, string(content), "1080p/playlist.m3u8")
}

func TestConvertToHLS_AllRenditionsFailed(t *testing.T) {
	f := newFixture(t, 360)
	f.enc.fail["240p"] = true
	f.enc.fail["360p"] = true
	p := f.processor(t, Config{})
	rec := &recorder{}

	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, rec)

	var allErr *AllRenditionsFailedError
	require.True(t, errors.As(err, &allErr))
	assert.Len(t, allErr.Failures, 2)

	_, statErr := os.Stat(filepath.Join(f.output, "master.m3u8"))
	assert.True(t, os.IsNotExist(statErr))

	_, statErr = os.Stat(f.output)
	assert.True(t, os.IsNotExist(statErr), "partial output should be removed")

	_, statErr = os.Stat(f.source)
	assert.NoError(t, statErr, "source is kept for a retry")

	states := rec.states()
	assert.Equal(t, StateFailed, states[len(states)-1])
}

func TestConvertToHLS_InputNotFound(t *testing.T) {
	f := newFixture(t, 1080)
	p := f.processor(t, Config{})

	_, err := p.ConvertToHLS(context.Background(), filepath.Join(f.dir, "missing.mp4"), f.output, nil)

	var notFound *InputNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, f.enc.Calls())
}

func TestConvertToHLS_ProbeError(t *testing.T) {
	f := newFixture(t, 1080)
	f.prober.err = errors.New("moov atom not found")
	p := f.processor(t, Config{})

	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, f.source, probeErr.Path)
	assert.Empty(t, f.enc.Calls())
}

func TestConvertToHLS_NoVideoStream(t *testing.T) {
	f := newFixture(t, 1080)
	f.prober.metadata[f.source].HasVideoStream = false
	p := f.processor(t, Config{})

	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)

	assert.True(t, errors.Is(err, ErrNoVideoStream))
	assert.Empty(t, f.enc.Calls())
}

func TestConvertToHLS_NoApplicableRendition(t *testing.T) {
	f := newFixture(t, 100)
	p := f.processor(t, Config{})
	rec := &recorder{}

	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, rec)

	var noRendition *NoApplicableRenditionError
	require.True(t, errors.As(err, &noRendition))
	assert.Equal(t, 100, noRendition.SourceHeight)
	assert.Empty(t, f.enc.Calls())
	assert.Equal(t, []State{StateProbing, StateSelecting, StateFailed}, rec.states())

	_, statErr := os.Stat(f.output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConvertToHLS_Concurrent(t *testing.T) {
	f := newFixture(t, 1080)
	f.enc.delay = 300 * time.Millisecond
	p := f.processor(t, Config{Workers: 4})

	start := time.Now()
	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, 4, f.enc.maxRunning)
}

func TestConvertToHLS_WorkersBound(t *testing.T) {
	f := newFixture(t, 1080)
	f.enc.delay = 10 * time.Millisecond
	p := f.processor(t, Config{Workers: 1})

	result, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)
	require.NoError(t, err)

	assert.Len(t, result.Variants, 4)
	assert.Equal(t, 1, f.enc.maxRunning)
}

func TestConvertToHLS_Timeout(t *testing.T) {
	f := newFixture(t, 360)
	f.enc.delay = 5 * time.Second
	p := f.processor(t, Config{Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := p.ConvertToHLS(context.Background(), f.source, f.output, nil)

	var allErr *AllRenditionsFailedError
	require.True(t, errors.As(err, &allErr))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConvertToHLS_RequestScopedObservers(t *testing.T) {
	small := newFixture(t, 360)
	large := newFixture(t, 1080)

	small.prober.metadata[large.source] = large.prober.metadata[large.source]
	p := small.processor(t, Config{Workers: 2})

	recSmall, recLarge := &recorder{}, &recorder{}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		_, err := p.ConvertToHLS(context.Background(), small.source, small.output, recSmall)
		assert.NoError(t, err)
	}()

	go func() {
		defer wg.Done()
		_, err := p.ConvertToHLS(context.Background(), large.source, large.output, recLarge)
		assert.NoError(t, err)
	}()

	wg.Wait()

	assert.ElementsMatch(t, []string{"240p", "360p"}, recSmall.renditions(EventRenditionDone))
	assert.ElementsMatch(t, []string{"240p", "360p", "720p", "1080p"}, recLarge.renditions(EventRenditionDone))
	assert.LessOrEqual(t, small.enc.maxRunning, 2)
}

func TestNewProcessor_InvalidLadder(t *testing.T) {
	_, err := NewProcessor(Config{Ladder: ladderWithDuplicate()})
	assert.Error(t, err)
}

func ladderWithDuplicate() ladder.Ladder {
	return ladder.Ladder{
		{Name: "360p", Width: 640, Height: 360, Bitrate: "800k"},
		{Name: "360p", Width: 1280, Height: 720, Bitrate: "2500k"},
	}
}
