package hls

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ali-d-coded/video-streaming-app/internal/ladder"
	"github.com/ali-d-coded/video-streaming-app/internal/metric"
	"github.com/ali-d-coded/video-streaming-app/internal/probe"
)

const DefaultTimeout = 2 * time.Hour

type Prober interface {
	Probe(ctx context.Context, path string) (*probe.SourceMetadata, error)
}

type Config struct {
	Ladder  ladder.Ladder
	Prober  Prober
	Encoder Encoder
	Metric  metric.Client
	Logger  *log.Entry

	// Workers bounds the encodes running at once across every conversion of the processor.
	Workers int
	// Timeout is the deadline of a whole conversion. Zero means DefaultTimeout, negative disables it.
	Timeout time.Duration
	// KeepSource disables deleting the source after a successful conversion.
	KeepSource bool
}

type Processor struct {
	config Config
	sem    *semaphore.Weighted
	logger *log.Entry
	tags   metric.Tags

	conversions       *metric.CounterMetric
	failures          *metric.CounterMetric
	renditionFailures *metric.CounterMetric
	encoding          *metric.GaugeMetric
}

func NewProcessor(config Config) (*Processor, error) {
	if config.Ladder == nil {
		config.Ladder = ladder.Default
	}

	if err := config.Ladder.Validate(); err != nil {
		return nil, errors.Wrap(err, "unable to use ladder")
	}

	if config.Prober == nil {
		config.Prober = probe.NewProber("", nil)
	}

	if config.Encoder == nil {
		config.Encoder = NewFFmpegEncoder("")
	}

	if config.Metric == nil {
		config.Metric = &metric.Null{}
	}

	if config.Logger == nil {
		config.Logger = log.WithFields(log.Fields{"app": "hls"})
	}

	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}

	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	hostname, _ := os.Hostname()
	tags := metric.Tags{"hostname": hostname}

	p := &Processor{
		config: config,
		sem:    semaphore.NewWeighted(int64(config.Workers)),
		logger: config.Logger,
		tags:   tags,

		conversions:       metric.NewCounter("hls_conversions_total", tags),
		failures:          metric.NewCounter("hls_conversions_failed", tags),
		renditionFailures: metric.NewCounter("hls_renditions_failed", tags),
		encoding:          metric.NewGauge("hls_encodes_running", tags),
	}

	config.Metric.Add(p.conversions)
	config.Metric.Add(p.failures)
	config.Metric.Add(p.renditionFailures)
	config.Metric.Add(p.encoding)

	return p, nil
}

// ConversionJob is the in-memory state of one ConvertToHLS call.
type ConversionJob struct {
	SourcePath string
	OutputDir  string

	mu    sync.Mutex
	state State
}

func (j *ConversionJob) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.state
}

func (j *ConversionJob) transition(o Observer, s State, renditions ...string) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()

	o.Notify(Event{Type: EventState, State: s, Renditions: renditions})
}

type Result struct {
	MasterPlaylistPath string
	// Variants holds the successful renditions in ladder order.
	Variants []Variant
	// Failed holds the renditions that failed while others succeeded.
	Failed []*EncodeError
}

func (r *Result) FailedRenditions() []string {
	names := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		names = append(names, f.Rendition)
	}

	return names
}

// ConvertToHLS turns sourcePath into an HLS rendition set under outputDir. Events of this
// conversion, and only of this one, are delivered to obs, which may be nil.
func (p *Processor) ConvertToHLS(ctx context.Context, sourcePath, outputDir string, obs Observer) (*Result, error) {
	o := serialize(obs)
	job := &ConversionJob{SourcePath: sourcePath, OutputDir: outputDir, state: StateIdle}
	logger := p.logger.WithFields(log.Fields{"source": sourcePath, "output": outputDir})

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	p.conversions.Inc()

	result, err := p.convert(ctx, job, o, logger)

	state := "complete"
	if err != nil {
		state = "failed"
	}

	p.config.Metric.Send((&metric.DurationMetric{
		RowMetric: metric.RowMetric{Name: "hls_conversion_duration", Tags: p.withTags(metric.Tags{"state": state})},
		Duration:  time.Since(start),
	}).Metric())

	if err != nil {
		p.failures.Inc()
		job.transition(o, StateFailed)
		o.Notify(Event{Type: EventFailed, State: StateFailed, Err: err})
		logger.WithError(err).Error("conversion failed")
		return nil, err
	}

	job.transition(o, StateComplete)
	o.Notify(Event{Type: EventComplete, State: StateComplete, Result: result})
	logger.WithFields(log.Fields{
		"variants": len(result.Variants),
		"failed":   len(result.Failed),
		"duration": time.Since(start),
	}).Info("conversion complete")

	return result, nil
}

func (p *Processor) convert(ctx context.Context, job *ConversionJob, o Observer, logger *log.Entry) (*Result, error) {
	job.transition(o, StateProbing)

	info, err := os.Stat(job.SourcePath)

	if err != nil {
		if os.IsNotExist(err) {
			return nil, &InputNotFoundError{Path: job.SourcePath}
		}

		return nil, &ProbeError{Path: job.SourcePath, Err: err}
	}

	if info.IsDir() {
		return nil, &InputNotFoundError{Path: job.SourcePath}
	}

	metadata, err := p.config.Prober.Probe(ctx, job.SourcePath)

	if err != nil {
		return nil, &ProbeError{Path: job.SourcePath, Err: err}
	}

	o.Notify(Event{Type: EventMetadata, State: StateProbing, Metadata: metadata})

	if !metadata.HasVideoStream {
		return nil, ErrNoVideoStream
	}

	job.transition(o, StateSelecting)

	selected := ladder.Select(p.config.Ladder, metadata.VideoHeight)

	if len(selected) == 0 {
		return nil, &NoApplicableRenditionError{SourceHeight: metadata.VideoHeight}
	}

	if err = os.MkdirAll(job.OutputDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create output directory '%s'", job.OutputDir)
	}

	names := make([]string, len(selected))
	for i, r := range selected {
		names[i] = r.Name
	}

	job.transition(o, StateEncoding, names...)

	logger.WithFields(log.Fields{"height": metadata.VideoHeight, "renditions": names}).Info("encoding renditions")

	variants := make([]*Variant, len(selected))
	failures := make([]*EncodeError, len(selected))

	var g errgroup.Group

	for i, r := range selected {
		i, r := i, r
		g.Go(func() error {
			if err := p.sem.Acquire(ctx, 1); err != nil {
				failures[i] = &EncodeError{Rendition: r.Name, Err: errors.Wrap(err, "unable to schedule encode")}
				o.Notify(Event{Type: EventRenditionFailed, State: StateEncoding, Rendition: r.Name, Err: failures[i]})
				return nil
			}
			defer p.sem.Release(1)

			variants[i], failures[i] = p.encode(ctx, job, r, metadata.DurationSeconds, o, logger)
			return nil
		})
	}

	_ = g.Wait()

	job.transition(o, StateAggregating)

	result := &Result{}

	for i := range selected {
		if failures[i] != nil {
			result.Failed = append(result.Failed, failures[i])
			continue
		}

		result.Variants = append(result.Variants, *variants[i])
	}

	if len(result.Variants) == 0 {
		p.cleanup(job.OutputDir, logger)
		return nil, &AllRenditionsFailedError{Failures: result.Failed}
	}

	result.MasterPlaylistPath, err = WriteMasterPlaylist(job.OutputDir, result.Variants)

	if err != nil {
		return nil, err
	}

	if !p.config.KeepSource {
		if err = os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
			logger.WithError(&CleanupError{Path: job.SourcePath, Err: err}).Warn("unable to delete source")
		}
	}

	return result, nil
}

func (p *Processor) encode(ctx context.Context, job *ConversionJob, r ladder.Rendition, duration float64, o Observer, logger *log.Entry) (*Variant, *EncodeError) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger = logger.WithField("rendition", r.Name)
	logger.Debug("encode started")

	p.encoding.Add(1)
	defer p.encoding.Add(-1)

	start := time.Now()

	variant, err := p.config.Encoder.Encode(ctx, EncodeRequest{
		SourcePath: job.SourcePath,
		OutputDir:  job.OutputDir,
		Rendition:  r,
		Duration:   duration,
	}, func(percent float64) {
		o.Notify(Event{Type: EventProgress, State: StateEncoding, Rendition: r.Name, Percent: percent})
	})

	if err == nil && variant == nil {
		err = errors.New("encoder returned no variant")
	}

	if err != nil {
		var encodeErr *EncodeError

		if !errors.As(err, &encodeErr) {
			encodeErr = &EncodeError{Rendition: r.Name, Err: err}
		}

		p.renditionFailures.Inc()
		o.Notify(Event{Type: EventRenditionFailed, State: StateEncoding, Rendition: r.Name, Err: encodeErr})
		logger.WithError(encodeErr).Warn("encode failed")

		return nil, encodeErr
	}

	p.config.Metric.Send((&metric.DurationMetric{
		RowMetric: metric.RowMetric{Name: "hls_rendition_duration", Tags: p.withTags(metric.Tags{"rendition": r.Name})},
		Duration:  time.Since(start),
	}).Metric())

	o.Notify(Event{Type: EventRenditionDone, State: StateEncoding, Rendition: r.Name, Percent: 100})
	logger.WithField("duration", time.Since(start)).Debug("encode done")

	return variant, nil
}

func (p *Processor) cleanup(dir string, logger *log.Entry) {
	if err := os.RemoveAll(dir); err != nil {
		logger.WithError(&CleanupError{Path: dir, Err: err}).Warn("unable to remove partial output")
	}
}

func (p *Processor) withTags(extra metric.Tags) metric.Tags {
	tags := make(metric.Tags, len(p.tags)+len(extra))

	for k, v := range p.tags {
		tags[k] = v
	}

	for k, v := range extra {
		tags[k] = v
	}

	return tags
}
