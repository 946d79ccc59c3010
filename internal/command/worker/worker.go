package worker

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ali-d-coded/video-streaming-app/internal/command/root"
	"github.com/ali-d-coded/video-streaming-app/internal/hls"
	"github.com/ali-d-coded/video-streaming-app/internal/metric"
	"github.com/ali-d-coded/video-streaming-app/internal/queue"
	"github.com/ali-d-coded/video-streaming-app/internal/signal"
	"github.com/ali-d-coded/video-streaming-app/internal/status"
)

var (
	logger = log.WithFields(log.Fields{
		"app":     "worker",
		"version": "dev",
	})

	validUID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
)

func init() {
	root.Cmd.AddCommand(cmd)

	cmd.Flags().Duration("poll-interval", 5*time.Second, "Wait between polls of an empty queue")
	cmd.Flags().Int("idle-exit", 0, "Exit after this many empty polls in a row, 0 to run forever")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		logger.WithError(err).Fatal("flag biding failed")
	}
}

var cmd = &cobra.Command{
	Use:   "worker",
	Short: "Convert videos requested on the queue",
	Long:  `Streamer worker: consume conversion requests from RabbitMQ, convert them to HLS and publish the results`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("starting worker")

		cmpt := root.GetComponent(true, true, viper.GetString("publish") != "", true)
		defer cmpt.Close()

		processor, err := root.NewProcessor(cmpt.Metric, viper.GetBool("keep-source"))

		if err != nil {
			cmpt.Close()
			logger.WithError(err).Fatal("unable to create processor")
		}

		for _, q := range []string{queue.RequestQueue, queue.ResponseQueue, queue.ProgressQueue} {
			if err = cmpt.Channel.CreateQueue(q); err != nil {
				cmpt.Close()
				logger.WithError(err).Fatal("unable to create queues")
			}
		}

		w := &worker{
			channel:      cmpt.Channel,
			converter:    processor,
			tracker:      status.NewTracker(cmpt.DB, status.DefaultTTL),
			publish:      root.Publisher(cmpt.Bucket),
			metric:       cmpt.Metric,
			uploads:      root.UploadsDir(),
			pollInterval: viper.GetDuration("poll-interval"),
			idleExit:     viper.GetInt("idle-exit"),
		}

		w.Run(signal.WatchInterrupt(context.Background(), 25*time.Second))
	},
}

type converter interface {
	ConvertToHLS(ctx context.Context, sourcePath, outputDir string, obs hls.Observer) (*hls.Result, error)
}

type worker struct {
	channel   queue.Channel
	converter converter
	tracker   *status.Tracker
	publish   func(ctx context.Context, id string, dir string) error
	metric    metric.Client
	uploads   string

	pollInterval time.Duration
	idleExit     int
}

func (w *worker) Run(ctx context.Context) {
	logger.Info("worker started")

	metricCtx, stopMetric := context.WithCancel(context.Background())
	defer stopMetric()

	go w.metric.Ticker(metricCtx, 10*time.Second)

	hostname, _ := os.Hostname()
	tags := metric.Tags{"hostname": hostname}

	tasks := metric.NewCounter("streamer_worker_tasks_total", tags)
	running := metric.NewGauge("streamer_worker_tasks_count", tags)
	failures := metric.NewCounter("streamer_worker_tasks_errors", tags)

	w.metric.Add(tasks)
	w.metric.Add(running)
	w.metric.Add(failures)

	started := time.Now()
	idle := 0

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		if w.idleExit > 0 && idle >= w.idleExit {
			logger.Infof("no messages after %d polls, shutdown", idle)
			break loop
		}

		var req queue.ConversionRequest
		ok, delivery, err := w.channel.Consume(queue.RequestQueue, &req)

		if err != nil {
			logger.WithError(err).Errorf("unable to consume %s", queue.RequestQueue)
			w.wait(ctx)
			continue
		}

		if !ok {
			idle++
			w.wait(ctx)
			continue
		}

		idle = 0
		tasks.Inc()
		running.Add(1)

		taskStarted := time.Now()
		err = w.HandleRequest(ctx, req)

		running.Add(-1)

		if err != nil {
			if ctx.Err() != nil {
				if err := delivery.Nack(true); err != nil {
					logger.WithError(err).Error("unable to requeue request")
				} else {
					logger.WithField("uid", req.UID).Info("request requeued")
				}

				break loop
			}

			_ = delivery.Nack(false)
			failures.Inc()
			logger.WithError(err).WithField("uid", req.UID).Error("error while handling request")
			continue
		}

		if err = delivery.Ack(); err != nil {
			logger.WithError(err).WithField("uid", req.UID).Error("unable to ack request")
		}

		w.metric.Send((&metric.DurationMetric{
			RowMetric: metric.RowMetric{Name: "streamer_worker_tasks_duration", Tags: metric.Tags{"hostname": hostname, "uid": req.UID}},
			Duration:  time.Since(taskStarted),
		}).Metric())
	}

	logger.Info("worker stopped")

	w.metric.Send((&metric.DurationMetric{
		RowMetric: metric.RowMetric{Name: "streamer_worker_duration", Tags: tags},
		Duration:  time.Since(started),
	}).Metric())
}

func (w *worker) wait(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HandleRequest converts one requested video and publishes the response. A request interrupted by
// ctx keeps its source so it can be requeued; other failures are terminal and remove it.
func (w *worker) HandleRequest(ctx context.Context, req queue.ConversionRequest) error {
	entry := logger.WithFields(log.Fields{"uid": req.UID, "input": req.Input})
	entry.Info("receive conversion request")

	if !validUID.MatchString(req.UID) {
		return w.respondError(req, errors.Errorf("invalid uid '%s'", req.UID))
	}

	outputDir := filepath.Join(w.uploads, "hls", req.UID)

	obs := hls.MultiObserver{newProgressPublisher(w.channel, req.UID)}
	if w.tracker != nil {
		obs = append(obs, w.tracker.Observer(req.UID))
	}

	result, err := w.converter.ConvertToHLS(ctx, req.Input, outputDir, obs)

	if err != nil {
		if rmErr := os.RemoveAll(outputDir); rmErr != nil {
			entry.WithError(&hls.CleanupError{Path: outputDir, Err: rmErr}).Warn("unable to clean up")
		}

		if ctx.Err() != nil {
			return errors.Wrapf(err, "conversion of '%s' interrupted", req.UID)
		}

		if rmErr := os.Remove(req.Input); rmErr != nil && !os.IsNotExist(rmErr) {
			entry.WithError(&hls.CleanupError{Path: req.Input, Err: rmErr}).Warn("unable to clean up")
		}

		return w.respondError(req, err)
	}

	if w.publish != nil {
		if err = w.publish(ctx, req.UID, outputDir); err != nil {
			return w.respondError(req, errors.Wrap(err, "unable to publish renditions"))
		}
	}

	variants := make([]string, len(result.Variants))
	for i, v := range result.Variants {
		variants[i] = v.Name
	}

	if err = w.channel.Publish(queue.ResponseQueue, queue.ConversionResponse{
		UID:            req.UID,
		MasterPlaylist: result.MasterPlaylistPath,
		Variants:       variants,
		Failed:         result.FailedRenditions(),
	}); err != nil {
		return errors.Wrapf(err, "unable to publish in %s", queue.ResponseQueue)
	}

	entry.WithField("variants", variants).Info("send conversion response")

	return nil
}

func (w *worker) respondError(req queue.ConversionRequest, cause error) error {
	if err := w.channel.Publish(queue.ResponseQueue, queue.ConversionResponse{
		UID:   req.UID,
		Error: cause.Error(),
	}); err != nil {
		logger.WithError(err).WithField("uid", req.UID).Errorf("unable to publish in %s", queue.ResponseQueue)
	}

	return errors.Wrapf(cause, "unable to convert '%s'", req.UID)
}

// progressPublisher forwards state changes and whole-percent progress steps to the progress queue.
type progressPublisher struct {
	channel queue.Channel
	uid     string
	last    map[string]int
}

func newProgressPublisher(channel queue.Channel, uid string) *progressPublisher {
	return &progressPublisher{channel: channel, uid: uid, last: make(map[string]int)}
}

func (p *progressPublisher) Notify(e hls.Event) {
	msg := queue.ConversionProgress{UID: p.uid, State: e.State.String()}

	switch e.Type {
	case hls.EventState:
	case hls.EventProgress:
		percent := int(e.Percent)

		if last, ok := p.last[e.Rendition]; ok && last == percent {
			return
		}

		p.last[e.Rendition] = percent
		msg.Rendition = e.Rendition
		msg.Percent = e.Percent
	case hls.EventRenditionDone:
		msg.Rendition = e.Rendition
		msg.Percent = 100
	default:
		return
	}

	if err := p.channel.Publish(queue.ProgressQueue, msg); err != nil {
		logger.WithError(err).WithField("uid", p.uid).Debugf("unable to publish in %s", queue.ProgressQueue)
	}
}
