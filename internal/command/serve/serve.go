package serve

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/ali-d-coded/video-streaming-app/internal/api"
	"github.com/ali-d-coded/video-streaming-app/internal/command/root"
	"github.com/ali-d-coded/video-streaming-app/internal/metric"
	"github.com/ali-d-coded/video-streaming-app/internal/signal"
	"github.com/ali-d-coded/video-streaming-app/internal/status"
)

const (
	shutdownTimeout = 20 * time.Second
	cleanupTimeout  = 5 * time.Second
)

var (
	logger = log.WithFields(log.Fields{
		"app":     "serve",
		"version": "dev",
	})
)

func init() {
	root.Cmd.AddCommand(cmd)

	cmd.Flags().Int("port", 5000, "HTTP port")
	cmd.Flags().Int64("max-upload", api.DefaultMaxUpload, "Maximum upload size in bytes")
	cmd.Flags().Int("upload-rate", 0, "Uploads allowed per client and minute, 0 for unlimited")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		logger.WithError(err).Fatal("flag biding failed")
	}
}

var cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve uploads and HLS renditions over HTTP",
	Long:  `Streamer server: accept video uploads, convert them to HLS and stream the renditions`,
	Run: func(cmd *cobra.Command, args []string) {
		logger.Info("starting server")

		cmpt := root.GetComponent(true, false, viper.GetString("publish") != "", true)
		defer cmpt.Close()

		processor, err := root.NewProcessor(cmpt.Metric, viper.GetBool("keep-source"))

		if err != nil {
			logger.WithError(err).Fatal("unable to create processor")
		}

		conversions, stopConversions := context.WithCancel(context.Background())
		defer stopConversions()

		s := &server{
			addr:            fmt.Sprintf(":%d", viper.GetInt("port")),
			metric:          cmpt.Metric,
			stopConversions: stopConversions,
			handler: api.NewRouter(api.Config{
				UploadsDir: root.UploadsDir(),
				MaxUpload:  viper.GetInt64("max-upload"),
				UploadRate: viper.GetInt("upload-rate"),
				Converter:  processor,
				Tracker:    status.NewTracker(cmpt.DB, status.DefaultTTL),
				Publish:    root.Publisher(cmpt.Bucket),
				Context:    conversions,
			}),
		}

		if err = s.Run(signal.WatchInterrupt(context.Background(), shutdownTimeout+cleanupTimeout+5*time.Second)); err != nil {
			logger.WithError(err).Fatal("server stopped")
		}

		logger.Info("server stopped")
	},
}

type server struct {
	addr    string
	handler http.Handler
	metric  metric.Client

	// stopConversions cancels the conversions still running once the shutdown timeout expired.
	stopConversions context.CancelFunc
	shutdownTimeout time.Duration
}

// Run serves until ctx is cancelled, then waits for in-flight requests. Conversions that outlast the
// shutdown timeout are cancelled and get cleanupTimeout to remove their partial output.
func (s *server) Run(ctx context.Context) error {
	timeout := s.shutdownTimeout

	if timeout <= 0 {
		timeout = shutdownTimeout
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.metric.Ticker(ctx, 10*time.Second)
		return nil
	})

	g.Go(func() error {
		logger.Infof("listening on %s", s.addr)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrapf(err, "unable to listen on %s", s.addr)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		err := shutdown(srv, timeout)

		if err == nil || s.stopConversions == nil {
			return err
		}

		logger.WithError(err).Warn("cancelling running conversions")
		s.stopConversions()

		return shutdown(srv, cleanupTimeout)
	})

	return g.Wait()
}

func shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "unable to shutdown gracefully")
	}

	return nil
}
