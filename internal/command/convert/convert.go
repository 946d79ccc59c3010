package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ali-d-coded/video-streaming-app/internal/command/root"
	"github.com/ali-d-coded/video-streaming-app/internal/hls"
	"github.com/ali-d-coded/video-streaming-app/internal/signal"
	"github.com/ali-d-coded/video-streaming-app/internal/status"
)

var (
	logger = log.WithFields(log.Fields{
		"app":     "convert",
		"version": "dev",
	})
)

func init() {
	root.Cmd.AddCommand(cmd)

	cmd.Flags().String("id", "", "Conversion id, current Unix time in milliseconds when empty")
}

var cmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Convert one video to HLS",
	Long:  `Convert a local video into HLS renditions under <uploads>/hls/<id> and print the result`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, _ := cmd.Flags().GetString("id")
		if id == "" {
			id = strconv.FormatInt(time.Now().UnixMilli(), 10)
		}

		cmpt := root.GetComponent(true, false, viper.GetString("publish") != "", true)
		defer cmpt.Close()

		processor, err := root.NewProcessor(cmpt.Metric, true)

		if err != nil {
			logger.WithError(err).Fatal("unable to create processor")
		}

		c := &converter{
			processor: processor,
			tracker:   status.NewTracker(cmpt.DB, status.DefaultTTL),
			publish:   root.Publisher(cmpt.Bucket),
			output:    os.Stdout,
		}

		ctx := signal.WatchInterrupt(context.Background(), 10*time.Second)

		if err = c.Convert(ctx, id, args[0], root.OutputDir(id)); err != nil {
			cmpt.Close()
			logger.WithError(err).Fatal("conversion failed")
		}
	},
}

type processor interface {
	ConvertToHLS(ctx context.Context, sourcePath, outputDir string, obs hls.Observer) (*hls.Result, error)
}

type converter struct {
	processor processor
	tracker   *status.Tracker
	publish   func(ctx context.Context, id string, dir string) error
	output    io.Writer
}

type report struct {
	ID             string        `json:"id"`
	MasterPlaylist string        `json:"masterPlaylist"`
	Variants       []hls.Variant `json:"variants"`
	Failed         []string      `json:"failed,omitempty"`
}

// Convert runs one conversion, keeping the input, and prints a JSON report.
func (c *converter) Convert(ctx context.Context, id, input, outputDir string) error {
	entry := logger.WithFields(log.Fields{"uid": id, "input": input})

	obs := hls.MultiObserver{hls.ObserverFunc(func(e hls.Event) {
		switch e.Type {
		case hls.EventProgress:
			entry.WithFields(log.Fields{
				"rendition": e.Rendition,
				"progress":  fmt.Sprintf("%05.2f%%", e.Percent),
			}).Debug("encoding")
		case hls.EventState:
			entry.WithField("state", e.State).Info("state")
		case hls.EventRenditionFailed:
			entry.WithError(e.Err).WithField("rendition", e.Rendition).Warn("rendition failed")
		}
	})}

	if c.tracker != nil {
		obs = append(obs, c.tracker.Observer(id))
	}

	result, err := c.processor.ConvertToHLS(ctx, input, outputDir, obs)

	if err != nil {
		if rmErr := os.RemoveAll(outputDir); rmErr != nil {
			entry.WithError(&hls.CleanupError{Path: outputDir, Err: rmErr}).Warn("unable to clean up")
		}

		return errors.Wrapf(err, "unable to convert '%s'", input)
	}

	if c.publish != nil {
		if err = c.publish(ctx, id, outputDir); err != nil {
			return errors.Wrap(err, "unable to publish renditions")
		}
	}

	enc := json.NewEncoder(c.output)
	enc.SetIndent("", "  ")

	return enc.Encode(report{
		ID:             id,
		MasterPlaylist: result.MasterPlaylistPath,
		Variants:       result.Variants,
		Failed:         result.FailedRenditions(),
	})
}
