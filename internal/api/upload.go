package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ali-d-coded/video-streaming-app/internal/hls"
)

const (
	uploadField     = "video"
	multipartMemory = 32 << 20
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type uploadResponse struct {
	Message        string        `json:"message"`
	ID             string        `json:"id"`
	HLSPath        string        `json:"hlsPath"`
	MasterPlaylist string        `json:"masterPlaylist"`
	URL            string        `json:"url"`
	Variants       []hls.Variant `json:"variants"`
	Failed         []string      `json:"failed,omitempty"`
}

// upload stores the posted video, converts it and answers once the renditions are ready.
func (s *server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUpload)

	file, header, err := r.FormFile(uploadField)

	if err != nil {
		var tooLarge *http.MaxBytesError

		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}

		writeMessage(w, http.StatusBadRequest, "No video file uploaded")
		return
	}

	defer file.Close()

	id := strconv.FormatInt(s.config.now().UnixMilli(), 10)
	source := filepath.Join(s.config.UploadsDir, id+"-"+sanitizeFilename(header.Filename))
	outputDir := filepath.Join(s.hlsDir, id)

	entry := logger.WithFields(log.Fields{"uid": id, "source": source})

	if err = saveUpload(file, source); err != nil {
		var tooLarge *http.MaxBytesError

		if errors.As(err, &tooLarge) {
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}

		entry.WithError(err).Error("unable to store upload")
		writeMessage(w, http.StatusInternalServerError, "Error processing video")
		return
	}

	entry.WithField("size", header.Size).Info("video uploaded")

	observers := hls.MultiObserver{progressLogger(entry)}
	if s.config.Tracker != nil {
		observers = append(observers, s.config.Tracker.Observer(id))
	}

	// The conversion outlives a client that disconnects, not the server.
	ctx := s.config.Context

	result, err := s.config.Converter.ConvertToHLS(ctx, source, outputDir, observers)

	if err != nil {
		entry.WithError(err).Error("error processing video")
		writeMessage(w, http.StatusInternalServerError, "Error processing video")

		removeAll(entry, source)
		removeAll(entry, outputDir)
		return
	}

	if s.config.Publish != nil {
		if err = s.config.Publish(ctx, id, outputDir); err != nil {
			entry.WithError(err).Warn("unable to publish renditions")
		}
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		Message:        "Video uploaded and processed successfully!",
		ID:             id,
		HLSPath:        outputDir,
		MasterPlaylist: result.MasterPlaylistPath,
		URL:            "/video/" + id,
		Variants:       result.Variants,
		Failed:         result.FailedRenditions(),
	})
}

func saveUpload(src io.Reader, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "unable to create uploads directory")
	}

	dst, err := os.Create(path)

	if err != nil {
		return errors.Wrapf(err, "unable to create '%s'", path)
	}

	if _, err = io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return errors.Wrapf(err, "unable to write '%s'", path)
	}

	return dst.Close()
}

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(filepath.Base(name), "_")

	if name == "" || name == "." || name == ".." || name == "_" {
		return "video"
	}

	return name
}

func removeAll(entry *log.Entry, path string) {
	if err := os.RemoveAll(path); err != nil {
		entry.WithError(&hls.CleanupError{Path: path, Err: err}).Warn("unable to clean up")
	}
}

func progressLogger(entry *log.Entry) hls.Observer {
	return hls.ObserverFunc(func(e hls.Event) {
		switch e.Type {
		case hls.EventProgress:
			entry.WithFields(log.Fields{"rendition": e.Rendition, "percent": e.Percent}).Debug("processing")
		case hls.EventRenditionFailed:
			entry.WithError(e.Err).WithField("rendition", e.Rendition).Warn("rendition failed")
		case hls.EventState:
			entry.WithField("state", e.State).Debug("state")
		}
	})
}
