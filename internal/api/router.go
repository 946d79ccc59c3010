package api

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	"github.com/ali-d-coded/video-streaming-app/internal/hls"
	"github.com/ali-d-coded/video-streaming-app/internal/status"
)

// DefaultMaxUpload is the upload size limit when none is configured.
const DefaultMaxUpload = 1000 << 20

var logger = log.WithFields(log.Fields{"app": "api"})

type Converter interface {
	ConvertToHLS(ctx context.Context, sourcePath, outputDir string, obs hls.Observer) (*hls.Result, error)
}

// PublishFunc copies a finished rendition tree somewhere else, e.g. object storage.
type PublishFunc func(ctx context.Context, id string, dir string) error

type Config struct {
	// UploadsDir holds the uploaded sources, renditions live under UploadsDir/hls.
	UploadsDir string
	MaxUpload  int64
	// UploadRate limits uploads per client IP and minute, 0 disables it.
	UploadRate int

	Converter Converter
	Tracker   *status.Tracker
	Publish   PublishFunc

	// Context bounds running conversions independently of the uploading client. Cancelling it
	// stops them and lets the processor clean up. Defaults to context.Background().
	Context context.Context

	now func() time.Time
}

type server struct {
	config Config
	hlsDir string
}

func NewRouter(config Config) http.Handler {
	if config.MaxUpload <= 0 {
		config.MaxUpload = DefaultMaxUpload
	}

	if config.Context == nil {
		config.Context = context.Background()
	}

	if config.now == nil {
		config.now = time.Now
	}

	s := &server{config: config, hlsDir: filepath.Join(config.UploadsDir, "hls")}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)

	r.Get("/healthz", s.health)

	r.Group(func(r chi.Router) {
		if config.UploadRate > 0 {
			r.Use(httprate.LimitByIP(config.UploadRate, time.Minute))
		}

		r.Post("/upload", s.upload)
	})

	r.Route("/video/{id}", func(r chi.Router) {
		r.Use(cors)
		r.Use(middleware.GetHead)
		r.Use(compress)

		r.Get("/", s.master)
		r.Get("/status", s.status)
		r.Get("/{rendition}/{segment}", s.segment)
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Range")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// compress gzips playlists and JSON, except for range requests whose Content-Range counts identity
// bytes.
func compress(next http.Handler) http.Handler {
	compressed := middleware.Compress(5, hls.PlaylistContentType, "application/json")(next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "" {
			next.ServeHTTP(w, r)
			return
		}

		compressed.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		entry := logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		})

		if ww.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}

		entry.Debug("request")
	})
}
