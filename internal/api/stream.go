package api

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ali-d-coded/video-streaming-app/internal/hls"
)

const (
	segmentCacheControl  = "public, max-age=86400"
	playlistCacheControl = "no-cache"

	videoNotFound   = "Video not found"
	segmentNotFound = "Segment not found"
)

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func validName(name string) bool {
	return safeName.MatchString(name) && !strings.Contains(name, "..")
}

func (s *server) master(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !validName(id) {
		writeMessage(w, http.StatusNotFound, videoNotFound)
		return
	}

	s.serveFile(w, r, filepath.Join(s.hlsDir, id, hls.MasterPlaylistName), hls.PlaylistContentType, playlistCacheControl, videoNotFound)
}

func (s *server) segment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rendition := chi.URLParam(r, "rendition")
	segment := chi.URLParam(r, "segment")

	contentType := hls.ContentType(segment)

	if !validName(id) || !validName(rendition) || !validName(segment) || contentType == "" {
		writeMessage(w, http.StatusNotFound, segmentNotFound)
		return
	}

	cacheControl := segmentCacheControl
	if contentType == hls.PlaylistContentType {
		cacheControl = playlistCacheControl
	}

	s.serveFile(w, r, filepath.Join(s.hlsDir, id, rendition, segment), contentType, cacheControl, segmentNotFound)
}

// serveFile streams a file from disk. Range and conditional requests are handled by http.ServeContent.
func (s *server) serveFile(w http.ResponseWriter, r *http.Request, path, contentType, cacheControl, notFound string) {
	f, err := os.Open(path)

	if err != nil {
		if os.IsNotExist(err) {
			writeMessage(w, http.StatusNotFound, notFound)
			return
		}

		logger.WithError(err).WithField("path", path).Error("unable to open file")
		writeMessage(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	defer f.Close()

	info, err := f.Stat()

	if err != nil || info.IsDir() {
		writeMessage(w, http.StatusNotFound, notFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControl)

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
