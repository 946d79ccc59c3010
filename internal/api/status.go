package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ali-d-coded/video-streaming-app/internal/database"
)

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if s.config.Tracker == nil || !validName(id) {
		writeMessage(w, http.StatusNotFound, videoNotFound)
		return
	}

	st, err := s.config.Tracker.Get(id)

	if err == database.ErrNotFound {
		writeMessage(w, http.StatusNotFound, videoNotFound)
		return
	}

	if err != nil {
		logger.WithError(err).WithField("uid", id).Error("unable to read status")
		writeMessage(w, http.StatusInternalServerError, "Error reading status")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, st)
}
