package status

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ali-d-coded/video-streaming-app/internal/database"
	"github.com/ali-d-coded/video-streaming-app/internal/hls"
)

const keyPrefix = "status."

// DefaultTTL is how long a status outlives its last update.
const DefaultTTL = 24 * time.Hour

var logger = log.WithFields(log.Fields{"app": "status"})

const (
	RenditionPending  = "pending"
	RenditionEncoding = "encoding"
	RenditionDone     = "done"
	RenditionFailed   = "failed"
)

type Rendition struct {
	Name    string  `json:"name"`
	State   string  `json:"state"`
	Percent float64 `json:"percent"`
	Error   string  `json:"error,omitempty"`
}

type Status struct {
	ID             string      `json:"id"`
	State          string      `json:"state"`
	Renditions     []Rendition `json:"renditions"`
	MasterPlaylist string      `json:"masterPlaylist,omitempty"`
	Error          string      `json:"error,omitempty"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Tracker keeps the status of conversions in a database so any instance can report them.
type Tracker struct {
	db  database.Database
	ttl time.Duration
}

func NewTracker(db database.Database, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Tracker{db: db, ttl: ttl}
}

func (t *Tracker) Get(id string) (*Status, error) {
	data, err := t.db.Get(keyPrefix + id)

	if err != nil {
		return nil, err
	}

	var s Status

	if err = json.Unmarshal([]byte(data), &s); err != nil {
		return nil, errors.Wrapf(err, "unable to decode status of '%s'", id)
	}

	return &s, nil
}

func (t *Tracker) Delete(id string) error {
	return t.db.Delete(keyPrefix + id)
}

func (t *Tracker) save(s *Status) error {
	s.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(s)

	if err != nil {
		return errors.Wrapf(err, "unable to encode status of '%s'", s.ID)
	}

	return t.db.Set(keyPrefix+s.ID, string(data), t.ttl)
}

// Observer returns the observer recording the conversion id. It must be used for a single
// conversion and starts by recording the idle state.
func (t *Tracker) Observer(id string) hls.Observer {
	o := &observer{tracker: t, status: &Status{ID: id, State: hls.StateIdle.String()}}
	o.persist()

	return o
}

type observer struct {
	tracker *Tracker
	status  *Status
}

func (o *observer) Notify(e hls.Event) {
	switch e.Type {
	case hls.EventState:
		o.status.State = e.State.String()

		if e.State == hls.StateEncoding {
			o.status.Renditions = make([]Rendition, len(e.Renditions))
			for i, name := range e.Renditions {
				o.status.Renditions[i] = Rendition{Name: name, State: RenditionPending}
			}
		}
	case hls.EventProgress:
		r := o.rendition(e.Rendition)

		if r == nil || int(r.Percent) == int(e.Percent) && r.State == RenditionEncoding {
			return
		}

		r.State = RenditionEncoding
		r.Percent = e.Percent
	case hls.EventRenditionDone:
		if r := o.rendition(e.Rendition); r != nil {
			r.State = RenditionDone
			r.Percent = 100
		}
	case hls.EventRenditionFailed:
		if r := o.rendition(e.Rendition); r != nil {
			r.State = RenditionFailed
			if e.Err != nil {
				r.Error = e.Err.Error()
			}
		}
	case hls.EventComplete:
		o.status.State = hls.StateComplete.String()
		if e.Result != nil {
			o.status.MasterPlaylist = e.Result.MasterPlaylistPath
		}
	case hls.EventFailed:
		o.status.State = hls.StateFailed.String()
		if e.Err != nil {
			o.status.Error = e.Err.Error()
		}
	default:
		return
	}

	o.persist()
}

func (o *observer) rendition(name string) *Rendition {
	for i := range o.status.Renditions {
		if o.status.Renditions[i].Name == name {
			return &o.status.Renditions[i]
		}
	}

	return nil
}

func (o *observer) persist() {
	if err := o.tracker.save(o.status); err != nil {
		logger.WithError(err).WithField("uid", o.status.ID).Warn("unable to save status")
	}
}
