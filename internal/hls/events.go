package hls

import (
	"sync"

	"github.com/ali-d-coded/video-streaming-app/internal/probe"
)

type State int

const (
	StateIdle State = iota
	StateProbing
	StateSelecting
	StateEncoding
	StateAggregating
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateSelecting:
		return "selecting"
	case StateEncoding:
		return "encoding"
	case StateAggregating:
		return "aggregating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}

	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type EventType string

const (
	EventState           EventType = "state"
	EventMetadata        EventType = "metadata"
	EventProgress        EventType = "progress"
	EventRenditionDone   EventType = "rendition_done"
	EventRenditionFailed EventType = "rendition_failed"
	EventComplete        EventType = "complete"
	EventFailed          EventType = "failed"
)

// Event is one notification of a conversion. Which fields are set depends on Type.
type Event struct {
	Type       EventType
	State      State
	Rendition  string
	Percent    float64
	Metadata   *probe.SourceMetadata
	Renditions []string
	Result     *Result
	Err        error
}

// Observer receives the events of a single conversion. Calls are never concurrent.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) {
	f(e)
}

// MultiObserver fans an event out to every observer in order.
type MultiObserver []Observer

func (m MultiObserver) Notify(e Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(e)
		}
	}
}

type serialObserver struct {
	mu sync.Mutex
	o  Observer
}

func serialize(o Observer) *serialObserver {
	return &serialObserver{o: o}
}

func (s *serialObserver) Notify(e Event) {
	if s.o == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.o.Notify(e)
}
