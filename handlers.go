package rawsheets

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/sirupsen/logrus"
)

type BaseHandler struct {
	store Store
	locks *eventLocks
}

func NewBaseHandler(store Store) *BaseHandler {
	return &BaseHandler{
		store: store,
		locks: newEventLocks(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (bh *BaseHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(data); err != nil {
		logrus.WithError(err).Error("Could not encode response")
	}
}

func (bh *BaseHandler) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	entry := logrus.WithError(err).WithField("request_id", middleware.GetReqID(r.Context()))

	if status >= http.StatusInternalServerError {
		entry.Errorf("Could not handle %s %s", r.Method, r.URL.Path)
	} else {
		entry.Debugf("Rejected %s %s", r.Method, r.URL.Path)
	}

	bh.writeJSON(w, status, errorResponse{Error: err.Error()})
}

// loadEvent loads the event named in the URL with its runs, writing an error
// response when it cannot.
func (bh *BaseHandler) loadEvent(w http.ResponseWriter, r *http.Request) (*Event, bool) {
	event, err := LoadEventWithRuns(bh.store, chi.URLParam(r, "eventID"))

	if err == ErrEventNotFound {
		bh.writeError(w, r, http.StatusNotFound, err)
		return nil, false
	} else if err != nil {
		bh.writeError(w, r, http.StatusInternalServerError, err)
		return nil, false
	}

	return event, true
}

// eventLocks serializes sequence mutations per event. Requests for different
// events never wait on each other.
type eventLocks struct {
	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *eventLocks) lock(eventID string) func() {
	l.mutex.Lock()

	m, ok := l.locks[eventID]

	if !ok {
		m = &sync.Mutex{}
		l.locks[eventID] = m
	}

	l.mutex.Unlock()

	m.Lock()

	return m.Unlock
}
