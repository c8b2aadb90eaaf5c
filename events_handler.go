package rawsheets

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

type EventsHandler struct {
	*BaseHandler
}

func NewEventsHandler(baseHandler *BaseHandler) *EventsHandler {
	return &EventsHandler{BaseHandler: baseHandler}
}

func (eh *EventsHandler) list(w http.ResponseWriter, r *http.Request) {
	events, err := eh.store.ListEvents()

	if err != nil {
		eh.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	if events == nil {
		events = []*Event{}
	}

	eh.writeJSON(w, http.StatusOK, events)
}

type createEventRequest struct {
	Name               string             `json:"name"`
	Date               string             `json:"date"`
	CrispyFishMetadata CrispyFishMetadata `json:"crispy_fish_metadata"`
	Registrations      []*Registration    `json:"registrations"`
}

func (eh *EventsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		eh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)

	if err != nil {
		eh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		eh.writeError(w, r, http.StatusBadRequest, errEventNameRequired)
		return
	}

	event := NewEvent(strings.TrimSpace(req.Name), date)
	event.CrispyFishMetadata = req.CrispyFishMetadata
	event.Registrations = req.Registrations

	if err := eh.store.UpsertEvent(event); err != nil {
		eh.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	eh.writeJSON(w, http.StatusCreated, event)
}

func (eh *EventsHandler) view(w http.ResponseWriter, r *http.Request) {
	event, ok := eh.loadEvent(w, r)

	if !ok {
		return
	}

	eh.writeJSON(w, http.StatusOK, event)
}

func (eh *EventsHandler) registrations(w http.ResponseWriter, r *http.Request) {
	event, ok := eh.loadEvent(w, r)

	if !ok {
		return
	}

	registrations := SearchRegistrations(event.Registrations, r.URL.Query().Get("q"))

	type registrationResponse struct {
		Numbers string `json:"numbers"`
		*Registration
	}

	out := make([]registrationResponse, 0, len(registrations))

	for _, registration := range registrations {
		out = append(out, registrationResponse{Numbers: registration.Numbers(), Registration: registration})
	}

	eh.writeJSON(w, http.StatusOK, out)
}
