package rawsheets

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrMetaValueNotSet = errors.New("rawsheets: meta value not set")

// RunGateway persists runs. The sequencing service only ever calls UpsertRun.
type RunGateway interface {
	UpsertRun(run Run) error
	ListRuns(eventID string) ([]Run, error)
	DeleteRun(run Run) error
}

type Store interface {
	RunGateway

	// Events
	UpsertEvent(event *Event) error
	ListEvents() ([]*Event, error)
	FindEventByID(id string) (*Event, error)
	DeleteEvent(id string) error

	// Meta
	SetMeta(key string, value interface{}) error
	GetMeta(key string, out interface{}) error
}

// LoadEventWithRuns loads an event and attaches its runs, ordered by sequence.
func LoadEventWithRuns(store Store, id string) (*Event, error) {
	event, err := store.FindEventByID(id)

	if err != nil {
		return nil, err
	}

	runs, err := store.ListRuns(id)

	if err != nil {
		return nil, err
	}

	event.attachRuns(runs)

	return event, nil
}

// runRecord is the persisted form of a Run. Registrations are flattened so that
// a blank slot is stored as empty strings.
type runRecord struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	Sequence     int            `json:"sequence"`
	Category     string         `json:"category"`
	Handicap     string         `json:"handicap"`
	Number       string         `json:"number"`
	RawTime      *time.Duration `json:"raw_time"`
	Cones        int            `json:"cones"`
	DidNotFinish bool           `json:"did_not_finish"`
	Disqualified bool           `json:"disqualified"`
	Rerun        bool           `json:"rerun"`
}

func newRunRecord(run Run) runRecord {
	record := runRecord{
		ID:           run.ID.String(),
		EventID:      run.EventID.String(),
		Sequence:     run.Sequence,
		RawTime:      run.RawTime,
		Cones:        run.Cones,
		DidNotFinish: run.DidNotFinish,
		Disqualified: run.Disqualified,
		Rerun:        run.Rerun,
	}

	if run.Registration != nil {
		record.Category = run.Registration.Category
		record.Handicap = run.Registration.Handicap
		record.Number = run.Registration.Number
	}

	return record
}

func (r runRecord) toRun() (Run, error) {
	id, err := uuid.Parse(r.ID)

	if err != nil {
		return Run{}, errors.Wrapf(err, "rawsheets: invalid run id %q", r.ID)
	}

	eventID, err := uuid.Parse(r.EventID)

	if err != nil {
		return Run{}, errors.Wrapf(err, "rawsheets: invalid event id %q on run %s", r.EventID, r.ID)
	}

	run := Run{
		ID:           id,
		EventID:      eventID,
		Sequence:     r.Sequence,
		RawTime:      r.RawTime,
		Cones:        r.Cones,
		DidNotFinish: r.DidNotFinish,
		Disqualified: r.Disqualified,
		Rerun:        r.Rerun,
	}

	registration := &Registration{Category: r.Category, Handicap: r.Handicap, Number: r.Number}

	if !registration.IsBlank() {
		run.Registration = registration
	}

	return run, nil
}
