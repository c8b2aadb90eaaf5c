package rawsheets

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrInvalidSequencePosition = errors.New("rawsheets: invalid sequence position")

type Relative int

const (
	RelativeBefore Relative = iota
	RelativeAfter
)

func (r Relative) String() string {
	switch r {
	case RelativeBefore:
		return "before"
	case RelativeAfter:
		return "after"
	default:
		return fmt.Sprintf("Relative(%d)", int(r))
	}
}

func ParseRelative(s string) (Relative, error) {
	switch s {
	case "before", "BEFORE":
		return RelativeBefore, nil
	case "after", "AFTER":
		return RelativeAfter, nil
	default:
		return 0, errors.Errorf("rawsheets: unknown relative position %q", s)
	}
}

type InsertDriverIntoSequenceRequest struct {
	Event *Event

	// Runs is the full snapshot the insertion is computed against. The event's
	// own run collection is not consulted.
	Runs []Run

	Sequence     int
	Relative     Relative
	Registration *Registration
	DryRun       bool
}

type RunStatus int

const (
	RunStatusSame RunStatus = iota
	RunStatusInserted
	RunStatusShifted
)

func (s RunStatus) String() string {
	switch s {
	case RunStatusInserted:
		return "inserted"
	case RunStatusShifted:
		return "shifted"
	default:
		return "same"
	}
}

type InsertDriverIntoSequenceResult struct {
	Runs        []Run
	InsertRunID uuid.UUID
	ShiftRunIDs map[uuid.UUID]bool

	// Save is nil for dry runs.
	Save *SaveBatch
}

func (r *InsertDriverIntoSequenceResult) Status(runID uuid.UUID) RunStatus {
	switch {
	case runID == r.InsertRunID:
		return RunStatusInserted
	case r.ShiftRunIDs[runID]:
		return RunStatusShifted
	default:
		return RunStatusSame
	}
}

// InsertedRun returns the run added by the insertion.
func (r *InsertDriverIntoSequenceResult) InsertedRun() Run {
	run, ok := findRun(r.Runs, r.InsertRunID)

	if !ok {
		panic("rawsheets: inserted run missing from insertion result")
	}

	return run
}

// RunService resolves and mutates the driver sequence of an event. Callers must
// serialize mutations of a single event; different events are independent.
type RunService struct {
	queue *saveQueue
}

func NewRunService(gateway RunGateway) *RunService {
	return &RunService{
		queue: newSaveQueue(gateway),
	}
}

// Close waits for every queued save to finish.
func (rs *RunService) Close() {
	rs.queue.close()
}

// FindRunForNextTime returns the lowest sequenced run without a time. When every
// run has a time, a blank run following the last one is made up. The made up
// run is neither added to the event nor saved.
func (rs *RunService) FindRunForNextTime(event *Event) Run {
	runs := event.RunsBySequence()

	for _, run := range runs {
		if run.RawTime == nil {
			return run
		}
	}

	return NewRun(event.ID, maxSequence(runs)+1, nil)
}

// InsertDriverIntoSequence inserts a run for the request's registration before
// or after the given sequence. Runs from the insertion point onwards move down
// by one, keeping their identity, registration and time. Unless the request is
// a dry run the new and shifted runs are queued for saving; the result is
// returned without waiting for them.
func (rs *RunService) InsertDriverIntoSequence(request InsertDriverIntoSequenceRequest) (*InsertDriverIntoSequenceResult, error) {
	insertSequence := request.Sequence

	if request.Relative == RelativeAfter {
		insertSequence++
	}

	runs := sortedRuns(request.Runs)

	if insertSequence < 1 || insertSequence > maxSequence(runs)+1 {
		return nil, ErrInvalidSequencePosition
	}

	var eventID uuid.UUID

	if request.Event != nil {
		eventID = request.Event.ID
	} else if len(runs) > 0 {
		eventID = runs[0].EventID
	}

	inserted := NewRun(eventID, insertSequence, request.Registration)

	result := &InsertDriverIntoSequenceResult{
		Runs:        make([]Run, 0, len(runs)+1),
		InsertRunID: inserted.ID,
		ShiftRunIDs: make(map[uuid.UUID]bool),
	}

	var shifted []Run

	for _, run := range runs {
		if run.Sequence < insertSequence {
			result.Runs = append(result.Runs, run)
			continue
		}

		run.Sequence++
		shifted = append(shifted, run)
		result.ShiftRunIDs[run.ID] = true
	}

	result.Runs = append(result.Runs, inserted)
	result.Runs = append(result.Runs, shifted...)

	logrus.WithFields(logrus.Fields{
		"event":    eventID,
		"sequence": insertSequence,
		"numbers":  request.Registration.Numbers(),
		"shifted":  len(shifted),
		"dry_run":  request.DryRun,
	}).Debugf("Inserted driver into sequence")

	if request.DryRun {
		insertDryRunsCounter.Inc()
		return result, nil
	}

	insertionsCounter.Inc()

	// save from the bottom of the sheet upwards so no two stored runs share a
	// sequence for longer than a single save
	toSave := make([]Run, 0, len(shifted)+1)

	for i := len(shifted) - 1; i >= 0; i-- {
		toSave = append(toSave, shifted[i])
	}

	toSave = append(toSave, inserted)

	result.Save = rs.queue.enqueue(eventID, toSave)

	return result, nil
}
