package rawsheets

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNoConesToRemove = errors.New("rawsheets: run has no cones to remove")

// save queues a single run behind any pending batches for its event and waits
// for it to be written.
func (rs *RunService) save(run Run) (Run, error) {
	return run, rs.queue.enqueue(run.EventID, []Run{run}).Wait().Err()
}

// AddNextDriver assigns registration to the next run awaiting a time when that
// run is still an unassigned blank slot, otherwise a new run is added after the
// last one.
func (rs *RunService) AddNextDriver(event *Event, runs []Run, registration *Registration) (Run, error) {
	snapshot := &Event{ID: event.ID, Runs: runs}
	run := rs.FindRunForNextTime(snapshot)

	if run.Registration != nil {
		run = NewRun(event.ID, maxSequence(runs)+1, nil)
	}

	run.Registration = registration

	return rs.save(run)
}

// RecordTime writes rawTime into the run returned by FindRunForNextTime,
// creating that run if it was made up.
func (rs *RunService) RecordTime(event *Event, runs []Run, rawTime time.Duration) (Run, error) {
	run := rs.FindRunForNextTime(&Event{ID: event.ID, Runs: runs})
	run.RawTime = &rawTime

	return rs.save(run)
}

// ChangeTime sets the run's time, a nil time clears it.
func (rs *RunService) ChangeTime(run Run, rawTime *time.Duration) (Run, error) {
	if rawTime != nil {
		t := *rawTime
		rawTime = &t
	}

	run.RawTime = rawTime

	return rs.save(run)
}

func (rs *RunService) ChangeDriver(run Run, registration *Registration) (Run, error) {
	run.Registration = registration

	return rs.save(run)
}

func (rs *RunService) IncrementCones(run Run) (Run, error) {
	run.Cones++

	return rs.save(run)
}

func (rs *RunService) DecrementCones(run Run) (Run, error) {
	if run.Cones <= 0 {
		return run, ErrNoConesToRemove
	}

	run.Cones--

	return rs.save(run)
}

func (rs *RunService) ChangeRerun(run Run, rerun bool) (Run, error) {
	run.Rerun = rerun

	return rs.save(run)
}

func (rs *RunService) ChangeDidNotFinish(run Run, didNotFinish bool) (Run, error) {
	run.DidNotFinish = didNotFinish

	return rs.save(run)
}

func (rs *RunService) ChangeDisqualified(run Run, disqualified bool) (Run, error) {
	run.Disqualified = disqualified

	return rs.save(run)
}

type DeleteRunResult struct {
	Runs        []Run
	ShiftRunIDs map[uuid.UUID]bool
}

// DeleteRun removes a run and moves every later run up by one so the sequence
// stays contiguous. The deletion is written before the renumbered runs are
// saved.
func (rs *RunService) DeleteRun(runs []Run, runID uuid.UUID) (*DeleteRunResult, error) {
	deleted, ok := findRun(runs, runID)

	if !ok {
		return nil, ErrRunNotFound
	}

	result := &DeleteRunResult{
		ShiftRunIDs: make(map[uuid.UUID]bool),
	}

	var shifted []Run

	for _, run := range sortedRuns(runs) {
		switch {
		case run.ID == runID:
			continue
		case run.Sequence > deleted.Sequence:
			run.Sequence--
			shifted = append(shifted, run)
			result.ShiftRunIDs[run.ID] = true
		}

		result.Runs = append(result.Runs, run)
	}

	report := rs.queue.enqueueDelete(deleted.EventID, []Run{deleted}, shifted).Wait()

	if outcome := report.Outcomes[0]; outcome.Err != nil {
		// the run is still stored, nothing was renumbered
		return nil, outcome.Err
	}

	return result, report.Err()
}
