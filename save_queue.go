package rawsheets

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RunSaveOutcome is the result of saving (or deleting) one run of a batch.
type RunSaveOutcome struct {
	RunID    uuid.UUID
	Sequence int
	Deleted  bool
	Err      error
}

type SaveReport struct {
	Outcomes []RunSaveOutcome
}

func (r *SaveReport) Failed() []RunSaveOutcome {
	var failed []RunSaveOutcome

	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}

	return failed
}

// Err returns a *PersistenceFailure naming each run that could not be saved, or
// nil if every run was saved.
func (r *SaveReport) Err() error {
	failed := r.Failed()

	if len(failed) == 0 {
		return nil
	}

	return &PersistenceFailure{Failed: failed, Saved: len(r.Outcomes) - len(failed)}
}

type PersistenceFailure struct {
	Failed []RunSaveOutcome
	Saved  int
}

func (p *PersistenceFailure) Error() string {
	runs := make([]string, 0, len(p.Failed))

	for _, outcome := range p.Failed {
		runs = append(runs, fmt.Sprintf("%s (sequence %d): %s", outcome.RunID, outcome.Sequence, outcome.Err))
	}

	return fmt.Sprintf("rawsheets: could not save %d run(s), %d saved: %s", len(p.Failed), p.Saved, strings.Join(runs, "; "))
}

// FailedRunIDs lists the runs that were not persisted.
func (p *PersistenceFailure) FailedRunIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Failed))

	for _, outcome := range p.Failed {
		ids = append(ids, outcome.RunID)
	}

	return ids
}

// SaveBatch is a group of runs queued for saving. Once queued a batch always
// runs to completion.
type SaveBatch struct {
	EventID uuid.UUID
	Runs    []Run

	// Deletes are applied before Runs are saved. A failed delete stops the
	// batch and the report then has no outcomes for Runs.
	Deletes []Run

	report *SaveReport
	done   chan struct{}
}

func (b *SaveBatch) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until every run in the batch has been saved or has failed.
func (b *SaveBatch) Wait() *SaveReport {
	<-b.done

	return b.report
}

// errGatewayPanicked is reported for a run whose save panicked.
var errGatewayPanicked = errors.New("rawsheets: run gateway panicked")

// protect runs fn through panicCapture, a panic is returned as errGatewayPanicked.
func protect(fn func() error) (err error) {
	err = errGatewayPanicked

	panicCapture(func() {
		err = fn()
	})

	return err
}

func (b *SaveBatch) save(gateway RunGateway) {
	defer close(b.done)

	report := &SaveReport{Outcomes: make([]RunSaveOutcome, 0, len(b.Deletes)+len(b.Runs))}

	for _, run := range b.Deletes {
		run := run
		err := protect(func() error {
			return gateway.DeleteRun(run)
		})

		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"event": b.EventID,
				"run":   run.ID,
			}).Error("Could not delete run")
		}

		report.Outcomes = append(report.Outcomes, RunSaveOutcome{RunID: run.ID, Sequence: run.Sequence, Deleted: true, Err: err})

		if err != nil {
			// runs would be renumbered around a run that is still stored
			b.report = report
			return
		}
	}

	for _, run := range b.Runs {
		run := run
		started := time.Now()
		err := protect(func() error {
			return gateway.UpsertRun(run)
		})
		runSaveDuration.Observe(time.Since(started).Seconds())

		if err != nil {
			runSaveFailuresCounter.Inc()
			logrus.WithError(err).WithFields(logrus.Fields{
				"event":    b.EventID,
				"run":      run.ID,
				"sequence": run.Sequence,
			}).Error("Could not save run")
		}

		report.Outcomes = append(report.Outcomes, RunSaveOutcome{RunID: run.ID, Sequence: run.Sequence, Err: err})
	}

	b.report = report
}

// saveQueue runs save batches in submission order, one worker per event. A
// worker is started when an event has batches pending and exits once they are
// all saved. Submitting never waits on a worker.
type saveQueue struct {
	gateway RunGateway

	mutex   sync.Mutex
	pending map[uuid.UUID][]*SaveBatch
	workers int
	drained *sync.Cond
}

func newSaveQueue(gateway RunGateway) *saveQueue {
	q := &saveQueue{
		gateway: gateway,
		pending: make(map[uuid.UUID][]*SaveBatch),
	}

	q.drained = sync.NewCond(&q.mutex)

	return q
}

func (q *saveQueue) enqueue(eventID uuid.UUID, runs []Run) *SaveBatch {
	return q.submit(&SaveBatch{
		EventID: eventID,
		Runs:    runs,
		done:    make(chan struct{}),
	})
}

func (q *saveQueue) enqueueDelete(eventID uuid.UUID, deletes []Run, runs []Run) *SaveBatch {
	return q.submit(&SaveBatch{
		EventID: eventID,
		Deletes: deletes,
		Runs:    runs,
		done:    make(chan struct{}),
	})
}

func (q *saveQueue) submit(batch *SaveBatch) *SaveBatch {
	eventID := batch.EventID

	q.mutex.Lock()

	batches, running := q.pending[eventID]
	q.pending[eventID] = append(batches, batch)

	if !running {
		q.workers++
	}

	q.mutex.Unlock()

	if !running {
		go panicCapture(func() {
			q.work(eventID)
		})
	}

	return batch
}

// next pops the oldest pending batch for an event. When there is none the
// event's worker is retired and nil is returned.
func (q *saveQueue) next(eventID uuid.UUID) *SaveBatch {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	batches := q.pending[eventID]

	if len(batches) == 0 {
		delete(q.pending, eventID)
		q.workers--
		q.drained.Broadcast()

		return nil
	}

	batch := batches[0]
	batches[0] = nil
	q.pending[eventID] = batches[1:]

	return batch
}

func (q *saveQueue) work(eventID uuid.UUID) {
	for batch := q.next(eventID); batch != nil; batch = q.next(eventID) {
		batch.save(q.gateway)
	}

	logrus.WithField("event", eventID).Debugf("Save queue drained")
}

// activeWorkers is the number of events with a running worker.
func (q *saveQueue) activeWorkers() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.workers
}

// close waits until every submitted batch, including ones submitted while
// waiting, has been saved.
func (q *saveQueue) close() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for q.workers > 0 {
		q.drained.Wait()
	}
}
