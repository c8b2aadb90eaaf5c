package rawsheets

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// stalledRunGateway holds every save for one event until release is closed.
type stalledRunGateway struct {
	*memoryRunGateway

	stalledEventID uuid.UUID
	release        chan struct{}
}

func newStalledRunGateway(stalledEventID uuid.UUID) *stalledRunGateway {
	return &stalledRunGateway{
		memoryRunGateway: newMemoryRunGateway(),
		stalledEventID:   stalledEventID,
		release:          make(chan struct{}),
	}
}

func (g *stalledRunGateway) UpsertRun(run Run) error {
	if run.EventID == g.stalledEventID {
		<-g.release
	}

	return g.memoryRunGateway.UpsertRun(run)
}

type panickingRunGateway struct {
	*memoryRunGateway

	panicOn uuid.UUID
}

func (g *panickingRunGateway) UpsertRun(run Run) error {
	if run.ID == g.panicOn {
		panic("store went away")
	}

	return g.memoryRunGateway.UpsertRun(run)
}

func TestSaveQueue(t *testing.T) {
	t.Run("Batches for an event are saved in order", func(t *testing.T) {
		gateway := newMemoryRunGateway()
		queue := newSaveQueue(gateway)

		eventID := uuid.New()
		run := NewRun(eventID, 1, nil)

		var batches []*SaveBatch

		for cones := 1; cones <= 20; cones++ {
			run.Cones = cones
			batches = append(batches, queue.enqueue(eventID, []Run{run}))
		}

		queue.close()

		for _, batch := range batches {
			select {
			case <-batch.Done():
			default:
				t.Error("Batch was not finished after close")
			}
		}

		stored, _ := gateway.ListRuns(eventID.String())

		if len(stored) != 1 || stored[0].Cones != 20 {
			t.Logf("Expected the last save to win, got: %v", stored)
			t.Fail()
		}

		for i, saved := range gateway.savedRuns() {
			if saved.Cones != i+1 {
				t.Logf("Save %d was out of order: %d cones", i, saved.Cones)
				t.Fail()
			}
		}
	})

	t.Run("Saves after close", func(t *testing.T) {
		gateway := newMemoryRunGateway()
		queue := newSaveQueue(gateway)
		queue.close()

		run := NewRun(uuid.New(), 1, nil)

		report := queue.enqueue(run.EventID, []Run{run}).Wait()

		if report.Err() != nil || len(gateway.savedRuns()) != 1 {
			t.Error("Expected the run to be saved after close")
		}
	})

	t.Run("Failed delete stops the batch", func(t *testing.T) {
		eventID := uuid.New()
		deleted := NewRun(eventID, 1, nil)
		shifted := NewRun(eventID, 1, nil)

		gateway := newMemoryRunGateway(deleted)
		gateway.failOn(deleted.ID)

		queue := newSaveQueue(gateway)
		defer queue.close()

		report := queue.enqueueDelete(eventID, []Run{deleted}, []Run{shifted}).Wait()

		if len(report.Outcomes) != 1 || !report.Outcomes[0].Deleted || report.Outcomes[0].Err == nil {
			t.Logf("Unexpected outcomes: %+v", report.Outcomes)
			t.Fail()
		}

		if len(gateway.savedRuns()) != 0 {
			t.Error("Runs were saved after a failed delete")
		}
	})

	t.Run("A stalled event does not hold up other events", func(t *testing.T) {
		stalled := uuid.New()
		gateway := newStalledRunGateway(stalled)
		rs := NewRunService(gateway)

		defer rs.Close()
		defer close(gateway.release)

		for i := 0; i < 100; i++ {
			rs.queue.enqueue(stalled, []Run{NewRun(stalled, 1, nil)})
		}

		other := NewEvent("Points 2", time.Now())
		inserted := make(chan *InsertDriverIntoSequenceResult, 1)

		go func() {
			result, err := rs.InsertDriverIntoSequence(InsertDriverIntoSequenceRequest{
				Event: other, Sequence: 1, Relative: RelativeBefore, Registration: registrationA,
			})

			if err != nil {
				t.Error(err)
			}

			inserted <- result
		}()

		select {
		case result := <-inserted:
			if result == nil {
				return
			}

			select {
			case <-result.Save.Done():
			case <-time.After(time.Second):
				t.Error("Save for the other event waited on the stalled event")
			}
		case <-time.After(time.Second):
			t.Error("Insert for the other event blocked behind the stalled event")
		}
	})

	t.Run("Insert returns before its save finishes", func(t *testing.T) {
		eventID := uuid.New()
		gateway := newStalledRunGateway(eventID)
		rs := NewRunService(gateway)

		result, err := rs.InsertDriverIntoSequence(InsertDriverIntoSequenceRequest{
			Runs: testRuns(eventID, []*Registration{registrationA}, []*time.Duration{nil}), Sequence: 1, Relative: RelativeBefore, Registration: registrationB,
		})

		if err != nil {
			t.Error(err)
			close(gateway.release)
			rs.Close()
			return
		}

		select {
		case <-result.Save.Done():
			t.Error("Save finished while the gateway was stalled")
		default:
		}

		close(gateway.release)
		rs.Close()

		if err := result.Save.Wait().Err(); err != nil {
			t.Error(err)
		}

		if len(gateway.savedRuns()) != 2 {
			t.Logf("Expected 2 saves, got: %d", len(gateway.savedRuns()))
			t.Fail()
		}
	})

	t.Run("Workers are retired once drained", func(t *testing.T) {
		queue := newSaveQueue(newMemoryRunGateway())
		defer queue.close()

		for i := 0; i < 10; i++ {
			run := NewRun(uuid.New(), 1, nil)
			queue.enqueue(run.EventID, []Run{run}).Wait()
		}

		deadline := time.Now().Add(time.Second)

		for queue.activeWorkers() > 0 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}

		if workers := queue.activeWorkers(); workers != 0 {
			t.Logf("Expected no running workers, got: %d", workers)
			t.Fail()
		}
	})

	t.Run("A panicking gateway fails the run and keeps saving", func(t *testing.T) {
		eventID := uuid.New()
		first, second := NewRun(eventID, 1, nil), NewRun(eventID, 2, nil)

		gateway := &panickingRunGateway{memoryRunGateway: newMemoryRunGateway(), panicOn: first.ID}
		queue := newSaveQueue(gateway)
		defer queue.close()

		report := queue.enqueue(eventID, []Run{first, second}).Wait()

		if len(report.Outcomes) != 2 || report.Outcomes[0].Err != errGatewayPanicked || report.Outcomes[1].Err != nil {
			t.Logf("Unexpected outcomes: %+v", report.Outcomes)
			t.Fail()
		}

		later := queue.enqueue(eventID, []Run{second}).Wait()

		if later.Err() != nil {
			t.Error("Queue stopped saving after a panic")
		}
	})
}
