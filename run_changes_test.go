package rawsheets

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunService_AddNextDriver(t *testing.T) {
	event := NewEvent("Points 1", time.Now())

	t.Run("Fills a blank slot", func(t *testing.T) {
		gateway := newMemoryRunGateway()
		rs := NewRunService(gateway)
		defer rs.Close()

		runs := testRuns(event.ID, []*Registration{registrationA, nil}, []*time.Duration{seconds(50), nil})

		run, err := rs.AddNextDriver(event, runs, registrationB)

		if err != nil {
			t.Error(err)
			return
		}

		if run.ID != runs[1].ID || run.Registration != registrationB {
			t.Logf("Expected the blank slot to be filled, got: %s", run)
			t.Fail()
		}

		if saved := gateway.savedRuns(); len(saved) != 1 || saved[0].ID != run.ID {
			t.Error("Filled slot was not saved")
		}
	})

	t.Run("Appends after the last run", func(t *testing.T) {
		gateway := newMemoryRunGateway()
		rs := NewRunService(gateway)
		defer rs.Close()

		runs := testRuns(event.ID, []*Registration{registrationA, registrationC}, []*time.Duration{nil, nil})

		run, err := rs.AddNextDriver(event, runs, registrationB)

		if err != nil {
			t.Error(err)
			return
		}

		if run.Sequence != 3 || run.ID == runs[0].ID || run.ID == runs[1].ID {
			t.Logf("Expected a new run at sequence 3, got: %s", run)
			t.Fail()
		}
	})
}

func TestRunService_RecordTime(t *testing.T) {
	event := NewEvent("Points 1", time.Now())
	gateway := newMemoryRunGateway()
	rs := NewRunService(gateway)
	defer rs.Close()

	runs := testRuns(event.ID, []*Registration{registrationA, registrationB}, []*time.Duration{seconds(50), nil})

	run, err := rs.RecordTime(event, runs, 51234*time.Millisecond)

	if err != nil {
		t.Error(err)
		return
	}

	if run.ID != runs[1].ID || FormatRawTime(run.RawTime) != "51.234" {
		t.Logf("Expected the time on run 2, got: %s", run)
		t.Fail()
	}

	runs[1] = run

	// every run timed, so a new run is made for the time
	run, err = rs.RecordTime(event, runs, 49*time.Second)

	if err != nil {
		t.Error(err)
		return
	}

	if run.Sequence != 3 || run.Registration != nil || FormatRawTime(run.RawTime) != "49.000" {
		t.Logf("Expected a blank run 3 with a time, got: %s", run)
		t.Fail()
	}

	if len(gateway.savedRuns()) != 2 {
		t.Error("Expected both times to be saved")
	}
}

func TestRunService_Changes(t *testing.T) {
	gateway := newMemoryRunGateway()
	rs := NewRunService(gateway)
	defer rs.Close()

	run := NewRun(uuid.New(), 1, registrationA)
	run.RawTime = seconds(50)

	run, err := rs.IncrementCones(run)

	if err != nil || run.Cones != 1 {
		t.Logf("Expected 1 cone, got: %d (%v)", run.Cones, err)
		t.Fail()
	}

	run, err = rs.DecrementCones(run)

	if err != nil || run.Cones != 0 {
		t.Logf("Expected 0 cones, got: %d (%v)", run.Cones, err)
		t.Fail()
	}

	if _, err := rs.DecrementCones(run); err != ErrNoConesToRemove {
		t.Logf("Expected no cones to remove, got: %v", err)
		t.Fail()
	}

	run, _ = rs.ChangeDidNotFinish(run, true)
	run, _ = rs.ChangeDisqualified(run, true)
	run, _ = rs.ChangeRerun(run, true)

	if !run.DidNotFinish || !run.Disqualified || !run.Rerun {
		t.Logf("Flags were not set: %+v", run)
		t.Fail()
	}

	run, _ = rs.ChangeDriver(run, registrationC)

	if run.Registration != registrationC {
		t.Error("Driver was not changed")
	}

	run, _ = rs.ChangeTime(run, nil)

	if run.HasTime() {
		t.Error("Time was not cleared")
	}

	stored, _ := gateway.ListRuns(run.EventID.String())

	if len(stored) != 1 {
		t.Fail()
		return
	}

	if stored[0].Registration != registrationC || stored[0].HasTime() || !stored[0].Rerun {
		t.Logf("Stored run does not have every change: %s", stored[0])
		t.Fail()
	}

	// the failed decrement saves nothing
	if len(gateway.savedRuns()) != 7 {
		t.Logf("Expected 7 saves, got: %d", len(gateway.savedRuns()))
		t.Fail()
	}
}

func TestRunService_DeleteRun(t *testing.T) {
	eventID := uuid.New()

	t.Run("Renumbers later runs", func(t *testing.T) {
		runs := testRuns(eventID,
			[]*Registration{registrationA, registrationB, registrationC},
			[]*time.Duration{seconds(50), seconds(51), nil},
		)

		gateway := newMemoryRunGateway(runs...)
		rs := NewRunService(gateway)
		defer rs.Close()

		result, err := rs.DeleteRun(runs, runs[0].ID)

		if err != nil {
			t.Error(err)
			return
		}

		if len(result.Runs) != 2 || len(result.ShiftRunIDs) != 2 {
			t.Logf("Unexpected result: %d runs, %d shifted", len(result.Runs), len(result.ShiftRunIDs))
			t.Fail()
			return
		}

		if result.Runs[0].ID != runs[1].ID || result.Runs[0].Sequence != 1 || FormatRawTime(result.Runs[0].RawTime) != "51.000" {
			t.Logf("Unexpected first run: %s", result.Runs[0])
			t.Fail()
		}

		stored, _ := gateway.ListRuns(eventID.String())

		if len(stored) != 2 {
			t.Logf("Expected 2 stored runs, got: %d", len(stored))
			t.Fail()
		}

		assertContiguous(t, stored)
	})

	t.Run("Last run shifts nothing", func(t *testing.T) {
		runs := testRuns(eventID, []*Registration{registrationA, registrationB}, []*time.Duration{nil, nil})

		gateway := newMemoryRunGateway(runs...)
		rs := NewRunService(gateway)
		defer rs.Close()

		result, err := rs.DeleteRun(runs, runs[1].ID)

		if err != nil {
			t.Error(err)
			return
		}

		if len(result.ShiftRunIDs) != 0 || len(gateway.savedRuns()) != 0 {
			t.Error("Deleting the last run renumbered other runs")
		}
	})

	t.Run("Unknown run", func(t *testing.T) {
		rs := NewRunService(newMemoryRunGateway())
		defer rs.Close()

		if _, err := rs.DeleteRun(nil, uuid.New()); err != ErrRunNotFound {
			t.Logf("Expected run not found, got: %v", err)
			t.Fail()
		}
	})

	t.Run("Failed delete renumbers nothing", func(t *testing.T) {
		runs := testRuns(eventID, []*Registration{registrationA, registrationB}, []*time.Duration{nil, nil})

		gateway := newMemoryRunGateway(runs...)
		gateway.failOn(runs[0].ID)

		rs := NewRunService(gateway)
		defer rs.Close()

		result, err := rs.DeleteRun(runs, runs[0].ID)

		if err == nil || result != nil {
			t.Error("Expected the delete to fail")
		}

		if len(gateway.savedRuns()) != 0 {
			t.Error("Runs were renumbered around a run that is still stored")
		}
	})
}
