package rawsheets

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var errGatewayUnavailable = errors.New("gateway unavailable")

// memoryRunGateway records every call so tests can check what was saved and in
// which order. Runs listed in failures fail to save.
type memoryRunGateway struct {
	mutex sync.Mutex

	runs     map[uuid.UUID]Run
	saved    []Run
	deleted  []Run
	failures map[uuid.UUID]bool
}

func newMemoryRunGateway(runs ...Run) *memoryRunGateway {
	g := &memoryRunGateway{
		runs:     make(map[uuid.UUID]Run),
		failures: make(map[uuid.UUID]bool),
	}

	for _, run := range runs {
		g.runs[run.ID] = run
	}

	return g
}

func (g *memoryRunGateway) failOn(ids ...uuid.UUID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, id := range ids {
		g.failures[id] = true
	}
}

func (g *memoryRunGateway) UpsertRun(run Run) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.failures[run.ID] {
		return errGatewayUnavailable
	}

	g.runs[run.ID] = run
	g.saved = append(g.saved, run)

	return nil
}

func (g *memoryRunGateway) ListRuns(eventID string) ([]Run, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	var runs []Run

	for _, run := range g.runs {
		if run.EventID.String() == eventID {
			runs = append(runs, run)
		}
	}

	return sortedRuns(runs), nil
}

func (g *memoryRunGateway) DeleteRun(run Run) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.failures[run.ID] {
		return errGatewayUnavailable
	}

	delete(g.runs, run.ID)
	g.deleted = append(g.deleted, run)

	return nil
}

func (g *memoryRunGateway) savedRuns() []Run {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	out := make([]Run, len(g.saved))
	copy(out, g.saved)

	return out
}

func seconds(s float64) *time.Duration {
	d := time.Duration(math.Round(s*1000)) * time.Millisecond
	return &d
}

// testRuns builds runs with sequences 1..N for the given registrations and
// times. A nil time leaves the run untimed.
func testRuns(eventID uuid.UUID, registrations []*Registration, times []*time.Duration) []Run {
	runs := make([]Run, 0, len(registrations))

	for i, registration := range registrations {
		run := NewRun(eventID, i+1, registration)
		run.RawTime = times[i]

		runs = append(runs, run)
	}

	return runs
}

func assertContiguous(t *testing.T, runs []Run) {
	t.Helper()

	for i, run := range sortedRuns(runs) {
		if run.Sequence != i+1 {
			t.Errorf("expected run %s at position %d to have sequence %d, got %d", run.ID, i, i+1, run.Sequence)
		}
	}
}
