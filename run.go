package rawsheets

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Run is one timed attempt at an event. Runs are values, every mutation
// returns a modified copy.
type Run struct {
	ID           uuid.UUID
	EventID      uuid.UUID
	Sequence     int
	Registration *Registration
	RawTime      *time.Duration

	Cones        int
	DidNotFinish bool
	Disqualified bool
	Rerun        bool
}

// NewRun creates a blank run with a freshly assigned ID.
func NewRun(eventID uuid.UUID, sequence int, registration *Registration) Run {
	return Run{
		ID:           uuid.New(),
		EventID:      eventID,
		Sequence:     sequence,
		Registration: registration,
	}
}

func (r Run) HasTime() bool {
	return r.RawTime != nil
}

func (r Run) RegistrationNumbers() string {
	return r.Registration.Numbers()
}

func (r Run) String() string {
	return fmt.Sprintf("#%d %s %s", r.Sequence, r.RegistrationNumbers(), FormatRawTime(r.RawTime))
}

// FormatRawTime renders a raw time in seconds with millisecond precision.
func FormatRawTime(rawTime *time.Duration) string {
	if rawTime == nil {
		return ""
	}

	return strconv.FormatFloat(rawTime.Seconds(), 'f', 3, 64)
}

// maxRawTimeSeconds is the longest raw time a time.Duration holds at millisecond
// precision.
const maxRawTimeSeconds = float64(math.MaxInt64 / int64(time.Millisecond) / 1000)

// ParseRawTime parses a time in seconds, e.g. "45.123". An empty string is a
// cleared time.
func ParseRawTime(s string) (*time.Duration, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		return nil, nil
	}

	seconds, err := strconv.ParseFloat(s, 64)

	if err != nil {
		return nil, errors.Wrapf(err, "rawsheets: invalid raw time %q", s)
	}

	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds > maxRawTimeSeconds {
		return nil, errors.Errorf("rawsheets: raw time %q out of range", s)
	}

	if seconds < 0 {
		return nil, errors.Errorf("rawsheets: negative raw time %q", s)
	}

	d := time.Duration(math.Round(seconds*1000)) * time.Millisecond

	return &d, nil
}

func sortedRuns(runs []Run) []Run {
	out := make([]Run, len(runs))
	copy(out, runs)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})

	return out
}

func maxSequence(runs []Run) int {
	max := 0

	for _, run := range runs {
		if run.Sequence > max {
			max = run.Sequence
		}
	}

	return max
}

func findRun(runs []Run, id uuid.UUID) (Run, bool) {
	for _, run := range runs {
		if run.ID == id {
			return run, true
		}
	}

	return Run{}, false
}
