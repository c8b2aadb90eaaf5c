package rawsheets

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrEventNotFound        = errors.New("rawsheets: event not found")
	ErrRunNotFound          = errors.New("rawsheets: run not found")
	ErrRegistrationNotFound = errors.New("rawsheets: registration not found")

	errEventNameRequired = errors.New("rawsheets: event name is required")
)

type CrispyFishMetadata struct {
	ClassDefinitionFile string
	EventControlFile    string
}

type Event struct {
	ID      uuid.UUID
	Date    time.Time
	Name    string
	Created time.Time
	Updated time.Time
	Deleted time.Time

	CrispyFishMetadata CrispyFishMetadata

	Registrations []*Registration

	// Runs are stored individually, they are never encoded with the event record.
	Runs []Run `json:"-"`
}

func NewEvent(name string, date time.Time) *Event {
	return &Event{
		ID:      uuid.New(),
		Name:    name,
		Date:    date,
		Created: time.Now(),
	}
}

// RunsBySequence returns a copy of the event's runs ordered by sequence.
func (e *Event) RunsBySequence() []Run {
	return sortedRuns(e.Runs)
}

// attachRuns sets the event's runs, pointing each run at the matching roster
// registration where one exists.
func (e *Event) attachRuns(runs []Run) {
	roster := make(map[string]*Registration, len(e.Registrations))

	for _, registration := range e.Registrations {
		if registration != nil {
			roster[registration.Numbers()] = registration
		}
	}

	e.Runs = sortedRuns(runs)

	for i, run := range e.Runs {
		if run.Registration == nil {
			continue
		}

		if registration, ok := roster[run.Registration.Numbers()]; ok && *registration == *run.Registration {
			e.Runs[i].Registration = registration
		}
	}
}

// Registration identifies an entrant. Registrations are shared between the runs
// that reference them and must not be modified once loaded.
type Registration struct {
	Category string
	Handicap string
	Number   string
}

// Numbers is the display token for a registration, e.g. "1 HS" or "8 NOV STR".
func (r *Registration) Numbers() string {
	if r == nil {
		return ""
	}

	var parts []string

	for _, part := range []string{r.Number, r.Category, r.Handicap} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	return strings.Join(parts, " ")
}

func (r *Registration) IsBlank() bool {
	return r == nil || strings.TrimSpace(r.Handicap) == "" || strings.TrimSpace(r.Number) == ""
}

// SearchRegistrations finds registrations whose numbers token starts with query,
// ignoring case and surrounding whitespace.
func SearchRegistrations(registrations []*Registration, query string) []*Registration {
	query = strings.ToUpper(strings.Join(strings.Fields(query), " "))

	var out []*Registration

	for _, registration := range registrations {
		if registration == nil {
			continue
		}

		if strings.HasPrefix(strings.ToUpper(registration.Numbers()), query) {
			out = append(out, registration)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Numbers() < out[j].Numbers()
	})

	return out
}

// ResolveNumbers turns a numbers token typed by an official into a registration.
// An empty token resolves to nil, a blank slot. With allowAdHoc, tokens not on
// the roster are accepted when they look like "<number> [category] <handicap>".
func ResolveNumbers(event *Event, numbers string, allowAdHoc bool) (*Registration, error) {
	tokens := strings.Fields(numbers)

	if len(tokens) == 0 {
		return nil, nil
	}

	normalised := strings.ToUpper(strings.Join(tokens, " "))

	for _, registration := range event.Registrations {
		if registration != nil && strings.ToUpper(registration.Numbers()) == normalised {
			return registration, nil
		}
	}

	if !allowAdHoc {
		return nil, ErrRegistrationNotFound
	}

	if _, err := strconv.Atoi(tokens[0]); err != nil {
		return nil, ErrRegistrationNotFound
	}

	switch len(tokens) {
	case 2:
		return &Registration{Number: tokens[0], Handicap: strings.ToUpper(tokens[1])}, nil
	case 3:
		return &Registration{Number: tokens[0], Category: strings.ToUpper(tokens[1]), Handicap: strings.ToUpper(tokens[2])}, nil
	default:
		return nil, ErrRegistrationNotFound
	}
}
