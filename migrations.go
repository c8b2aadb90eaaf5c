package rawsheets

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	CurrentMigrationVersion = 1
	versionMetaKey          = "version"
)

func Migrate(store Store) error {
	var storeVersion int

	err := store.GetMeta(versionMetaKey, &storeVersion)

	if err != nil && err != ErrMetaValueNotSet {
		return err
	}

	for i := storeVersion; i < CurrentMigrationVersion; i++ {
		err := migrations[i](store)

		if err != nil {
			return errors.Wrapf(err, "rawsheets: migration %d failed", i+1)
		}
	}

	return store.SetMeta(versionMetaKey, CurrentMigrationVersion)
}

type migrationFunc func(Store) error

var migrations = []migrationFunc{
	normaliseRunSequences,
}

// normaliseRunSequences renumbers the runs of every event to 1..N, keeping
// their relative order. Runs sharing a sequence are ordered by ID.
func normaliseRunSequences(rs Store) error {
	logrus.Infof("Running migration: Normalise Run Sequences")

	events, err := rs.ListEvents()

	if err != nil {
		return err
	}

	for _, event := range events {
		runs, err := rs.ListRuns(event.ID.String())

		if err != nil {
			return err
		}

		for _, run := range renumberRuns(runs) {
			if err := rs.UpsertRun(run); err != nil {
				return err
			}
		}
	}

	return nil
}

// renumberRuns returns the runs whose sequence had to change for runs to be
// numbered 1..N.
func renumberRuns(runs []Run) []Run {
	ordered := make([]Run, len(runs))
	copy(ordered, runs)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence == ordered[j].Sequence {
			return ordered[i].ID.String() < ordered[j].ID.String()
		}

		return ordered[i].Sequence < ordered[j].Sequence
	})

	var changed []Run

	for i, run := range ordered {
		if run.Sequence != i+1 {
			run.Sequence = i + 1
			changed = append(changed, run)
		}
	}

	return changed
}
