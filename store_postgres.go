package rawsheets

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS raw_sheet_events (
	event_id   UUID PRIMARY KEY,
	event_date TIMESTAMPTZ NOT NULL,
	deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	data       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS raw_sheet_runs (
	run_id         UUID PRIMARY KEY,
	event_id       UUID NOT NULL,
	sequence       INTEGER NOT NULL,
	category       TEXT NOT NULL DEFAULT '',
	handicap       TEXT NOT NULL DEFAULT '',
	number         TEXT NOT NULL DEFAULT '',
	raw_time_ms    BIGINT,
	cones          INTEGER NOT NULL DEFAULT 0,
	did_not_finish BOOLEAN NOT NULL DEFAULT FALSE,
	disqualified   BOOLEAN NOT NULL DEFAULT FALSE,
	rerun          BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS raw_sheet_runs_event_sequence ON raw_sheet_runs (event_id, sequence);

CREATE TABLE IF NOT EXISTS raw_sheet_meta (
	key   TEXT PRIMARY KEY,
	value JSONB NOT NULL
);
`

// PostgresStore keeps events and meta values as JSONB documents and runs as
// rows, so that run sequences can be inspected with plain SQL.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresStore(ctx context.Context, dsn string, timeout time.Duration) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)

	if err != nil {
		return nil, errors.Wrap(err, "rawsheets: could not connect to postgres")
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ps := &PostgresStore{pool: pool, timeout: timeout}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "rawsheets: could not create postgres schema")
	}

	return ps, nil
}

func (ps *PostgresStore) Close() error {
	ps.pool.Close()
	return nil
}

func (ps *PostgresStore) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ps.timeout)
}

func (ps *PostgresStore) UpsertEvent(event *Event) error {
	ctx, cancel := ps.context()
	defer cancel()

	event.Updated = time.Now()

	data, err := json.Marshal(event)

	if err != nil {
		return err
	}

	_, err = ps.pool.Exec(ctx,
		`INSERT INTO raw_sheet_events (event_id, event_date, deleted, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_id) DO UPDATE SET event_date = EXCLUDED.event_date, deleted = EXCLUDED.deleted, data = EXCLUDED.data`,
		event.ID, event.Date, !event.Deleted.IsZero(), data,
	)

	return errors.Wrapf(err, "rawsheets: upsert event %s", event.ID)
}

func (ps *PostgresStore) FindEventByID(id string) (*Event, error) {
	eventID, err := uuid.Parse(id)

	if err != nil {
		return nil, ErrEventNotFound
	}

	ctx, cancel := ps.context()
	defer cancel()

	var data []byte

	err = ps.pool.QueryRow(ctx, `SELECT data FROM raw_sheet_events WHERE event_id = $1 AND NOT deleted`, eventID).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEventNotFound
	} else if err != nil {
		return nil, errors.Wrapf(err, "rawsheets: find event %s", id)
	}

	var event *Event

	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}

	return event, nil
}

func (ps *PostgresStore) ListEvents() ([]*Event, error) {
	ctx, cancel := ps.context()
	defer cancel()

	rows, err := ps.pool.Query(ctx, `SELECT data FROM raw_sheet_events WHERE NOT deleted ORDER BY event_date DESC`)

	if err != nil {
		return nil, errors.Wrap(err, "rawsheets: list events")
	}

	defer rows.Close()

	var events []*Event

	for rows.Next() {
		var data []byte

		if err := rows.Scan(&data); err != nil {
			return nil, err
		}

		var event *Event

		if err := json.Unmarshal(data, &event); err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, rows.Err()
}

func (ps *PostgresStore) DeleteEvent(id string) error {
	event, err := ps.FindEventByID(id)

	if err != nil {
		return err
	}

	event.Deleted = time.Now()

	return ps.UpsertEvent(event)
}

func (ps *PostgresStore) UpsertRun(run Run) error {
	ctx, cancel := ps.context()
	defer cancel()

	record := newRunRecord(run)

	var rawTimeMillis *int64

	if record.RawTime != nil {
		ms := record.RawTime.Milliseconds()
		rawTimeMillis = &ms
	}

	_, err := ps.pool.Exec(ctx,
		`INSERT INTO raw_sheet_runs (run_id, event_id, sequence, category, handicap, number, raw_time_ms, cones, did_not_finish, disqualified, rerun)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (run_id) DO UPDATE SET
			sequence = EXCLUDED.sequence,
			category = EXCLUDED.category,
			handicap = EXCLUDED.handicap,
			number = EXCLUDED.number,
			raw_time_ms = EXCLUDED.raw_time_ms,
			cones = EXCLUDED.cones,
			did_not_finish = EXCLUDED.did_not_finish,
			disqualified = EXCLUDED.disqualified,
			rerun = EXCLUDED.rerun`,
		run.ID, run.EventID, record.Sequence, record.Category, record.Handicap, record.Number,
		rawTimeMillis, record.Cones, record.DidNotFinish, record.Disqualified, record.Rerun,
	)

	return errors.Wrapf(err, "rawsheets: upsert run %s", run.ID)
}

func (ps *PostgresStore) ListRuns(eventID string) ([]Run, error) {
	id, err := uuid.Parse(eventID)

	if err != nil {
		return nil, ErrEventNotFound
	}

	ctx, cancel := ps.context()
	defer cancel()

	rows, err := ps.pool.Query(ctx,
		`SELECT run_id::text, event_id::text, sequence, category, handicap, number, raw_time_ms, cones, did_not_finish, disqualified, rerun
		 FROM raw_sheet_runs WHERE event_id = $1 ORDER BY sequence`, id)

	if err != nil {
		return nil, errors.Wrapf(err, "rawsheets: list runs for event %s", eventID)
	}

	defer rows.Close()

	var runs []Run

	for rows.Next() {
		var record runRecord
		var rawTimeMillis *int64

		err := rows.Scan(&record.ID, &record.EventID, &record.Sequence, &record.Category, &record.Handicap, &record.Number,
			&rawTimeMillis, &record.Cones, &record.DidNotFinish, &record.Disqualified, &record.Rerun)

		if err != nil {
			return nil, err
		}

		if rawTimeMillis != nil {
			d := time.Duration(*rawTimeMillis) * time.Millisecond
			record.RawTime = &d
		}

		run, err := record.toRun()

		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (ps *PostgresStore) DeleteRun(run Run) error {
	ctx, cancel := ps.context()
	defer cancel()

	_, err := ps.pool.Exec(ctx, `DELETE FROM raw_sheet_runs WHERE run_id = $1`, run.ID)

	return errors.Wrapf(err, "rawsheets: delete run %s", run.ID)
}

func (ps *PostgresStore) SetMeta(key string, value interface{}) error {
	ctx, cancel := ps.context()
	defer cancel()

	data, err := json.Marshal(value)

	if err != nil {
		return err
	}

	_, err = ps.pool.Exec(ctx,
		`INSERT INTO raw_sheet_meta (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, data,
	)

	return errors.Wrapf(err, "rawsheets: set meta %s", key)
}

func (ps *PostgresStore) GetMeta(key string, out interface{}) error {
	ctx, cancel := ps.context()
	defer cancel()

	var data []byte

	err := ps.pool.QueryRow(ctx, `SELECT value FROM raw_sheet_meta WHERE key = $1`, key).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMetaValueNotSet
	} else if err != nil {
		return errors.Wrapf(err, "rawsheets: get meta %s", key)
	}

	return json.Unmarshal(data, out)
}
