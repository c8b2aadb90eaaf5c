package rawsheets

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/etcd-io/bbolt"
)

type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(db *bbolt.DB) Store {
	return &BoltStore{db: db}
}

func (rs *BoltStore) Close() error {
	return rs.db.Close()
}

var (
	eventsBucketName = []byte("events")
	runsBucketName   = []byte("runs")
	metaBucketName   = []byte("meta")
)

// bucket returns a top level bucket, creating it in writable transactions.
func (rs *BoltStore) bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	if !tx.Writable() {
		bkt := tx.Bucket(name)

		if bkt == nil {
			return nil, bbolt.ErrBucketNotFound
		}

		return bkt, nil
	}

	return tx.CreateBucketIfNotExists(name)
}

// eventRunsBucket returns the bucket holding the runs of a single event, nested
// under the runs bucket and keyed by run ID.
func (rs *BoltStore) eventRunsBucket(tx *bbolt.Tx, eventID string) (*bbolt.Bucket, error) {
	runs, err := rs.bucket(tx, runsBucketName)

	if err != nil {
		return nil, err
	}

	if !tx.Writable() {
		bkt := runs.Bucket([]byte(eventID))

		if bkt == nil {
			return nil, bbolt.ErrBucketNotFound
		}

		return bkt, nil
	}

	return runs.CreateBucketIfNotExists([]byte(eventID))
}

func (rs *BoltStore) encode(data interface{}) ([]byte, error) {
	return json.Marshal(data)
}

func (rs *BoltStore) decode(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

func (rs *BoltStore) UpsertEvent(event *Event) error {
	return rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, eventsBucketName)

		if err != nil {
			return err
		}

		event.Updated = time.Now()

		encoded, err := rs.encode(event)

		if err != nil {
			return err
		}

		return bkt.Put([]byte(event.ID.String()), encoded)
	})
}

func (rs *BoltStore) FindEventByID(id string) (*Event, error) {
	var event *Event

	err := rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, eventsBucketName)

		if err == bbolt.ErrBucketNotFound {
			return ErrEventNotFound
		} else if err != nil {
			return err
		}

		data := bkt.Get([]byte(id))

		if data == nil {
			return ErrEventNotFound
		}

		return rs.decode(data, &event)
	})

	if err != nil {
		return nil, err
	}

	if !event.Deleted.IsZero() {
		return nil, ErrEventNotFound
	}

	return event, nil
}

func (rs *BoltStore) ListEvents() ([]*Event, error) {
	var events []*Event

	err := rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, eventsBucketName)

		if err == bbolt.ErrBucketNotFound {
			return nil
		} else if err != nil {
			return err
		}

		return bkt.ForEach(func(k, v []byte) error {
			var event *Event

			err := rs.decode(v, &event)

			if err != nil {
				return err
			}

			if !event.Deleted.IsZero() {
				// soft deleted event, move on
				return nil
			}

			events = append(events, event)

			return nil
		})
	})

	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})

	return events, err
}

func (rs *BoltStore) DeleteEvent(id string) error {
	event, err := rs.FindEventByID(id)

	if err != nil {
		return err
	}

	event.Deleted = time.Now()

	return rs.UpsertEvent(event)
}

func (rs *BoltStore) UpsertRun(run Run) error {
	return rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.eventRunsBucket(tx, run.EventID.String())

		if err != nil {
			return err
		}

		encoded, err := rs.encode(newRunRecord(run))

		if err != nil {
			return err
		}

		return bkt.Put([]byte(run.ID.String()), encoded)
	})
}

func (rs *BoltStore) ListRuns(eventID string) ([]Run, error) {
	var runs []Run

	err := rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.eventRunsBucket(tx, eventID)

		if err == bbolt.ErrBucketNotFound {
			return nil
		} else if err != nil {
			return err
		}

		return bkt.ForEach(func(k, v []byte) error {
			var record runRecord

			if err := rs.decode(v, &record); err != nil {
				return err
			}

			run, err := record.toRun()

			if err != nil {
				return err
			}

			runs = append(runs, run)

			return nil
		})
	})

	return sortedRuns(runs), err
}

func (rs *BoltStore) DeleteRun(run Run) error {
	return rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.eventRunsBucket(tx, run.EventID.String())

		if err != nil {
			return err
		}

		return bkt.Delete([]byte(run.ID.String()))
	})
}

func (rs *BoltStore) SetMeta(key string, value interface{}) error {
	return rs.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, metaBucketName)

		if err != nil {
			return err
		}

		enc, err := rs.encode(value)

		if err != nil {
			return err
		}

		return bkt.Put([]byte(key), enc)
	})
}

func (rs *BoltStore) GetMeta(key string, out interface{}) error {
	return rs.db.View(func(tx *bbolt.Tx) error {
		bkt, err := rs.bucket(tx, metaBucketName)

		if err == bbolt.ErrBucketNotFound {
			return ErrMetaValueNotSet
		} else if err != nil {
			return err
		}

		val := bkt.Get([]byte(key))

		if val == nil {
			return ErrMetaValueNotSet
		}

		return rs.decode(val, out)
	})
}
