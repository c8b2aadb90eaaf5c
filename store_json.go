package rawsheets

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	eventsDir = "events"
	runsDir   = "runs"
	metaDir   = "meta"
)

// NewJSONStore stores each event and run as an indented JSON file under dir:
//
//	events/<event id>.json
//	runs/<event id>/<run id>.json
//	meta/<key>.json
func NewJSONStore(dir string) Store {
	return &JSONStore{
		base: dir,
	}
}

type JSONStore struct {
	base string

	mutex sync.RWMutex
}

func (rs *JSONStore) listFiles(dir string) ([]string, error) {
	files, err := ioutil.ReadDir(dir)

	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	var list []string

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		list = append(list, strings.TrimSuffix(file.Name(), ".json"))
	}

	return list, nil
}

func (rs *JSONStore) encodeFile(filename string, data interface{}) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	filename = filepath.Join(rs.base, filename)

	dir := filepath.Dir(filename)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err := os.MkdirAll(dir, 0755)

		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	f, err := os.Create(filename)

	if err != nil {
		return err
	}

	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")

	return enc.Encode(data)
}

func (rs *JSONStore) decodeFile(filename string, out interface{}) error {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	f, err := os.Open(filepath.Join(rs.base, filename))

	if err != nil {
		return err
	}

	defer f.Close()

	return json.NewDecoder(f).Decode(out)
}

func (rs *JSONStore) removeFile(filename string) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	err := os.Remove(filepath.Join(rs.base, filename))

	if os.IsNotExist(err) {
		return nil
	}

	return err
}

func (rs *JSONStore) UpsertEvent(event *Event) error {
	event.Updated = time.Now()

	return rs.encodeFile(filepath.Join(eventsDir, event.ID.String()+".json"), event)
}

func (rs *JSONStore) FindEventByID(id string) (*Event, error) {
	var event *Event

	err := rs.decodeFile(filepath.Join(eventsDir, id+".json"), &event)

	if os.IsNotExist(err) {
		return nil, ErrEventNotFound
	} else if err != nil {
		return nil, err
	}

	if !event.Deleted.IsZero() {
		return nil, ErrEventNotFound
	}

	return event, nil
}

func (rs *JSONStore) ListEvents() ([]*Event, error) {
	files, err := rs.listFiles(filepath.Join(rs.base, eventsDir))

	if err != nil {
		return nil, err
	}

	var events []*Event

	for _, file := range files {
		event, err := rs.FindEventByID(file)

		if err != nil {
			continue
		}

		events = append(events, event)
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Date.After(events[j].Date)
	})

	return events, nil
}

func (rs *JSONStore) DeleteEvent(id string) error {
	event, err := rs.FindEventByID(id)

	if err != nil {
		return err
	}

	event.Deleted = time.Now()

	return rs.UpsertEvent(event)
}

func (rs *JSONStore) runFile(run Run) string {
	return filepath.Join(runsDir, run.EventID.String(), run.ID.String()+".json")
}

func (rs *JSONStore) UpsertRun(run Run) error {
	return rs.encodeFile(rs.runFile(run), newRunRecord(run))
}

func (rs *JSONStore) ListRuns(eventID string) ([]Run, error) {
	files, err := rs.listFiles(filepath.Join(rs.base, runsDir, eventID))

	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(files))

	for _, file := range files {
		var record runRecord

		if err := rs.decodeFile(filepath.Join(runsDir, eventID, file+".json"), &record); err != nil {
			return nil, err
		}

		run, err := record.toRun()

		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return sortedRuns(runs), nil
}

func (rs *JSONStore) DeleteRun(run Run) error {
	return rs.removeFile(rs.runFile(run))
}

func (rs *JSONStore) SetMeta(key string, value interface{}) error {
	return rs.encodeFile(filepath.Join(metaDir, key+".json"), value)
}

func (rs *JSONStore) GetMeta(key string, out interface{}) error {
	err := rs.decodeFile(filepath.Join(metaDir, key+".json"), out)

	if os.IsNotExist(err) {
		return ErrMetaValueNotSet
	}

	return err
}
