package rawsheets

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/etcd-io/bbolt"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Configuration struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Store      StoreConfig      `yaml:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Sequencing SequencingConfig `yaml:"sequencing"`
}

type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`

	// SentryDSN reports panics to Sentry when set.
	SentryDSN string `yaml:"sentry_dsn"`
}

type HTTPConfig struct {
	Hostname        string        `yaml:"hostname"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SequencingConfig struct {
	// AllowAdHocNumbers accepts numbers typed by an official that are not on an
	// event's registration roster.
	AllowAdHocNumbers bool `yaml:"allow_ad_hoc_numbers"`
}

const (
	StoreTypeBolt     = "boltdb"
	StoreTypeJSON     = "json"
	StoreTypePostgres = "postgres"
)

type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`

	// postgres only
	DSN          string        `yaml:"dsn"`
	QueryTimeout time.Duration `yaml:"query_timeout"`
}

func (s *StoreConfig) BuildStore() (Store, error) {
	var rs Store

	switch s.Type {
	case StoreTypeBolt:
		bbdb, err := bbolt.Open(s.Path, 0644, &bbolt.Options{Timeout: time.Second})

		if err != nil {
			return nil, err
		}

		rs = NewBoltStore(bbdb)
	case StoreTypeJSON:
		rs = NewJSONStore(s.Path)
	case StoreTypePostgres:
		ps, err := NewPostgresStore(context.Background(), s.DSN, s.QueryTimeout)

		if err != nil {
			return nil, err
		}

		rs = ps
	default:
		return nil, fmt.Errorf("invalid store type (%s), must be one of boltdb/json/postgres", s.Type)
	}

	if err := Migrate(rs); err != nil {
		return nil, err
	}

	return rs, nil
}

func ReadConfig(location string) (conf *Configuration, err error) {
	f, err := os.Open(location)

	if err != nil {
		return nil, err
	}

	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&conf); err != nil {
		return nil, err
	}

	if conf.HTTP.Hostname == "" {
		conf.HTTP.Hostname = "127.0.0.1:8772"
	}

	if conf.HTTP.ShutdownTimeout <= 0 {
		conf.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if conf.Sequencing.AllowAdHocNumbers {
		logrus.Infof("Numbers not on an event's registrations will be accepted")
	}

	return conf, nil
}
