package rawsheets

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hako/durafmt"
)

var BuildVersion = "in development"

type HealthCheck struct {
	store       Store
	storeConfig StoreConfig
}

func NewHealthCheck(store Store, storeConfig StoreConfig) *HealthCheck {
	return &HealthCheck{
		store:       store,
		storeConfig: storeConfig,
	}
}

type HealthCheckResponse struct {
	OK      bool
	Version string

	OS            string
	NumCPU        int
	NumGoroutines int
	Uptime        string
	GoVersion     string

	StoreType   string
	StoreSize   string
	StoreError  string
	EventsCount int
}

func (h *HealthCheck) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthCheckResponse{
		OK:            true,
		OS:            runtime.GOOS + "/" + runtime.GOARCH,
		Version:       BuildVersion,
		NumCPU:        runtime.NumCPU(),
		NumGoroutines: runtime.NumGoroutine(),
		Uptime:        durafmt.Parse(time.Since(LaunchTime).Truncate(time.Second)).String(),
		GoVersion:     runtime.Version(),
		StoreType:     h.storeConfig.Type,
	}

	events, err := h.store.ListEvents()

	if err != nil {
		resp.OK = false
		resp.StoreError = err.Error()
	} else {
		resp.EventsCount = len(events)
	}

	if size, err := storeSize(h.storeConfig); err == nil {
		resp.StoreSize = humanize.Bytes(size)
	}

	w.Header().Set("Content-Type", "application/json")

	if !resp.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	_ = json.NewEncoder(w).Encode(resp)
}

// storeSize returns the bytes used on disk by file backed stores.
func storeSize(storeConfig StoreConfig) (uint64, error) {
	if storeConfig.Type == StoreTypePostgres || storeConfig.Path == "" {
		return 0, os.ErrNotExist
	}

	var size uint64

	err := filepath.Walk(storeConfig.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			size += uint64(info.Size())
		}

		return nil
	})

	return size, err
}
