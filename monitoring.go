package rawsheets

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/raven-go"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	panicHandler = middleware.Recoverer

	defaultPanicCapture = func(fn func()) {
		defer func() {
			if r := recover(); r != nil {
				_, _ = fmt.Fprintf(logMultiWriter, "\n\nrecovered from panic: %v\n\n", r)
				_, _ = fmt.Fprint(logMultiWriter, string(debug.Stack()))
			}
		}()

		fn()
	}

	// panicCapture runs fn, recovering and reporting any panic. Background
	// goroutines run through it.
	panicCapture = defaultPanicCapture

	prometheusMonitoringHandler = http.NotFoundHandler

	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return next
	}
)

// InitMonitoring reports panics to Sentry when a DSN is configured and registers
// the metrics collectors on /metrics when monitoring is enabled.
func InitMonitoring(config MonitoringConfig) {
	if config.SentryDSN != "" {
		logrus.Infof("initialising Raven monitoring")

		if err := raven.SetDSN(config.SentryDSN); err != nil {
			logrus.WithError(err).Error("could not initialise raven monitoring")
		} else {
			raven.SetRelease(BuildVersion)

			panicHandler = raven.Recoverer
			panicCapture = func(fn func()) {
				raven.CapturePanic(fn, nil)
			}
		}
	}

	if !config.Enabled {
		return
	}

	logrus.Infof("initialising Prometheus Monitoring")
	prometheus.MustRegister(
		HTTPInFlightGauge, HTTPCounter, HTTPDuration,
		insertionsCounter, insertDryRunsCounter, runSaveFailuresCounter, runSaveDuration,
	)

	prometheusMonitoringHandler = promhttp.Handler
	prometheusMonitoringWrapper = func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerInFlight(HTTPInFlightGauge,
			promhttp.InstrumentHandlerDuration(HTTPDuration.MustCurryWith(prometheus.Labels{"handler": "api"}),
				promhttp.InstrumentHandlerCounter(HTTPCounter, next),
			),
		)
	}
}

var insertionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "raw_sheets_sequence_insertions_total",
	Help: "Drivers inserted into a run sequence.",
})

var insertDryRunsCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "raw_sheets_sequence_insertion_previews_total",
	Help: "Dry run insertions computed for previews.",
})

var runSaveFailuresCounter = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "raw_sheets_run_save_failures_total",
	Help: "Runs the store failed to save.",
})

var runSaveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name:    "raw_sheets_run_save_duration_seconds",
	Help:    "A histogram of run save latencies.",
	Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
})

var HTTPInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "in_flight_requests",
	Help: "A gauge of requests currently being served by the wrapped handler.",
})

var HTTPCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "web_requests_total",
		Help: "A counter for requests to the wrapped handler.",
	},
	[]string{"code", "method"},
)

// HTTPDuration is partitioned by the HTTP method and handler.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "request_duration_seconds",
		Help:    "A histogram of latencies for requests.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1},
	},
	[]string{"handler", "method"},
)
