package rawsheets

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

func Router(
	eventsHandler *EventsHandler,
	runsHandler *RunsHandler,
	runsHub *RunsHub,
	healthCheck *HealthCheck,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(panicHandler)

	r.Handle("/metrics", prometheusMonitoringHandler())
	r.Method(http.MethodGet, "/healthcheck.json", healthCheck)

	if Debug {
		r.Mount("/debug/", middleware.Profiler())
	}

	r.Group(func(r chi.Router) {
		r.Use(prometheusMonitoringWrapper)

		// events
		r.Get("/events", eventsHandler.list)
		r.Post("/events", eventsHandler.create)
		r.Get("/event/{eventID}", eventsHandler.view)
		r.Get("/event/{eventID}/registrations", eventsHandler.registrations)

		// runs
		r.Get("/event/{eventID}/runs", runsHandler.list)
		r.Get("/event/{eventID}/runs/next", runsHandler.next)
		r.Post("/event/{eventID}/runs/insert", runsHandler.insert)
		r.Post("/event/{eventID}/runs/next-driver", runsHandler.nextDriver)
		r.Post("/event/{eventID}/runs/time", runsHandler.recordTime)
		r.Post("/event/{eventID}/run/{runID}/{action}", runsHandler.action)
		r.Delete("/event/{eventID}/run/{runID}", runsHandler.delete)
	})

	r.HandleFunc("/event/{eventID}/live", runsHub.websocketHandler)

	return r
}
