package rawsheets

import (
	"net/http"
)

// Resolver builds the application's components on first use so that each is
// created once and shared.
type Resolver struct {
	store  Store
	config *Configuration

	runService *RunService
	runsHub    *RunsHub

	// handlers
	baseHandler   *BaseHandler
	eventsHandler *EventsHandler
	runsHandler   *RunsHandler
	healthCheck   *HealthCheck
}

func NewResolver(store Store, config *Configuration) *Resolver {
	return &Resolver{
		store:  store,
		config: config,
	}
}

func (r *Resolver) ResolveStore() Store {
	return r.store
}

func (r *Resolver) ResolveRunService() *RunService {
	if r.runService != nil {
		return r.runService
	}

	r.runService = NewRunService(r.store)

	return r.runService
}

func (r *Resolver) ResolveRunsHub() *RunsHub {
	if r.runsHub != nil {
		return r.runsHub
	}

	r.runsHub = NewRunsHub()

	return r.runsHub
}

// StartRunsHub runs the live runs hub in the background.
func (r *Resolver) StartRunsHub() {
	go panicCapture(r.ResolveRunsHub().Run)
}

func (r *Resolver) resolveBaseHandler() *BaseHandler {
	if r.baseHandler != nil {
		return r.baseHandler
	}

	r.baseHandler = NewBaseHandler(r.store)

	return r.baseHandler
}

func (r *Resolver) resolveEventsHandler() *EventsHandler {
	if r.eventsHandler != nil {
		return r.eventsHandler
	}

	r.eventsHandler = NewEventsHandler(r.resolveBaseHandler())

	return r.eventsHandler
}

func (r *Resolver) resolveRunsHandler() *RunsHandler {
	if r.runsHandler != nil {
		return r.runsHandler
	}

	r.runsHandler = NewRunsHandler(
		r.resolveBaseHandler(),
		r.ResolveRunService(),
		r.ResolveRunsHub(),
		r.config.Sequencing,
	)

	return r.runsHandler
}

func (r *Resolver) resolveHealthCheck() *HealthCheck {
	if r.healthCheck != nil {
		return r.healthCheck
	}

	r.healthCheck = NewHealthCheck(r.store, r.config.Store)

	return r.healthCheck
}

func (r *Resolver) ResolveRouter() http.Handler {
	return Router(
		r.resolveEventsHandler(),
		r.resolveRunsHandler(),
		r.ResolveRunsHub(),
		r.resolveHealthCheck(),
	)
}
