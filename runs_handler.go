package rawsheets

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	errRawTimeRequired  = errors.New("rawsheets: raw time is required")
	errUnknownRunAction = errors.New("rawsheets: unknown run action")
)

type RunsHandler struct {
	*BaseHandler

	runService  *RunService
	broadcaster Broadcaster
	allowAdHoc  bool
}

func NewRunsHandler(baseHandler *BaseHandler, runService *RunService, broadcaster Broadcaster, sequencing SequencingConfig) *RunsHandler {
	return &RunsHandler{
		BaseHandler: baseHandler,
		runService:  runService,
		broadcaster: broadcaster,
		allowAdHoc:  sequencing.AllowAdHocNumbers,
	}
}

type runResponse struct {
	ID           uuid.UUID `json:"id"`
	Sequence     int       `json:"sequence"`
	Numbers      string    `json:"numbers"`
	Category     string    `json:"category"`
	Handicap     string    `json:"handicap"`
	Number       string    `json:"number"`
	RawTime      string    `json:"raw_time"`
	Cones        int       `json:"cones"`
	DidNotFinish bool      `json:"did_not_finish"`
	Disqualified bool      `json:"disqualified"`
	Rerun        bool      `json:"rerun"`
	Status       string    `json:"status,omitempty"`
}

func newRunResponse(run Run) runResponse {
	resp := runResponse{
		ID:           run.ID,
		Sequence:     run.Sequence,
		Numbers:      run.RegistrationNumbers(),
		RawTime:      FormatRawTime(run.RawTime),
		Cones:        run.Cones,
		DidNotFinish: run.DidNotFinish,
		Disqualified: run.Disqualified,
		Rerun:        run.Rerun,
	}

	if run.Registration != nil {
		resp.Category = run.Registration.Category
		resp.Handicap = run.Registration.Handicap
		resp.Number = run.Registration.Number
	}

	return resp
}

func newRunResponses(runs []Run) []runResponse {
	out := make([]runResponse, 0, len(runs))

	for _, run := range runs {
		out = append(out, newRunResponse(run))
	}

	return out
}

type failedRunResponse struct {
	ID       uuid.UUID `json:"id"`
	Sequence int       `json:"sequence"`
	Error    string    `json:"error"`
}

func newFailedRunResponses(err error) []failedRunResponse {
	var failure *PersistenceFailure

	if !errors.As(err, &failure) {
		return nil
	}

	out := make([]failedRunResponse, 0, len(failure.Failed))

	for _, outcome := range failure.Failed {
		out = append(out, failedRunResponse{ID: outcome.RunID, Sequence: outcome.Sequence, Error: outcome.Err.Error()})
	}

	return out
}

func sortedIDs(ids map[uuid.UUID]bool) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))

	for id := range ids {
		out = append(out, id)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})

	return out
}

func (rh *RunsHandler) list(w http.ResponseWriter, r *http.Request) {
	event, ok := rh.loadEvent(w, r)

	if !ok {
		return
	}

	rh.writeJSON(w, http.StatusOK, newRunResponses(event.Runs))
}

func (rh *RunsHandler) next(w http.ResponseWriter, r *http.Request) {
	event, ok := rh.loadEvent(w, r)

	if !ok {
		return
	}

	rh.writeJSON(w, http.StatusOK, newRunResponse(rh.runService.FindRunForNextTime(event)))
}

type insertDriverRequest struct {
	Sequence int    `json:"sequence"`
	Relative string `json:"relative"`
	Numbers  string `json:"numbers"`
	DryRun   bool   `json:"dry_run"`
}

type insertDriverResponse struct {
	Runs        []runResponse       `json:"runs"`
	InsertRunID uuid.UUID           `json:"insert_run_id"`
	ShiftRunIDs []uuid.UUID         `json:"shift_run_ids"`
	FailedRuns  []failedRunResponse `json:"failed_runs,omitempty"`
}

func (rh *RunsHandler) insert(w http.ResponseWriter, r *http.Request) {
	var req insertDriverRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	relative, err := ParseRelative(req.Relative)

	if err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	defer rh.locks.lock(chi.URLParam(r, "eventID"))()

	event, ok := rh.loadEvent(w, r)

	if !ok {
		return
	}

	registration, err := ResolveNumbers(event, req.Numbers, rh.allowAdHoc)

	if err != nil {
		rh.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	result, err := rh.runService.InsertDriverIntoSequence(InsertDriverIntoSequenceRequest{
		Event:        event,
		Runs:         event.Runs,
		Sequence:     req.Sequence,
		Relative:     relative,
		Registration: registration,
		DryRun:       req.DryRun,
	})

	if err == ErrInvalidSequencePosition {
		rh.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	} else if err != nil {
		rh.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := insertDriverResponse{
		Runs:        make([]runResponse, 0, len(result.Runs)),
		InsertRunID: result.InsertRunID,
		ShiftRunIDs: sortedIDs(result.ShiftRunIDs),
	}

	for _, run := range result.Runs {
		runResp := newRunResponse(run)
		runResp.Status = result.Status(run.ID).String()
		resp.Runs = append(resp.Runs, runResp)
	}

	if result.Save != nil {
		// the next request for this event reads the store, so wait for it to settle
		if err := result.Save.Wait().Err(); err != nil {
			logrus.WithError(err).WithField("event", event.ID).Error("Inserted driver was not fully saved")
			resp.FailedRuns = newFailedRunResponses(err)
		}

		rh.broadcaster.Send(RunsChangedMessage{
			Type:        RunsChangedInsert,
			EventID:     event.ID,
			Runs:        resp.Runs,
			SelectRunID: result.InsertRunID,
			ShiftRunIDs: resp.ShiftRunIDs,
		})
	}

	rh.writeJSON(w, http.StatusOK, resp)
}

type nextDriverRequest struct {
	Numbers string `json:"numbers"`
}

func (rh *RunsHandler) nextDriver(w http.ResponseWriter, r *http.Request) {
	var req nextDriverRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	defer rh.locks.lock(chi.URLParam(r, "eventID"))()

	event, ok := rh.loadEvent(w, r)

	if !ok {
		return
	}

	registration, err := ResolveNumbers(event, req.Numbers, rh.allowAdHoc)

	if err == nil && registration == nil {
		err = ErrRegistrationNotFound
	}

	if err != nil {
		rh.writeError(w, r, http.StatusUnprocessableEntity, err)
		return
	}

	run, err := rh.runService.AddNextDriver(event, event.Runs, registration)

	rh.respondRunChange(w, r, event, run, err)
}

type recordTimeRequest struct {
	RawTime string `json:"raw_time"`
}

func (rh *RunsHandler) recordTime(w http.ResponseWriter, r *http.Request) {
	var req recordTimeRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rawTime, err := ParseRawTime(req.RawTime)

	if err == nil && rawTime == nil {
		err = errRawTimeRequired
	}

	if err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	defer rh.locks.lock(chi.URLParam(r, "eventID"))()

	event, ok := rh.loadEvent(w, r)

	if !ok {
		return
	}

	run, err := rh.runService.RecordTime(event, event.Runs, *rawTime)

	rh.respondRunChange(w, r, event, run, err)
}

type runActionRequest struct {
	Numbers string `json:"numbers"`
	Value   *bool  `json:"value"`
}

func (rh *RunsHandler) action(w http.ResponseWriter, r *http.Request) {
	var req runActionRequest

	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			rh.writeError(w, r, http.StatusBadRequest, err)
			return
		}
	}

	defer rh.locks.lock(chi.URLParam(r, "eventID"))()

	event, run, ok := rh.loadRun(w, r)

	if !ok {
		return
	}

	toggle := func(current bool) bool {
		if req.Value != nil {
			return *req.Value
		}

		return !current
	}

	var err error

	switch chi.URLParam(r, "action") {
	case "cone-add":
		run, err = rh.runService.IncrementCones(run)
	case "cone-remove":
		run, err = rh.runService.DecrementCones(run)

		if err == ErrNoConesToRemove {
			rh.writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}
	case "rerun":
		run, err = rh.runService.ChangeRerun(run, toggle(run.Rerun))
	case "dnf":
		run, err = rh.runService.ChangeDidNotFinish(run, toggle(run.DidNotFinish))
	case "dsq":
		run, err = rh.runService.ChangeDisqualified(run, toggle(run.Disqualified))
	case "clear-time":
		run, err = rh.runService.ChangeTime(run, nil)
	case "driver":
		var registration *Registration

		registration, err = ResolveNumbers(event, req.Numbers, rh.allowAdHoc)

		if err != nil {
			rh.writeError(w, r, http.StatusUnprocessableEntity, err)
			return
		}

		run, err = rh.runService.ChangeDriver(run, registration)
	default:
		rh.writeError(w, r, http.StatusNotFound, errUnknownRunAction)
		return
	}

	rh.respondRunChange(w, r, event, run, err)
}

func (rh *RunsHandler) delete(w http.ResponseWriter, r *http.Request) {
	defer rh.locks.lock(chi.URLParam(r, "eventID"))()

	event, run, ok := rh.loadRun(w, r)

	if !ok {
		return
	}

	result, err := rh.runService.DeleteRun(event.Runs, run.ID)

	if result == nil {
		rh.writeError(w, r, http.StatusInternalServerError, err)
		return
	}

	resp := insertDriverResponse{
		Runs:        newRunResponses(result.Runs),
		ShiftRunIDs: sortedIDs(result.ShiftRunIDs),
		FailedRuns:  newFailedRunResponses(err),
	}

	rh.broadcaster.Send(RunsChangedMessage{
		Type:        RunsChangedDelete,
		EventID:     event.ID,
		Runs:        resp.Runs,
		ShiftRunIDs: resp.ShiftRunIDs,
	})

	rh.writeJSON(w, http.StatusOK, resp)
}

func (rh *RunsHandler) loadRun(w http.ResponseWriter, r *http.Request) (*Event, Run, bool) {
	event, ok := rh.loadEvent(w, r)

	if !ok {
		return nil, Run{}, false
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))

	if err != nil {
		rh.writeError(w, r, http.StatusBadRequest, err)
		return nil, Run{}, false
	}

	run, ok := findRun(event.Runs, runID)

	if !ok {
		rh.writeError(w, r, http.StatusNotFound, ErrRunNotFound)
		return nil, Run{}, false
	}

	return event, run, true
}

type runChangeResponse struct {
	Run        runResponse         `json:"run"`
	FailedRuns []failedRunResponse `json:"failed_runs,omitempty"`
}

func (rh *RunsHandler) respondRunChange(w http.ResponseWriter, r *http.Request, event *Event, run Run, err error) {
	resp := runChangeResponse{Run: newRunResponse(run)}

	if err != nil {
		failed := newFailedRunResponses(err)

		if failed == nil {
			rh.writeError(w, r, http.StatusInternalServerError, err)
			return
		}

		resp.FailedRuns = failed
	} else {
		rh.broadcaster.Send(RunsChangedMessage{
			Type:        RunsChangedUpdate,
			EventID:     event.ID,
			Runs:        []runResponse{resp.Run},
			SelectRunID: run.ID,
		})
	}

	rh.writeJSON(w, http.StatusOK, resp)
}
