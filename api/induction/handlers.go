package induction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kilianp07/induction/core/engine/history"
	"github.com/kilianp07/induction/core/forecast"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/simulate"
)

// snapshotRequest carries an optional snapshot. Without one the store's
// current snapshot is used.
type snapshotRequest struct {
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
}

type optimizeRequest struct {
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	Demand   int             `json:"service_demand"`
	// Overrides replaces the snapshot's overrides when present, even empty.
	Overrides []model.Override `json:"overrides"`
}

type optimizeResponse struct {
	model.DecisionSet
	Infeasible bool `json:"infeasible"`
}

type simulateRequest struct {
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
	simulate.Request
}

type overrideRequest struct {
	TrainsetID string `json:"trainset_id"`
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	Author     string `json:"author"`
}

type conflictsResponse struct {
	Conflicts []model.Conflict `json:"conflicts"`
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *handler) currentSnapshot(r *http.Request, s *model.Snapshot) (model.Snapshot, error) {
	if s != nil {
		return *s, nil
	}
	snap, err := h.eng.Store().Snapshot(r.Context())
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	return snap, nil
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.currentSnapshot(r, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) validate(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	snap, err := h.currentSnapshot(r, req.Snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	elig, err := h.eng.Validate(snap)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elig)
}

func (h *handler) score(w http.ResponseWriter, r *http.Request) {
	snap, err := h.currentSnapshot(r, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	vec, err := h.eng.Score(snap, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vec)
}

func (h *handler) optimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	var (
		ds  model.DecisionSet
		err error
	)
	if req.Snapshot == nil && req.Overrides == nil {
		ds, err = h.eng.Plan(r.Context(), req.Demand)
	} else {
		snap, serr := h.currentSnapshot(r, req.Snapshot)
		if serr != nil {
			writeError(w, serr)
			return
		}
		ds, err = h.eng.Optimize(r.Context(), snap, h.eng.ResolveDemand(req.Demand), req.Overrides)
	}
	if err != nil && !errors.Is(err, model.ErrInfeasibleDemand) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, optimizeResponse{DecisionSet: ds, Infeasible: ds.Infeasible()})
}

func (h *handler) simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Snapshot != nil {
		req.Request.Snapshot = *req.Snapshot
	}
	res, err := h.eng.Simulate(r.Context(), req.Request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) listOverrides(w http.ResponseWriter, _ *http.Request) {
	list := h.eng.Overrides()
	if list == nil {
		list = []model.Override{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) applyOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	o, err := h.eng.ApplyOverride(r.Context(), req.TrainsetID, model.Status(req.Status), req.Reason, req.Author)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *handler) getOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, ok := h.eng.Override(id)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", model.ErrUnknownOverride, id))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.eng.RemoveOverride(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", model.ErrUnknownOverride, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) overrideHistory(w http.ResponseWriter, r *http.Request) {
	list := h.eng.OverrideHistory(chi.URLParam(r, "id"))
	if list == nil {
		list = []model.Override{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) conflicts(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if r.Method == http.MethodPost {
		if err := decode(r, &req); err != nil {
			badRequest(w, err.Error())
			return
		}
	}
	snap, err := h.currentSnapshot(r, req.Snapshot)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.eng.DetectConflicts(snap)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflictsResponse{Conflicts: list})
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	recs, err := h.eng.History(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) latest(w http.ResponseWriter, r *http.Request) {
	rec, err := h.eng.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func parseQuery(r *http.Request) (history.Query, error) {
	v := r.URL.Query()
	q := history.Query{TrainsetID: v.Get("trainset_id")}
	if s := v.Get("start"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("invalid start: %w", err)
		}
		q.Start = t
	}
	if s := v.Get("end"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("invalid end: %w", err)
		}
		q.End = t
	}
	if s := v.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit %q", s)
		}
		q.Limit = n
	}
	return q, nil
}

func (h *handler) recordOutcome(w http.ResponseWriter, r *http.Request) {
	var o forecast.Observation
	if err := decode(r, &o); err != nil {
		badRequest(w, err.Error())
		return
	}
	fit, err := h.eng.RecordOutcome(r.Context(), o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, fit)
}

func (h *handler) outcomes(w http.ResponseWriter, _ *http.Request) {
	list := h.eng.Outcomes()
	if list == nil {
		list = []forecast.Observation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handler) currentForecast(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Forecast())
}
